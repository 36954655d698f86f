package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bill(order, desc string, kind domain.Kind, amount string) *domain.Bill {
	return &domain.Bill{
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
		Kind:        kind,
		OrderID:     order,
		OccurredAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Source:      domain.SourceAlipay,
		Owner:       "alice",
	}
}

func TestMergeRefunds_NoSharedOrdersIsIdentity(t *testing.T) {
	in := []*domain.Bill{
		bill("o1", "咖啡", domain.KindExpense, "18"),
		bill("", "退款-丢失原单", domain.KindOther, "5"),
		bill("o2", "地铁", domain.KindExpense, "4"),
		bill("o3", "工资", domain.KindIncome, "100"),
	}

	out := MergeRefunds(context.Background(), in)

	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].OrderID, out[i].OrderID)
		assert.Equal(t, in[i].Description, out[i].Description)
		assert.True(t, in[i].Amount.Equal(out[i].Amount))
	}
	assert.Equal(t, domain.CategoryUnknown, out[0].Category)
	assert.Equal(t, domain.CategorySkip, out[1].Category)
	assert.Equal(t, domain.CategoryUnknown, out[2].Category)
	assert.Equal(t, domain.CategoryUnknown, in[1].Category, "input must not be mutated")
}

func TestMergeRefunds_FullRefundNetsToSkip(t *testing.T) {
	in := []*domain.Bill{
		bill("o1", "耳机", domain.KindExpense, "60"),
		bill("o1", "耳机", domain.KindExpense, "40"),
		bill("o1", "退款-耳机", domain.KindOther, "100"),
	}

	out := MergeRefunds(context.Background(), in)

	require.Len(t, out, 1)
	assert.True(t, out[0].Amount.IsZero())
	assert.Equal(t, domain.CategorySkip, out[0].Category)
	assert.Equal(t, "耳机", out[0].Description)
}

func TestMergeRefunds_PartialRefund(t *testing.T) {
	in := []*domain.Bill{
		bill("o1", "定金", domain.KindExpense, "50"),
		bill("o9", "公交", domain.KindExpense, "2"),
		bill("o1", "尾款", domain.KindExpense, "30"),
		bill("o1", "退款-差价", domain.KindOther, "20"),
	}

	out := MergeRefunds(context.Background(), in)

	require.Len(t, out, 2)
	assert.Equal(t, "o1", out[0].OrderID)
	assert.Equal(t, "60", out[0].Amount.String())
	assert.Equal(t, domain.CategoryUnknown, out[0].Category)
	assert.Equal(t, "o9", out[1].OrderID)
	assert.Equal(t, "50", in[0].Amount.String(), "input must not be mutated")
}

func TestMergeRefunds_ExactDecimalArithmetic(t *testing.T) {
	in := []*domain.Bill{
		bill("o1", "水果", domain.KindExpense, "0.1"),
		bill("o1", "水果", domain.KindExpense, "0.2"),
		bill("o1", "退款", domain.KindOther, "0.3"),
	}

	out := MergeRefunds(context.Background(), in)

	require.Len(t, out, 1)
	assert.True(t, out[0].Amount.IsZero())
	assert.Equal(t, domain.CategorySkip, out[0].Category)
}

func TestMergeRefunds_RefundOnlyGroupEmitsAllLegs(t *testing.T) {
	in := []*domain.Bill{
		bill("o1", "退款-A", domain.KindOther, "10"),
		bill("o1", "退款-B", domain.KindOther, "5"),
	}

	out := MergeRefunds(context.Background(), in)

	require.Len(t, out, 2)
	assert.Equal(t, "退款-A", out[0].Description)
	assert.Equal(t, "退款-B", out[1].Description)
	assert.Equal(t, domain.CategoryUnknown, out[0].Category)
}

func TestMergeRefunds_RefundMarkerRequiresOtherKind(t *testing.T) {
	// an expense leg whose description mentions 退款 is still an expense leg
	in := []*domain.Bill{
		bill("o1", "退款运费险", domain.KindExpense, "3"),
		bill("o1", "商品", domain.KindExpense, "20"),
	}

	out := MergeRefunds(context.Background(), in)

	require.Len(t, out, 1)
	assert.Equal(t, "23", out[0].Amount.String())
}

func TestMergeBalanceSweeps(t *testing.T) {
	sweep := func(owner, amount string) *domain.Bill {
		b := bill("", "余额宝-2024.05.01-收益发放", domain.KindOther, amount)
		b.Owner = owner
		return b
	}

	in := []*domain.Bill{
		sweep("alice", "0.11"),
		bill("o1", "午餐", domain.KindExpense, "25"),
		sweep("bob", "0.50"),
		sweep("alice", "0.12"),
		bill("o2", "晚餐", domain.KindExpense, "40"),
		sweep("alice", "0.13"),
	}

	out := MergeBalanceSweeps(context.Background(), in)

	require.Len(t, out, 4)
	assert.Equal(t, "午餐", out[0].Description)
	assert.Equal(t, "晚餐", out[1].Description)

	assert.Equal(t, "alice", out[2].Owner)
	assert.Equal(t, "0.25", out[2].Amount.String(), "first payout is excluded from the sum")

	assert.Equal(t, "bob", out[3].Owner)
	assert.True(t, out[3].Amount.IsZero())

	assert.Equal(t, "0.11", in[0].Amount.String(), "input must not be mutated")
}

func TestIsBalanceSweep(t *testing.T) {
	assert.True(t, IsBalanceSweep(&domain.Bill{Description: "余额宝-收益发放"}))
	assert.False(t, IsBalanceSweep(&domain.Bill{Description: "余额宝-转出到余额"}))
	assert.False(t, IsBalanceSweep(&domain.Bill{Description: "转入余额宝-收益发放"}))
}
