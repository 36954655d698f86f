package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/bill-classifier/internal/classify"
	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/ingest"
	"github.com/dvloznov/bill-classifier/internal/partition"
	"github.com/dvloznov/bill-classifier/internal/pipeline"
	"github.com/dvloznov/bill-classifier/internal/rules"
	"github.com/dvloznov/bill-classifier/internal/sink"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockBillSource is a mock implementation of BillSource for testing.
type MockBillSource struct {
	IngestFunc func(ctx context.Context, inputs []ingest.Input) ([]*domain.Bill, error)
}

func (m *MockBillSource) Ingest(ctx context.Context, inputs []ingest.Input) ([]*domain.Bill, error) {
	return m.IngestFunc(ctx, inputs)
}

// MockRulesLoader is a mock implementation of rules.Loader for testing.
type MockRulesLoader struct {
	LoadFunc func(ctx context.Context) (*rules.Store, error)
}

func (m *MockRulesLoader) Load(ctx context.Context) (*rules.Store, error) {
	return m.LoadFunc(ctx)
}

// captureSink records what it was asked to write.
type captureSink struct {
	results []*partition.Result
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Write(ctx context.Context, res *partition.Result) error {
	c.results = append(c.results, res)
	return nil
}

var epoch = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

func mk(order, counterparty, desc string, kind domain.Kind, amount string, seconds int) *domain.Bill {
	return &domain.Bill{
		Amount:       decimal.RequireFromString(amount),
		Counterparty: counterparty,
		Description:  desc,
		Kind:         kind,
		OrderID:      order,
		OccurredAt:   epoch.Add(time.Duration(seconds) * time.Second),
		Source:       domain.SourceAlipay,
		Owner:        "alice",
	}
}

// exportBills builds a fresh copy of one month of bills, deliberately out
// of time order.
func exportBills() []*domain.Bill {
	return []*domain.Bill{
		mk("", "商场", "无单号", domain.KindExpense, "12", 300),
		mk("o1", "王记", "青菜", domain.KindExpense, "50", 1000),
		mk("o1", "王记", "青菜", domain.KindExpense, "30", 1001),
		mk("o1", "王记", "退款-青菜", domain.KindOther, "20", 1500),
		mk("o2", "滴滴出行", "打车", domain.KindExpense, "18.5", 500),
		mk("o3", "公司", "工资", domain.KindIncome, "1000", 200),
		mk("o4", "小店", "不明消费", domain.KindExpense, "9.9", 9000),
		mk("o5", "余额宝", "余额宝-2024.05.01-收益发放", domain.KindOther, "0.10", 100),
		mk("o6", "余额宝", "余额宝-2024.05.02-收益发放", domain.KindOther, "0.12", 86500),
	}
}

func store() *rules.Store {
	return rules.NewStore(rules.Tables{
		CounterpartyExact:    []rules.Entry{{Key: "王记", Category: domain.CategoryProduce}},
		CounterpartyPatterns: []rules.Entry{{Key: "滴滴", Category: domain.CategoryTransport}},
	})
}

func newPipeline(loader rules.Loader, s sink.Sink) *pipeline.Pipeline {
	return pipeline.NewBillPipeline(pipeline.Deps{
		Source: &MockBillSource{IngestFunc: func(ctx context.Context, inputs []ingest.Input) ([]*domain.Bill, error) {
			return exportBills(), nil
		}},
		Rules:      loader,
		Classifier: classify.NewEngine(classify.DefaultConfig(), nil),
		Sink:       s,
	})
}

func staticLoader() rules.Loader {
	return &MockRulesLoader{LoadFunc: func(ctx context.Context) (*rules.Store, error) {
		return store(), nil
	}}
}

func descriptions(bills []*domain.Bill) []string {
	out := make([]string, len(bills))
	for i, b := range bills {
		out[i] = b.Description
	}
	return out
}

func TestBillPipeline_EndToEnd(t *testing.T) {
	capture := &captureSink{}
	state := &pipeline.PipelineState{}

	require.NoError(t, newPipeline(staticLoader(), capture).Execute(context.Background(), state))
	require.Len(t, capture.results, 1)

	res := capture.results[0]
	assert.Equal(t, []string{"打车"}, descriptions(res.Regex))
	require.Len(t, res.Temporal, 1)
	assert.Equal(t, "60", res.Temporal[0].Amount.String(), "50 + 30 - 20")
	assert.Equal(t, []string{"不明消费"}, descriptions(res.Unknown))
	assert.Equal(t, []string{"无单号"}, descriptions(res.Skip))
	assert.Equal(t, []string{"工资"}, descriptions(res.Income))

	require.Len(t, res.Other, 1, "balance sweeps collapse to one bill per owner")
	assert.Equal(t, "0.12", res.Other[0].Amount.String())

	for i := 1; i < len(state.Bills); i++ {
		assert.False(t, state.Bills[i].OccurredAt.Before(state.Bills[i-1].OccurredAt))
	}
	assert.Equal(t, 1, state.Stats.Exact)
	assert.Equal(t, 1, state.Stats.Regex)
}

func TestBillPipeline_Deterministic(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	run := func() [][]interface{} {
		capture := &captureSink{}
		require.NoError(t, newPipeline(staticLoader(), capture).Execute(context.Background(), &pipeline.PipelineState{}))
		return sink.Rows(capture.results[0].ExpenseRows(), loc)
	}

	assert.Equal(t, run(), run())
}

func TestBillPipeline_RuleLoadFailureStopsBeforeSink(t *testing.T) {
	capture := &captureSink{}
	loader := &MockRulesLoader{LoadFunc: func(ctx context.Context) (*rules.Store, error) {
		return nil, errors.New("sheet unavailable")
	}}

	err := newPipeline(loader, capture).Execute(context.Background(), &pipeline.PipelineState{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline step 5 (load_rules) failed")
	assert.Contains(t, err.Error(), "sheet unavailable")
	assert.Empty(t, capture.results)
}

func TestBillPipeline_IngestFailure(t *testing.T) {
	capture := &captureSink{}
	p := pipeline.NewBillPipeline(pipeline.Deps{
		Source: &MockBillSource{IngestFunc: func(ctx context.Context, inputs []ingest.Input) ([]*domain.Bill, error) {
			return nil, ingest.ErrMalformedRow
		}},
		Rules:      staticLoader(),
		Classifier: classify.NewEngine(classify.DefaultConfig(), nil),
		Sink:       capture,
	})

	err := p.Execute(context.Background(), &pipeline.PipelineState{})

	assert.ErrorIs(t, err, ingest.ErrMalformedRow)
	assert.Empty(t, capture.results)
}

func TestSortStep_Stable(t *testing.T) {
	a := mk("a", "", "a", domain.KindExpense, "1", 10)
	b := mk("b", "", "b", domain.KindExpense, "1", 5)
	c := mk("c", "", "c", domain.KindExpense, "1", 10)
	in := []*domain.Bill{a, b, c}
	state := &pipeline.PipelineState{Bills: in}

	require.NoError(t, (&pipeline.SortStep{}).Execute(context.Background(), state))

	assert.Equal(t, []string{"b", "a", "c"}, descriptions(state.Bills))
	assert.Equal(t, []string{"a", "b", "c"}, descriptions(in), "input slice is left alone")
}

func TestSinkStep_RequiresPartition(t *testing.T) {
	err := (&pipeline.SinkStep{Sink: &captureSink{}}).Execute(context.Background(), &pipeline.PipelineState{})
	assert.Error(t, err)
}
