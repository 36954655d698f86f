// Package reconcile folds multi-leg transactions into single net records
// before classification.
package reconcile

import (
	"context"
	"strings"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"github.com/shopspring/decimal"
)

// RefundMarker is the description token that identifies a refund leg.
const RefundMarker = "退款"

// IsRefundLeg reports whether b is the refund half of an order group.
func IsRefundLeg(b *domain.Bill) bool {
	return b.Kind == domain.KindOther && strings.Contains(b.Description, RefundMarker)
}

// MergeRefunds collapses bills sharing an order id into one net bill.
//
// Bills without an order id are marked Skip and never grouped. For a group
// with expense legs, the first expense leg becomes the merged record: every
// other expense leg is added and every refund leg subtracted. A group that
// nets to exactly zero is kept and marked Skip. A refund-only group is
// emitted leg by leg.
//
// Each group is emitted at the position of its first member, so input
// without shared order ids comes back in the same order. The input slice is
// not modified.
func MergeRefunds(ctx context.Context, bills []*domain.Bill) []*domain.Bill {
	log := logger.FromContext(ctx)

	type group struct {
		expense []*domain.Bill
		refund  []*domain.Bill
	}

	groups := make(map[string]*group)
	// slots holds either a standalone bill or the first member of a group
	type slot struct {
		bill    *domain.Bill
		orderID string
	}
	var slots []slot

	for _, in := range bills {
		b := in.Clone()
		if b.OrderID == "" {
			b.Assign(domain.CategorySkip, domain.MethodUnrecognized)
			log.Debug().
				Str("description", b.Description).
				Str("amount", b.Amount.String()).
				Msg("Bill has no order id, skipping")
			slots = append(slots, slot{bill: b})
			continue
		}

		g, ok := groups[b.OrderID]
		if !ok {
			g = &group{}
			groups[b.OrderID] = g
			slots = append(slots, slot{orderID: b.OrderID})
		}
		if IsRefundLeg(b) {
			g.refund = append(g.refund, b)
		} else {
			g.expense = append(g.expense, b)
		}
	}

	merged := make([]*domain.Bill, 0, len(bills))
	for _, s := range slots {
		if s.bill != nil {
			merged = append(merged, s.bill)
			continue
		}

		g := groups[s.orderID]
		if len(g.expense) == 0 {
			log.Debug().
				Str("order_id", s.orderID).
				Int("refunds", len(g.refund)).
				Msg("Refund without original expense")
			merged = append(merged, g.refund...)
			continue
		}

		base := g.expense[0]
		if len(g.expense) == 1 && len(g.refund) == 0 {
			merged = append(merged, base)
			continue
		}

		original := base.Amount
		for _, leg := range g.expense[1:] {
			base.Amount = base.Amount.Add(leg.Amount)
		}
		refunded := decimal.Zero
		for _, leg := range g.refund {
			refunded = refunded.Add(leg.Amount)
		}
		base.Amount = base.Amount.Sub(refunded)

		if base.Amount.IsZero() {
			base.Assign(domain.CategorySkip, domain.MethodUnrecognized)
		}

		log.Debug().
			Str("order_id", s.orderID).
			Str("description", base.Description).
			Str("first_leg", original.String()).
			Int("expense_legs", len(g.expense)).
			Str("refunded", refunded.String()).
			Str("net", base.Amount.String()).
			Msg("Merged order group")

		merged = append(merged, base)
	}

	return merged
}
