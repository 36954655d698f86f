package reconcile

import (
	"context"
	"regexp"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"github.com/shopspring/decimal"
)

// balanceSweepPattern matches the daily money-market fund payout.
var balanceSweepPattern = regexp.MustCompile(`^余额宝.*收益发放$`)

// IsBalanceSweep reports whether b is an automatic balance interest payout.
func IsBalanceSweep(b *domain.Bill) bool {
	return balanceSweepPattern.MatchString(b.Description)
}

// MergeBalanceSweeps collapses every balance payout of an owner into one
// bill. Non-matching bills come first in their original order, followed by
// one merged bill per owner in order of first appearance.
//
// The merged bill is the owner's first payout with its amount replaced by
// the sum of the remaining payouts. The first payout's own amount is not
// included; existing spreadsheets were produced with this rule.
func MergeBalanceSweeps(ctx context.Context, bills []*domain.Bill) []*domain.Bill {
	log := logger.FromContext(ctx)

	byOwner := make(map[string][]*domain.Bill)
	var owners []string
	out := make([]*domain.Bill, 0, len(bills))

	for _, in := range bills {
		b := in.Clone()
		if !IsBalanceSweep(b) {
			out = append(out, b)
			continue
		}
		if _, ok := byOwner[b.Owner]; !ok {
			owners = append(owners, b.Owner)
		}
		byOwner[b.Owner] = append(byOwner[b.Owner], b)
	}

	for _, owner := range owners {
		sweeps := byOwner[owner]
		shell := sweeps[0]
		sum := decimal.Zero
		for _, s := range sweeps[1:] {
			sum = sum.Add(s.Amount)
		}
		shell.Amount = sum

		log.Debug().
			Str("owner", owner).
			Int("payouts", len(sweeps)).
			Str("amount", sum.String()).
			Msg("Merged balance payouts")

		out = append(out, shell)
	}

	return out
}
