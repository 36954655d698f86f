package classify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Request is what the fallback classifier sees of a bill.
type Request struct {
	Description  string
	Counterparty string
	Amount       decimal.Decimal
	OccurredAt   time.Time
}

// Oracle is a remote classifier of last resort. Classify returns a category
// label, or an empty string when it cannot decide. Usage returns the
// cumulative cost of all calls so far (tokens for language models).
type Oracle interface {
	Classify(ctx context.Context, req Request) (string, error)
	Usage() int64
}
