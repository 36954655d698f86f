package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the layout bills are rendered with in the spreadsheet.
const TimeLayout = "2006-01-02 15:04:05"

// Bill is one normalized line item from a payment-platform export.
// Category and Method start as Unknown / Unrecognized and are assigned at
// most once by the merge and classification stages.
type Bill struct {
	Amount       decimal.Decimal
	Counterparty string
	Description  string
	Kind         Kind
	OrderID      string // empty when the platform gave no order number
	OccurredAt   time.Time
	Source       Source
	Owner        string

	Category Category
	Method   Method
}

// IsUnknown reports whether no stage has categorized the bill yet.
func (b *Bill) IsUnknown() bool {
	return b.Category == CategoryUnknown
}

// Assign sets the category and method if the bill is still unknown. It
// returns false and leaves the bill untouched otherwise.
func (b *Bill) Assign(c Category, m Method) bool {
	if !b.IsUnknown() {
		return false
	}
	b.Category = c
	b.Method = m
	return true
}

// Clone returns an independent copy of the bill.
func (b *Bill) Clone() *Bill {
	c := *b
	return &c
}

// CloneAll deep-copies a slice of bills so the caller owns every element.
func CloneAll(bills []*Bill) []*Bill {
	out := make([]*Bill, len(bills))
	for i, b := range bills {
		out[i] = b.Clone()
	}
	return out
}

// FormattedTime renders OccurredAt in loc using TimeLayout.
func (b *Bill) FormattedTime(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return b.OccurredAt.In(loc).Format(TimeLayout)
}
