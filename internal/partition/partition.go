// Package partition splits classified bills into the buckets the bill
// spreadsheet is laid out by.
package partition

import (
	"github.com/dvloznov/bill-classifier/internal/domain"
)

// Result holds the buckets. Within each bucket bills keep their input
// order.
type Result struct {
	Expense  []*domain.Bill // expenses categorized by exact rule
	Regex    []*domain.Bill
	Temporal []*domain.Bill // produce, whether by exact rule or clustering
	LLM      []*domain.Bill
	Unknown  []*domain.Bill
	Other    []*domain.Bill // neither income nor expense
	Skip     []*domain.Bill // Skip category or zero amount
	Income   []*domain.Bill
}

// Split assigns every bill to exactly one bucket. Expense bills are tested
// in this order: unknown, LLM, regex, temporal cluster or produce, skip
// category, zero amount, and the rest are plain expenses.
func Split(bills []*domain.Bill) *Result {
	r := &Result{}
	for _, b := range bills {
		switch b.Kind {
		case domain.KindIncome:
			r.Income = append(r.Income, b)
			continue
		case domain.KindOther:
			r.Other = append(r.Other, b)
			continue
		}

		switch {
		case b.Category == domain.CategoryUnknown:
			r.Unknown = append(r.Unknown, b)
		case b.Method == domain.MethodLLMClassified:
			r.LLM = append(r.LLM, b)
		case b.Method == domain.MethodRegexMatch:
			r.Regex = append(r.Regex, b)
		case b.Method == domain.MethodTemporalCluster, b.Category == domain.CategoryProduce:
			r.Temporal = append(r.Temporal, b)
		case b.Category == domain.CategorySkip, b.Amount.IsZero():
			r.Skip = append(r.Skip, b)
		default:
			r.Expense = append(r.Expense, b)
		}
	}
	return r
}

// Bucket is one named partition.
type Bucket struct {
	Name  string
	Bills []*domain.Bill
}

// Buckets returns every bucket in display order: plain, regex, temporal,
// LLM, unknown, other, skip, and income last.
func (r *Result) Buckets() []Bucket {
	return []Bucket{
		{"expense", r.Expense},
		{"regex", r.Regex},
		{"temporal", r.Temporal},
		{"llm", r.LLM},
		{"unknown", r.Unknown},
		{"other", r.Other},
		{"skip", r.Skip},
		{"income", r.Income},
	}
}

// ExpenseRows returns the expense sheet: every bucket concatenated in
// display order.
func (r *Result) ExpenseRows() []*domain.Bill {
	out := make([]*domain.Bill, 0, r.Summary().Total)
	for _, b := range r.Buckets() {
		out = append(out, b.Bills...)
	}
	return out
}

// IncomeRows returns the income block written beside the expense sheet.
func (r *Result) IncomeRows() []*domain.Bill {
	return r.Income
}

// Summary counts bills per bucket.
type Summary struct {
	Expense  int
	Regex    int
	Temporal int
	LLM      int
	Unknown  int
	Other    int
	Skip     int
	Income   int
	Total    int
}

// Summary reports bucket sizes.
func (r *Result) Summary() Summary {
	s := Summary{
		Expense:  len(r.Expense),
		Regex:    len(r.Regex),
		Temporal: len(r.Temporal),
		LLM:      len(r.LLM),
		Unknown:  len(r.Unknown),
		Other:    len(r.Other),
		Skip:     len(r.Skip),
		Income:   len(r.Income),
	}
	s.Total = s.Expense + s.Regex + s.Temporal + s.LLM + s.Unknown + s.Other + s.Skip + s.Income
	return s
}

// Coverage is the share of expense bills that ended up with a category,
// in [0, 1]. It is 1 when there are no expense bills.
func (s Summary) Coverage() float64 {
	expenses := s.Expense + s.Regex + s.Temporal + s.LLM + s.Unknown
	if expenses == 0 {
		return 1
	}
	return float64(expenses-s.Unknown) / float64(expenses)
}
