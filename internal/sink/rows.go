package sink

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/google/uuid"
)

// RowWidth is the number of cells Row produces.
const RowWidth = 9

// Row serializes a bill in sheet column order: amount, category, counterparty,
// description, kind, time, source, owner, method.
func Row(b *domain.Bill, loc *time.Location) []interface{} {
	return []interface{}{
		b.Amount.StringFixed(2),
		b.Category.String(),
		b.Counterparty,
		b.Description,
		b.Kind.String(),
		b.FormattedTime(loc),
		string(b.Source),
		b.Owner,
		b.Method.String(),
	}
}

// Rows serializes bills with Row.
func Rows(bills []*domain.Bill, loc *time.Location) [][]interface{} {
	out := make([][]interface{}, len(bills))
	for i, b := range bills {
		out[i] = Row(b, loc)
	}
	return out
}

// BillKey identifies a bill across runs. It depends only on fields fixed
// at ingestion, so reclassifying a bill keeps its key.
func BillKey(b *domain.Bill) string {
	name := strings.Join([]string{
		string(b.Source),
		b.Owner,
		b.OrderID,
		b.OccurredAt.UTC().Format(time.RFC3339),
		b.Counterparty,
		b.Description,
	}, "\x1f")
	return uuid.NewSHA1(billNamespace, []byte(name)).String()
}

// Month is a calendar month of bills.
type Month struct {
	Year  int
	Month time.Month
}

// String formats the month as YYYYMM.
func (m Month) String() string {
	return fmt.Sprintf("%04d%02d", m.Year, int(m.Month))
}

// ParseMonth parses YYYYMM.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("200601", s)
	if err != nil {
		return Month{}, fmt.Errorf("ParseMonth: %q: want YYYYMM: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// ReportMonth picks the month a run reports on. From the 15th onward it is
// the current month; earlier, the exports are assumed to cover last month.
func ReportMonth(now time.Time) Month {
	if now.Day() < 15 {
		now = now.AddDate(0, 0, -20)
	}
	return Month{Year: now.Year(), Month: now.Month()}
}

// BillSheetTitle names the monthly bill tab.
func BillSheetTitle(m Month) string {
	return "账单明细 " + m.String()
}
