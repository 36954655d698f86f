package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"github.com/dvloznov/bill-classifier/internal/partition"
	"github.com/dvloznov/bill-classifier/internal/sheets"
	gsheets "google.golang.org/api/sheets/v4"
)

// SheetsService is the subset of the Sheets client the sink uses.
type SheetsService interface {
	ReadRange(ctx context.Context, spreadsheetID, a1 string) ([][]string, error)
	WriteRange(ctx context.Context, spreadsheetID, a1 string, rows [][]interface{}) error
	ListSheets(ctx context.Context, spreadsheetID string) ([]sheets.SheetInfo, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, reqs []*gsheets.Request) (*gsheets.BatchUpdateSpreadsheetResponse, error)
	AddSheet(ctx context.Context, spreadsheetID, title string, index int64) (int64, error)
}

const (
	// growThreshold is the row count above which the tab is extended
	// before writing.
	growThreshold = 200

	categoryColumn = 1 // B
	methodColumn   = 8 // I

	incomeFirstColumn = "K"
	incomeLastColumn  = "S"

	summaryTotalLabel  = "合计"
	summaryRefundLabel = "退款"
	summaryNumberFmt   = "#,##0"
)

// SheetsOptions configures a SheetsSink.
type SheetsOptions struct {
	SpreadsheetID string
	SummaryTitle  string
	Month         Month
	Location      *time.Location
	DryRun        bool
}

// SheetsSink writes the monthly bill tab and refreshes the summary tab.
type SheetsSink struct {
	svc  SheetsService
	opts SheetsOptions
}

// NewSheetsSink creates a sink over svc.
func NewSheetsSink(svc SheetsService, opts SheetsOptions) *SheetsSink {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &SheetsSink{svc: svc, opts: opts}
}

// Name implements Sink.
func (s *SheetsSink) Name() string { return "sheets" }

// Write implements Sink. Expense rows fill A:I, income rows fill K:S, and
// the summary tab's column for the month is pointed at the new tab.
func (s *SheetsSink) Write(ctx context.Context, res *partition.Result) error {
	log := logger.FromContext(ctx)

	title := BillSheetTitle(s.opts.Month)
	expense := Rows(res.ExpenseRows(), s.opts.Location)
	income := Rows(res.IncomeRows(), s.opts.Location)

	if s.opts.DryRun {
		log.Info().
			Str("sheet", title).
			Int("expense_rows", len(expense)).
			Int("income_rows", len(income)).
			Msg("[DRY RUN] Would write bill sheet")
		return nil
	}

	tabs, err := s.svc.ListSheets(ctx, s.opts.SpreadsheetID)
	if err != nil {
		return fmt.Errorf("SheetsSink.Write: %w", err)
	}

	sheetID, found := findSheet(tabs, title)
	if !found {
		sheetID, err = s.svc.AddSheet(ctx, s.opts.SpreadsheetID, title, int64(len(tabs)))
		if err != nil {
			return fmt.Errorf("SheetsSink.Write: %w", err)
		}
		log.Info().Str("sheet", title).Int64("sheet_id", sheetID).Msg("Created bill sheet")
	}

	n := int64(len(expense))
	var reqs []*gsheets.Request
	if n > growThreshold {
		reqs = append(reqs, sheets.AppendRowsRequest(sheetID, (n/100+1)*100))
	}
	if n > 0 {
		reqs = append(reqs, sheets.ListValidationRequests(
			sheets.ColumnRange(sheetID, categoryColumn, 0, n), categoryLabels())...)
		reqs = append(reqs, sheets.ListValidationRequests(
			sheets.ColumnRange(sheetID, methodColumn, 0, n), methodLabels())...)
	}
	if _, err := s.svc.BatchUpdate(ctx, s.opts.SpreadsheetID, reqs); err != nil {
		return fmt.Errorf("SheetsSink.Write: formatting %q: %w", title, err)
	}

	if n > 0 {
		a1 := sheets.A1(title, "A1", fmt.Sprintf("%s%d", sheets.ColumnLetter(RowWidth-1), n))
		if err := s.svc.WriteRange(ctx, s.opts.SpreadsheetID, a1, expense); err != nil {
			return fmt.Errorf("SheetsSink.Write: %w", err)
		}
	}
	if len(income) > 0 {
		a1 := sheets.A1(title, incomeFirstColumn+"1", fmt.Sprintf("%s%d", incomeLastColumn, len(income)))
		if err := s.svc.WriteRange(ctx, s.opts.SpreadsheetID, a1, income); err != nil {
			return fmt.Errorf("SheetsSink.Write: %w", err)
		}
	}

	log.Info().
		Str("sheet", title).
		Int("expense_rows", len(expense)).
		Int("income_rows", len(income)).
		Msg("Wrote bill sheet")

	summaryID, found := findSheet(tabs, s.opts.SummaryTitle)
	if !found {
		log.Warn().Str("sheet", s.opts.SummaryTitle).Msg("Summary sheet not found, skipping summary update")
		return nil
	}
	if err := s.updateSummary(ctx, summaryID, title, len(expense)); err != nil {
		return fmt.Errorf("SheetsSink.Write: %w", err)
	}
	return nil
}

// updateSummary fills the month's column of the summary tab with SUMIF
// formulas over the bill tab, keyed by the category titles in column A.
func (s *SheetsSink) updateSummary(ctx context.Context, summaryID int64, billTitle string, n int) error {
	log := logger.FromContext(ctx)

	titles, err := s.svc.ReadRange(ctx, s.opts.SpreadsheetID, sheets.A1(s.opts.SummaryTitle, "A1", "A"))
	if err != nil {
		return fmt.Errorf("updateSummary: %w", err)
	}
	if len(titles) < 2 {
		log.Warn().Str("sheet", s.opts.SummaryTitle).Msg("Summary sheet has no category rows")
		return nil
	}

	col := sheets.ColumnLetter(int(s.opts.Month.Month))
	values := SummaryFormulas(titles, col, billTitle, n)

	present := make(map[string]bool, len(titles))
	for _, row := range titles {
		if len(row) > 0 {
			present[strings.TrimSpace(row[0])] = true
		}
	}
	for _, c := range domain.ExpenseCategories() {
		if !present[c.String()] {
			log.Warn().Str("category", c.String()).Msg("Category missing from summary sheet")
		}
	}

	last := len(titles)
	a1 := sheets.A1(s.opts.SummaryTitle, fmt.Sprintf("%s2", col), fmt.Sprintf("%s%d", col, last))
	if err := s.svc.WriteRange(ctx, s.opts.SpreadsheetID, a1, values); err != nil {
		return fmt.Errorf("updateSummary: %w", err)
	}

	format := sheets.NumberFormatRequest(
		sheets.ColumnRange(summaryID, int64(s.opts.Month.Month), 1, int64(last)), summaryNumberFmt)
	if _, err := s.svc.BatchUpdate(ctx, s.opts.SpreadsheetID, []*gsheets.Request{format}); err != nil {
		return fmt.Errorf("updateSummary: %w", err)
	}

	log.Info().
		Str("sheet", s.opts.SummaryTitle).
		Str("column", col).
		Int("rows", last-1).
		Msg("Updated monthly summary")
	return nil
}

// SummaryFormulas builds the cell values for rows 2..len(titles) of one
// summary column. titles is column A starting at row 1. Blank titles get a
// nil cell, which the Sheets API leaves untouched. The total row sums every
// row above the skip row and subtracts the refund row.
func SummaryFormulas(titles [][]string, col, billTitle string, n int) [][]interface{} {
	label := func(i int) string {
		if len(titles[i]) == 0 {
			return ""
		}
		return strings.TrimSpace(titles[i][0])
	}

	skipRow, refundRow := 0, 0
	for i := 1; i < len(titles); i++ {
		switch label(i) {
		case domain.CategorySkip.String():
			if skipRow == 0 {
				skipRow = i + 1
			}
		case summaryRefundLabel:
			if refundRow == 0 {
				refundRow = i + 1
			}
		}
	}

	if n < 1 {
		n = 1
	}
	bill := sheets.QuoteTitle(billTitle)
	out := make([][]interface{}, 0, len(titles)-1)
	for i := 1; i < len(titles); i++ {
		row := i + 1
		switch label(i) {
		case "":
			out = append(out, []interface{}{nil})
		case summaryTotalLabel:
			end := row - 1
			if skipRow > 0 && skipRow-1 < end {
				end = skipRow - 1
			}
			f := fmt.Sprintf("=SUM(%s2:%s%d)", col, col, end)
			if refundRow > 0 {
				f += fmt.Sprintf(" - %s%d", col, refundRow)
			}
			out = append(out, []interface{}{f})
		default:
			out = append(out, []interface{}{fmt.Sprintf(
				"=SUMIF(%s!B1:B%d, A%d, %s!A1:A%d)", bill, n, row, bill, n)})
		}
	}
	return out
}

func findSheet(tabs []sheets.SheetInfo, title string) (int64, bool) {
	for _, t := range tabs {
		if t.Title == title {
			return t.ID, true
		}
	}
	return 0, false
}

func categoryLabels() []string {
	cats := domain.Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.String()
	}
	return out
}

func methodLabels() []string {
	ms := domain.Methods()
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.String()
	}
	return out
}
