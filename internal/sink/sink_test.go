package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/partition"
	"github.com/dvloznov/bill-classifier/internal/sheets"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gsheets "google.golang.org/api/sheets/v4"
)

var cst = time.FixedZone("CST", 8*3600)

func bill(desc string, amount string, kind domain.Kind, c domain.Category, m domain.Method) *domain.Bill {
	return &domain.Bill{
		Amount:       decimal.RequireFromString(amount),
		Counterparty: "shop",
		Description:  desc,
		Kind:         kind,
		OrderID:      "order-" + desc,
		OccurredAt:   time.Date(2024, 5, 20, 4, 30, 0, 0, time.UTC),
		Source:       domain.SourceAlipay,
		Owner:        "alice",
		Category:     c,
		Method:       m,
	}
}

func sampleResult() *partition.Result {
	return partition.Split([]*domain.Bill{
		bill("lunch", "25.5", domain.KindExpense, domain.CategoryDining, domain.MethodExactMatch),
		bill("taxi", "30", domain.KindExpense, domain.CategoryTransport, domain.MethodRegexMatch),
		bill("mystery", "8", domain.KindExpense, domain.CategoryUnknown, domain.MethodUnrecognized),
		bill("salary", "1000", domain.KindIncome, domain.CategorySkip, domain.MethodUnrecognized),
	})
}

func TestRow(t *testing.T) {
	b := bill("lunch", "25.5", domain.KindExpense, domain.CategoryDining, domain.MethodExactMatch)

	row := Row(b, cst)

	assert.Len(t, row, RowWidth)
	assert.Equal(t, []interface{}{
		"25.50", "餐饮", "shop", "lunch", "支出", "2024-05-20 12:30:00", "alipay", "alice", "完全匹配",
	}, row)
}

func TestBillKey(t *testing.T) {
	a := bill("lunch", "25.5", domain.KindExpense, domain.CategoryUnknown, domain.MethodUnrecognized)
	b := a.Clone()
	b.Assign(domain.CategoryDining, domain.MethodLLMClassified)

	assert.Equal(t, BillKey(a), BillKey(b), "classification does not change the key")

	c := a.Clone()
	c.Owner = "bob"
	assert.NotEqual(t, BillKey(a), BillKey(c))
}

func TestReportMonth(t *testing.T) {
	tests := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), "202405"},
		{time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), "202405"},
		{time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC), "202404"},
		{time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), "202312"},
	}
	for _, tt := range tests {
		t.Run(tt.now.Format("2006-01-02"), func(t *testing.T) {
			assert.Equal(t, tt.want, ReportMonth(tt.now).String())
		})
	}
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("202403")
	require.NoError(t, err)
	assert.Equal(t, Month{Year: 2024, Month: time.March}, m)
	assert.Equal(t, "账单明细 202403", BillSheetTitle(m))

	_, err = ParseMonth("2024-03")
	assert.Error(t, err)
}

func TestSummaryFormulas(t *testing.T) {
	titles := [][]string{
		{"类别"},
		{"餐饮"},
		{"交通"},
		{},
		{"合计"},
		{"skip"},
		{"退款"},
	}

	got := SummaryFormulas(titles, "F", "账单明细 202405", 42)

	require.Len(t, got, 6)
	assert.Equal(t, "=SUMIF('账单明细 202405'!B1:B42, A2, '账单明细 202405'!A1:A42)", got[0][0])
	assert.Equal(t, "=SUMIF('账单明细 202405'!B1:B42, A3, '账单明细 202405'!A1:A42)", got[1][0])
	assert.Nil(t, got[2][0])
	assert.Equal(t, "=SUM(F2:F4) - F7", got[3][0])
	assert.Equal(t, "=SUMIF('账单明细 202405'!B1:B42, A6, '账单明细 202405'!A1:A42)", got[4][0])
}

func TestSummaryFormulas_TotalAfterSkip(t *testing.T) {
	titles := [][]string{{"类别"}, {"餐饮"}, {"skip"}, {"杂项"}, {"合计"}}

	got := SummaryFormulas(titles, "B", "t", 0)

	assert.Equal(t, "=SUM(B2:B2)", got[3][0])
	assert.Equal(t, "=SUMIF('t'!B1:B1, A2, 't'!A1:A1)", got[0][0])
}

type write struct {
	a1   string
	rows [][]interface{}
}

type fakeSheets struct {
	tabs    []sheets.SheetInfo
	titles  [][]string
	writes  []write
	batches [][]*gsheets.Request
	added   []string
	listErr error
}

func (f *fakeSheets) ReadRange(ctx context.Context, id, a1 string) ([][]string, error) {
	return f.titles, nil
}

func (f *fakeSheets) WriteRange(ctx context.Context, id, a1 string, rows [][]interface{}) error {
	f.writes = append(f.writes, write{a1, rows})
	return nil
}

func (f *fakeSheets) ListSheets(ctx context.Context, id string) ([]sheets.SheetInfo, error) {
	return f.tabs, f.listErr
}

func (f *fakeSheets) BatchUpdate(ctx context.Context, id string, reqs []*gsheets.Request) (*gsheets.BatchUpdateSpreadsheetResponse, error) {
	f.batches = append(f.batches, reqs)
	return &gsheets.BatchUpdateSpreadsheetResponse{}, nil
}

func (f *fakeSheets) AddSheet(ctx context.Context, id, title string, index int64) (int64, error) {
	f.added = append(f.added, title)
	return 99, nil
}

func TestSheetsSink_Write(t *testing.T) {
	svc := &fakeSheets{
		tabs:   []sheets.SheetInfo{{ID: 7, Title: "月度明细"}},
		titles: [][]string{{"类别"}, {"餐饮"}, {"交通"}},
	}
	s := NewSheetsSink(svc, SheetsOptions{
		SpreadsheetID: "sheet",
		SummaryTitle:  "月度明细",
		Month:         Month{Year: 2024, Month: time.May},
		Location:      cst,
	})

	require.NoError(t, s.Write(context.Background(), sampleResult()))

	assert.Equal(t, []string{"账单明细 202405"}, svc.added)
	require.Len(t, svc.writes, 3)

	assert.Equal(t, "'账单明细 202405'!A1:I4", svc.writes[0].a1)
	assert.Equal(t, "lunch", svc.writes[0].rows[0][3])
	assert.Equal(t, "salary", svc.writes[0].rows[3][3], "income closes the expense block")

	assert.Equal(t, "'账单明细 202405'!K1:S1", svc.writes[1].a1)

	assert.Equal(t, "'月度明细'!F2:F3", svc.writes[2].a1)
	assert.Equal(t, "=SUMIF('账单明细 202405'!B1:B4, A2, '账单明细 202405'!A1:A4)", svc.writes[2].rows[0][0])

	require.Len(t, svc.batches, 2)
	validation := svc.batches[0]
	assert.Equal(t, 2+len(domain.Categories())+len(domain.Methods()), len(validation))
	assert.Equal(t, int64(99), validation[0].SetDataValidation.Range.SheetId)
	assert.Equal(t, int64(1), validation[0].SetDataValidation.Range.StartColumnIndex)

	format := svc.batches[1][0].RepeatCell
	assert.Equal(t, int64(7), format.Range.SheetId)
	assert.Equal(t, int64(5), format.Range.StartColumnIndex)
	assert.Equal(t, "#,##0", format.Cell.UserEnteredFormat.NumberFormat.Pattern)
}

func TestSheetsSink_ExistingTabAndGrowth(t *testing.T) {
	var bills []*domain.Bill
	for i := 0; i < 250; i++ {
		bills = append(bills, bill(fmt.Sprint(i), "1", domain.KindExpense, domain.CategoryDining, domain.MethodExactMatch))
	}
	svc := &fakeSheets{tabs: []sheets.SheetInfo{{ID: 3, Title: "账单明细 202405"}}}
	s := NewSheetsSink(svc, SheetsOptions{SpreadsheetID: "sheet", SummaryTitle: "月度明细", Month: Month{2024, time.May}})

	require.NoError(t, s.Write(context.Background(), partition.Split(bills)))

	assert.Empty(t, svc.added)
	grow := svc.batches[0][0].AppendDimension
	require.NotNil(t, grow)
	assert.Equal(t, int64(3), grow.SheetId)
	assert.Equal(t, int64(300), grow.Length)
	require.Len(t, svc.writes, 1, "no income and no summary tab")
}

func TestSheetsSink_DryRun(t *testing.T) {
	svc := &fakeSheets{listErr: errors.New("must not be called")}
	s := NewSheetsSink(svc, SheetsOptions{SpreadsheetID: "sheet", Month: Month{2024, time.May}, DryRun: true})

	require.NoError(t, s.Write(context.Background(), sampleResult()))
	assert.Empty(t, svc.writes)
}

func TestSheetsSink_ListError(t *testing.T) {
	svc := &fakeSheets{listErr: errors.New("quota")}
	s := NewSheetsSink(svc, SheetsOptions{SpreadsheetID: "sheet", Month: Month{2024, time.May}})

	err := s.Write(context.Background(), sampleResult())
	assert.ErrorContains(t, err, "quota")
}

type mockNotion struct {
	pages   []notionapi.Page
	created []notionapi.Properties
	updated map[string]notionapi.Properties
	queries int
}

func (m *mockNotion) CreatePage(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
	m.created = append(m.created, props)
	return &notionapi.Page{ID: notionapi.ObjectID(fmt.Sprintf("new-%d", len(m.created)))}, nil
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	if m.updated == nil {
		m.updated = map[string]notionapi.Properties{}
	}
	m.updated[pageID] = props
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

// QueryDatabase returns one page per call to exercise pagination.
func (m *mockNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	i := m.queries
	m.queries++
	if i >= len(m.pages) {
		return &notionapi.DatabaseQueryResponse{}, nil
	}
	return &notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{m.pages[i]},
		HasMore:    i+1 < len(m.pages),
		NextCursor: notionapi.Cursor(fmt.Sprint(i + 1)),
	}, nil
}

func mirrored(id string, b *domain.Bill, category, method string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			propBillKey: &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: BillKey(b)}}},
			propCategory: &notionapi.SelectProperty{Select: notionapi.Option{Name: category}},
			propMethod:   &notionapi.SelectProperty{Select: notionapi.Option{Name: method}},
		},
	}
}

func TestNotionSink_Write(t *testing.T) {
	res := sampleResult()
	rows := res.ExpenseRows()
	lunch, taxi := rows[0], rows[1]

	svc := &mockNotion{pages: []notionapi.Page{
		mirrored("p-lunch", lunch, lunch.Category.String(), lunch.Method.String()),
		mirrored("p-taxi", taxi, "unknown", "无法识别"),
	}}
	s := NewNotionSink(svc, "db", cst, false)

	require.NoError(t, s.Write(context.Background(), res))

	assert.Equal(t, 2, svc.queries, "follows the cursor to the last page")
	assert.Len(t, svc.created, 2, "mystery and salary are new")
	require.Contains(t, svc.updated, "p-taxi")
	assert.Equal(t, notionapi.SelectProperty{Select: notionapi.Option{Name: "交通"}}, svc.updated["p-taxi"][propCategory])

	props := svc.created[0]
	assert.Equal(t, notionapi.NumberProperty{Number: 8}, props[propAmount])
	date := props[propDate].(notionapi.DateProperty)
	assert.Equal(t, 12, time.Time(*date.Date.Start).Hour())
}

func TestNotionSink_DryRun(t *testing.T) {
	svc := &mockNotion{}
	s := NewNotionSink(svc, "db", cst, true)

	require.NoError(t, s.Write(context.Background(), sampleResult()))

	assert.Empty(t, svc.created)
	assert.Empty(t, svc.updated)
}

type fakeInserter struct {
	batches [][]*BillRow
	err     error
}

func (f *fakeInserter) Put(ctx context.Context, src interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, src.([]*BillRow))
	return nil
}

func TestBigQuerySink_Write(t *testing.T) {
	ins := &fakeInserter{}
	s := NewBigQuerySinkWithInserter(ins, cst, false)

	require.NoError(t, s.Write(context.Background(), sampleResult()))

	require.Len(t, ins.batches, 1)
	rows := ins.batches[0]
	require.Len(t, rows, 4)

	assert.Equal(t, s.RunID(), rows[0].RunID)
	assert.Equal(t, "expense", rows[0].Bucket)
	assert.Equal(t, "regex", rows[1].Bucket)
	assert.Equal(t, "unknown", rows[2].Bucket)
	assert.Equal(t, "income", rows[3].Bucket)
	assert.Equal(t, "51/2", rows[0].Amount.String())
	assert.Equal(t, 20, rows[0].BillDate.Day)
	assert.True(t, rows[0].OrderID.Valid)
}

func TestBigQuerySink_Batches(t *testing.T) {
	var bills []*domain.Bill
	for i := 0; i < archiveBatchSize+1; i++ {
		bills = append(bills, bill(fmt.Sprint(i), "1", domain.KindExpense, domain.CategoryDining, domain.MethodExactMatch))
	}
	ins := &fakeInserter{}

	require.NoError(t, NewBigQuerySinkWithInserter(ins, cst, false).Write(context.Background(), partition.Split(bills)))

	require.Len(t, ins.batches, 2)
	assert.Len(t, ins.batches[1], 1)
}

func TestBigQuerySink_ErrorAndDryRun(t *testing.T) {
	ins := &fakeInserter{err: errors.New("denied")}

	err := NewBigQuerySinkWithInserter(ins, cst, false).Write(context.Background(), sampleResult())
	assert.ErrorContains(t, err, "denied")

	assert.NoError(t, NewBigQuerySinkWithInserter(ins, cst, true).Write(context.Background(), sampleResult()))
}

type recordingSink struct {
	name string
	log  *[]string
	err  error
}

func (r recordingSink) Name() string { return r.name }

func (r recordingSink) Write(ctx context.Context, res *partition.Result) error {
	*r.log = append(*r.log, r.name)
	return r.err
}

func TestMulti(t *testing.T) {
	var calls []string
	m := Multi{
		recordingSink{name: "a", log: &calls},
		recordingSink{name: "b", log: &calls, err: errors.New("boom")},
		recordingSink{name: "c", log: &calls},
	}

	err := m.Write(context.Background(), sampleResult())

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "sink b:"))
	assert.Equal(t, []string{"a", "b"}, calls)
}
