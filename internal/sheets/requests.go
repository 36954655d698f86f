package sheets

import (
	"fmt"
	"strconv"
	"strings"

	gsheets "google.golang.org/api/sheets/v4"
)

// Palette is the cycle of background colors used for dropdown values.
var Palette = []string{
	"#BACEFD", "#FED4A4", "#F76964", "#F8E6AB", "#A9EFE6",
	"#FDE2E2", "#ECE2FE", "#D9F5D6", "#F8DEF8", "#EEF6C6",
}

// ColumnLetter converts a zero-based column index to its A1 letters
// (0 -> A, 25 -> Z, 26 -> AA).
func ColumnLetter(index int) string {
	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// QuoteTitle quotes a sheet title for use in an A1 reference.
func QuoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// A1 builds "'title'!<from>:<to>".
func A1(title, from, to string) string {
	return fmt.Sprintf("%s!%s:%s", QuoteTitle(title), from, to)
}

// AddSheetRequest creates a tab at index.
func AddSheetRequest(title string, index int64) *gsheets.Request {
	props := &gsheets.SheetProperties{Title: title, Index: index}
	if index == 0 {
		props.ForceSendFields = []string{"Index"}
	}
	return &gsheets.Request{
		AddSheet: &gsheets.AddSheetRequest{Properties: props},
	}
}

// AppendRowsRequest grows a tab by n rows.
func AppendRowsRequest(sheetID, n int64) *gsheets.Request {
	return &gsheets.Request{
		AppendDimension: &gsheets.AppendDimensionRequest{
			SheetId:   sheetID,
			Dimension: "ROWS",
			Length:    n,
		},
	}
}

// ColumnRange selects rows [startRow, endRow) of one zero-based column.
func ColumnRange(sheetID int64, column, startRow, endRow int64) *gsheets.GridRange {
	gr := &gsheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    startRow,
		EndRowIndex:      endRow,
		StartColumnIndex: column,
		EndColumnIndex:   column + 1,
	}
	gr.ForceSendFields = []string{"SheetId", "StartRowIndex", "StartColumnIndex"}
	return gr
}

// ListValidationRequests restricts a range to a dropdown of values and
// colors each value with the palette, cycling when there are more values
// than colors.
func ListValidationRequests(gr *gsheets.GridRange, values []string) []*gsheets.Request {
	conds := make([]*gsheets.ConditionValue, len(values))
	for i, v := range values {
		conds[i] = &gsheets.ConditionValue{UserEnteredValue: v}
	}

	reqs := []*gsheets.Request{{
		SetDataValidation: &gsheets.SetDataValidationRequest{
			Range: gr,
			Rule: &gsheets.DataValidationRule{
				Condition: &gsheets.BooleanCondition{
					Type:   "ONE_OF_LIST",
					Values: conds,
				},
				ShowCustomUi: true,
			},
		},
	}}

	for i, v := range values {
		reqs = append(reqs, &gsheets.Request{
			AddConditionalFormatRule: &gsheets.AddConditionalFormatRuleRequest{
				Index: int64(i),
				Rule: &gsheets.ConditionalFormatRule{
					Ranges: []*gsheets.GridRange{gr},
					BooleanRule: &gsheets.BooleanRule{
						Condition: &gsheets.BooleanCondition{
							Type:   "TEXT_EQ",
							Values: []*gsheets.ConditionValue{{UserEnteredValue: v}},
						},
						Format: &gsheets.CellFormat{
							BackgroundColor: HexColor(Palette[i%len(Palette)]),
						},
					},
				},
			},
		})
	}
	return reqs
}

// NumberFormatRequest applies a number pattern such as "#,##0" to a range.
func NumberFormatRequest(gr *gsheets.GridRange, pattern string) *gsheets.Request {
	return &gsheets.Request{
		RepeatCell: &gsheets.RepeatCellRequest{
			Range: gr,
			Cell: &gsheets.CellData{
				UserEnteredFormat: &gsheets.CellFormat{
					NumberFormat: &gsheets.NumberFormat{Type: "NUMBER", Pattern: pattern},
				},
			},
			Fields: "userEnteredFormat.numberFormat",
		},
	}
}

// HexColor parses "#RRGGBB". Malformed input yields white.
func HexColor(hex string) *gsheets.Color {
	s := strings.TrimPrefix(hex, "#")
	v, err := strconv.ParseUint(s, 16, 32)
	if len(s) != 6 || err != nil {
		return &gsheets.Color{Red: 1, Green: 1, Blue: 1}
	}
	return &gsheets.Color{
		Red:   float64(v>>16&0xFF) / 255,
		Green: float64(v>>8&0xFF) / 255,
		Blue:  float64(v&0xFF) / 255,
	}
}
