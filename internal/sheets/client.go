// Package sheets wraps the Google Sheets v4 API with the handful of
// operations the bill pipeline needs: reading rule tables, writing bill rows,
// managing monthly tabs and styling them.
package sheets

import (
	"context"
	"fmt"

	"github.com/dvloznov/bill-classifier/internal/logger"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// SheetInfo describes one tab of a spreadsheet.
type SheetInfo struct {
	ID       int64
	Title    string
	Index    int64
	RowCount int64
}

// Client is a Sheets API client bound to nothing but credentials; every
// call names the spreadsheet it targets.
type Client struct {
	svc   *gsheets.Service
	retry RetryPolicy
}

// NewClient creates a Sheets client. An empty credentialsFile uses
// Application Default Credentials.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating sheets service: %w", err)
	}

	return &Client{svc: svc, retry: DefaultRetryPolicy()}, nil
}

// ReadRange returns the formatted cell values of an A1 range. Rows are
// returned as the API gives them, so trailing empty cells are absent.
func (c *Client) ReadRange(ctx context.Context, spreadsheetID, a1 string) ([][]string, error) {
	var resp *gsheets.ValueRange
	err := c.retry.Do(ctx, "ReadRange", func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(spreadsheetID, a1).
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ReadRange: %s: %w", a1, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = fmt.Sprint(cell)
		}
	}
	return rows, nil
}

// WriteRange overwrites an A1 range. Values are parsed as if typed by a user,
// so strings starting with "=" become formulas.
func (c *Client) WriteRange(ctx context.Context, spreadsheetID, a1 string, rows [][]interface{}) error {
	log := logger.FromContext(ctx)

	vr := &gsheets.ValueRange{Range: a1, Values: rows}
	err := c.retry.Do(ctx, "WriteRange", func() error {
		_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, a1, vr).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("WriteRange: %s: %w", a1, err)
	}

	log.Debug().Str("range", a1).Int("rows", len(rows)).Msg("Wrote sheet range")
	return nil
}

// ListSheets returns the tabs of a spreadsheet in display order.
func (c *Client) ListSheets(ctx context.Context, spreadsheetID string) ([]SheetInfo, error) {
	var resp *gsheets.Spreadsheet
	err := c.retry.Do(ctx, "ListSheets", func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Get(spreadsheetID).
			Fields("sheets.properties").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ListSheets: %w", err)
	}

	infos := make([]SheetInfo, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		info := SheetInfo{
			ID:    s.Properties.SheetId,
			Title: s.Properties.Title,
			Index: s.Properties.Index,
		}
		if s.Properties.GridProperties != nil {
			info.RowCount = s.Properties.GridProperties.RowCount
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// BatchUpdate applies structural and formatting requests in one call.
func (c *Client) BatchUpdate(ctx context.Context, spreadsheetID string, reqs []*gsheets.Request) (*gsheets.BatchUpdateSpreadsheetResponse, error) {
	if len(reqs) == 0 {
		return &gsheets.BatchUpdateSpreadsheetResponse{}, nil
	}

	var resp *gsheets.BatchUpdateSpreadsheetResponse
	err := c.retry.Do(ctx, "BatchUpdate", func() error {
		var err error
		resp, err = c.svc.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
			Requests: reqs,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("BatchUpdate: %d requests: %w", len(reqs), err)
	}
	return resp, nil
}

// AddSheet creates a tab and returns its sheet id.
func (c *Client) AddSheet(ctx context.Context, spreadsheetID, title string, index int64) (int64, error) {
	resp, err := c.BatchUpdate(ctx, spreadsheetID, []*gsheets.Request{AddSheetRequest(title, index)})
	if err != nil {
		return 0, fmt.Errorf("AddSheet: %q: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("AddSheet: %q: empty reply", title)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}
