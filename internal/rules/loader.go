package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
)

// ErrUnknownCategory is returned when a rule row names a category label that
// is not in the category table.
var ErrUnknownCategory = errors.New("unknown category label")

// Loader produces a rule snapshot.
type Loader interface {
	Load(ctx context.Context) (*Store, error)
}

// RangeReader reads a block of cells. It is satisfied by *sheets.Client.
type RangeReader interface {
	ReadRange(ctx context.Context, spreadsheetID, a1 string) ([][]string, error)
}

// Column pairs of the four tables inside the rule tab. Each pair is
// key, category label, with a header row on top.
const (
	CounterpartyExactColumns    = "A:B"
	DescriptionExactColumns     = "D:E"
	CounterpartyPatternsColumns = "G:H"
	DescriptionPatternsColumns  = "J:K"
)

// SheetLoader reads the rule tables from a spreadsheet tab.
type SheetLoader struct {
	reader        RangeReader
	spreadsheetID string
	sheetTitle    string
}

// NewSheetLoader creates a loader for the given spreadsheet tab.
func NewSheetLoader(reader RangeReader, spreadsheetID, sheetTitle string) *SheetLoader {
	return &SheetLoader{
		reader:        reader,
		spreadsheetID: spreadsheetID,
		sheetTitle:    sheetTitle,
	}
}

// Load reads all four tables. Any read failure or unknown label fails the
// whole load.
func (l *SheetLoader) Load(ctx context.Context) (*Store, error) {
	log := logger.FromContext(ctx)

	var t Tables
	targets := []struct {
		columns string
		dst     *[]Entry
	}{
		{CounterpartyExactColumns, &t.CounterpartyExact},
		{DescriptionExactColumns, &t.DescriptionExact},
		{CounterpartyPatternsColumns, &t.CounterpartyPatterns},
		{DescriptionPatternsColumns, &t.DescriptionPatterns},
	}

	for _, target := range targets {
		a1 := fmt.Sprintf("'%s'!%s", strings.ReplaceAll(l.sheetTitle, "'", "''"), target.columns)
		rows, err := l.reader.ReadRange(ctx, l.spreadsheetID, a1)
		if err != nil {
			return nil, fmt.Errorf("Load: reading %s: %w", a1, err)
		}
		entries, err := ParseEntries(rows)
		if err != nil {
			return nil, fmt.Errorf("Load: %s: %w", a1, err)
		}
		*target.dst = entries
	}

	store := NewStore(t)
	stats := store.Stats()
	log.Info().
		Int("description_exact", stats.DescriptionExact).
		Int("counterparty_exact", stats.CounterpartyExact).
		Int("description_patterns", stats.DescriptionPatterns).
		Int("counterparty_patterns", stats.CounterpartyPatterns).
		Msg("Loaded category rules")

	return store, nil
}

// ParseEntries converts a two-column block into rule entries. The first row
// is a header. Rows with an empty key are ignored.
func ParseEntries(rows [][]string) ([]Entry, error) {
	if len(rows) <= 1 {
		return nil, nil
	}

	entries := make([]Entry, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		label := ""
		if len(row) > 1 {
			label = strings.TrimSpace(row[1])
		}
		c, ok := domain.ParseCategory(label)
		if !ok {
			return nil, fmt.Errorf("row %d key %q label %q: %w", i+2, row[0], label, ErrUnknownCategory)
		}
		entries = append(entries, Entry{Key: row[0], Category: c})
	}
	return entries, nil
}
