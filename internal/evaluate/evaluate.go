// Package evaluate measures the remote classifier against hand-labeled
// bills kept in a spreadsheet range.
package evaluate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/bill-classifier/internal/classify"
	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"github.com/shopspring/decimal"
)

// sampleColumns is the width of a labeled row; it matches the bill sheet
// layout without the method column.
const sampleColumns = 8

// RangeReader reads cell values from a spreadsheet.
type RangeReader interface {
	ReadRange(ctx context.Context, spreadsheetID, a1 string) ([][]string, error)
}

// Sample is one labeled bill.
type Sample struct {
	Amount       decimal.Decimal
	Label        string
	Counterparty string
	Description  string
	OccurredAt   time.Time
}

// Mismatch is a sample the classifier got wrong.
type Mismatch struct {
	Description  string
	Counterparty string
	Expected     string
	Predicted    string
}

// Report summarizes an evaluation.
type Report struct {
	Correct    int
	Wrong      int
	Errors     int // oracle failures, also counted as wrong
	Skipped    int // rows that could not be read as samples
	Mismatches []Mismatch
}

// Accuracy is Correct over all evaluated samples, 0 when there are none.
func (r *Report) Accuracy() float64 {
	total := r.Correct + r.Wrong
	if total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(total)
}

// ParseSamples reads rows laid out as amount, category, counterparty,
// description, kind, time, source, owner. Rows of another width or with an
// unreadable amount or time are skipped; the header row falls out this way.
func ParseSamples(rows [][]string, loc *time.Location) ([]Sample, int) {
	var samples []Sample
	skipped := 0
	for _, row := range rows {
		if len(row) != sampleColumns {
			skipped++
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(row[0]))
		if err != nil {
			skipped++
			continue
		}
		at, err := time.ParseInLocation(domain.TimeLayout, strings.TrimSpace(row[5]), loc)
		if err != nil {
			skipped++
			continue
		}
		samples = append(samples, Sample{
			Amount:       amount,
			Label:        strings.TrimSpace(row[1]),
			Counterparty: strings.TrimSpace(row[2]),
			Description:  strings.TrimSpace(row[3]),
			OccurredAt:   at,
		})
	}
	return samples, skipped
}

// Evaluator runs the oracle over labeled samples.
type Evaluator struct {
	reader        RangeReader
	oracle        classify.Oracle
	spreadsheetID string
	location      *time.Location
}

// NewEvaluator creates an evaluator reading from spreadsheetID.
func NewEvaluator(reader RangeReader, oracle classify.Oracle, spreadsheetID string, loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{reader: reader, oracle: oracle, spreadsheetID: spreadsheetID, location: loc}
}

// Evaluate classifies every sample in a1 and compares with its label.
// Only a failure to read the range is returned as an error.
func (e *Evaluator) Evaluate(ctx context.Context, a1 string) (*Report, error) {
	log := logger.FromContext(ctx)

	rows, err := e.reader.ReadRange(ctx, e.spreadsheetID, a1)
	if err != nil {
		return nil, fmt.Errorf("Evaluate: %w", err)
	}
	samples, skipped := ParseSamples(rows, e.location)
	log.Info().Int("samples", len(samples)).Int("skipped", skipped).Msg("Loaded labeled samples")

	report := &Report{Skipped: skipped}
	for _, s := range samples {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("Evaluate: %w", ctx.Err())
		}

		predicted, err := e.oracle.Classify(ctx, classify.Request{
			Description:  s.Description,
			Counterparty: s.Counterparty,
			Amount:       s.Amount,
			OccurredAt:   s.OccurredAt,
		})
		if err != nil {
			log.Warn().Err(err).Str("description", s.Description).Msg("Classifier call failed")
			report.Errors++
		}
		predicted = strings.TrimSpace(predicted)

		if err == nil && predicted == s.Label {
			report.Correct++
			continue
		}
		report.Wrong++
		report.Mismatches = append(report.Mismatches, Mismatch{
			Description:  s.Description,
			Counterparty: s.Counterparty,
			Expected:     s.Label,
			Predicted:    predicted,
		})
	}

	log.Info().
		Int("correct", report.Correct).
		Int("wrong", report.Wrong).
		Int("errors", report.Errors).
		Float64("accuracy", report.Accuracy()).
		Int64("usage", e.oracle.Usage()).
		Msg("Evaluation finished")
	return report, nil
}
