package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
)

// Input names one export file: which platform produced it, whose account
// it belongs to, and where to read it.
type Input struct {
	Source domain.Source
	Owner  string
	URI    string
}

// ParseInput parses "source:owner:uri". The URI may itself contain colons.
func ParseInput(s string) (Input, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return Input{}, fmt.Errorf("ParseInput: %q: want source:owner:uri", s)
	}
	src, ok := domain.ParseSource(parts[0])
	if !ok {
		return Input{}, fmt.Errorf("ParseInput: %q: %w", parts[0], ErrUnsupportedSource)
	}
	return Input{Source: src, Owner: parts[1], URI: parts[2]}, nil
}

// Ingester reads and parses export files.
type Ingester struct {
	fetcher  Fetcher
	location *time.Location
}

// NewIngester creates an ingester that interprets export times in loc.
func NewIngester(fetcher Fetcher, loc *time.Location) *Ingester {
	return &Ingester{fetcher: fetcher, location: loc}
}

// Ingest parses every input in order and concatenates the bills. Any
// unreadable or malformed file fails the whole ingest.
func (in *Ingester) Ingest(ctx context.Context, inputs []Input) ([]*domain.Bill, error) {
	log := logger.FromContext(ctx)

	var all []*domain.Bill
	for _, input := range inputs {
		parser, err := ParserFor(input.Source, in.location)
		if err != nil {
			return nil, fmt.Errorf("Ingest: %w", err)
		}
		data, err := in.fetcher.Fetch(ctx, input.URI)
		if err != nil {
			return nil, fmt.Errorf("Ingest: %s: %w", input.URI, err)
		}
		bills, err := parser.Parse(data, input.Owner)
		if err != nil {
			return nil, fmt.Errorf("Ingest: %s: %w", BaseName(input.URI), err)
		}

		log.Info().
			Str("source", string(input.Source)).
			Str("owner", input.Owner).
			Str("file", BaseName(input.URI)).
			Int("bills", len(bills)).
			Msg("Parsed bill export")

		all = append(all, bills...)
	}
	return all, nil
}
