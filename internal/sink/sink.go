// Package sink writes partitioned bills to their destinations: the monthly
// bill spreadsheet, and optionally a Notion database mirror and a BigQuery
// archive table.
package sink

import (
	"context"
	"fmt"

	"github.com/dvloznov/bill-classifier/internal/partition"
	"github.com/google/uuid"
)

// Sink receives the partitioned result of one run.
type Sink interface {
	Name() string
	Write(ctx context.Context, res *partition.Result) error
}

// Multi writes to each sink in order and stops at the first failure.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string { return "multi" }

// Write implements Sink.
func (m Multi) Write(ctx context.Context, res *partition.Result) error {
	for _, s := range m {
		if err := s.Write(ctx, res); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	return nil
}

// billNamespace seeds the deterministic bill keys.
var billNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("bill-classifier/bill"))
