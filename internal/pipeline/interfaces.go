package pipeline

import (
	"context"

	"github.com/dvloznov/bill-classifier/internal/classify"
	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/ingest"
	"github.com/dvloznov/bill-classifier/internal/rules"
)

// BillSource produces the raw bills of a run.
// *ingest.Ingester is the production implementation.
type BillSource interface {
	Ingest(ctx context.Context, inputs []ingest.Input) ([]*domain.Bill, error)
}

// Classifier assigns categories in place.
// *classify.Engine is the production implementation.
type Classifier interface {
	Classify(ctx context.Context, bills []*domain.Bill, store *rules.Store) (classify.Stats, error)
}
