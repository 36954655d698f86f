package sink

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"github.com/dvloznov/bill-classifier/internal/partition"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// archiveBatchSize bounds the rows sent in one streaming insert.
const archiveBatchSize = 500

// BillRow is one archived bill. Each run appends a full snapshot stamped
// with its run id.
type BillRow struct {
	RunID   string `bigquery:"run_id"`   // REQUIRED
	BillKey string `bigquery:"bill_key"` // REQUIRED

	BillDate   civil.Date `bigquery:"bill_date"`   // REQUIRED
	OccurredAt time.Time  `bigquery:"occurred_at"` // REQUIRED

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC

	Counterparty string              `bigquery:"counterparty"`
	Description  string              `bigquery:"description"`
	OrderID      bigquery.NullString `bigquery:"order_id"` // NULLABLE

	Kind     string `bigquery:"kind"`
	Category string `bigquery:"category"`
	Method   string `bigquery:"method"`
	Bucket   string `bigquery:"bucket"`
	Source   string `bigquery:"source"`
	Owner    string `bigquery:"owner"`

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// RowInserter is satisfied by *bigquery.Inserter.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQuerySink appends classified bills to an archive table.
type BigQuerySink struct {
	client   *bigquery.Client
	inserter RowInserter
	runID    string
	location *time.Location
	dryRun   bool
	now      func() time.Time
}

// NewBigQuerySink connects to project and targets dataset.table.
func NewBigQuerySink(ctx context.Context, project, dataset, table string, loc *time.Location, dryRun bool, opts ...option.ClientOption) (*BigQuerySink, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySink: bigquery client: %w", err)
	}
	inserter := client.DatasetInProject(project, dataset).Table(table).Inserter()

	s := NewBigQuerySinkWithInserter(inserter, loc, dryRun)
	s.client = client
	return s, nil
}

// NewBigQuerySinkWithInserter builds a sink over an existing inserter.
func NewBigQuerySinkWithInserter(inserter RowInserter, loc *time.Location, dryRun bool) *BigQuerySink {
	if loc == nil {
		loc = time.Local
	}
	return &BigQuerySink{
		inserter: inserter,
		runID:    uuid.NewString(),
		location: loc,
		dryRun:   dryRun,
		now:      time.Now,
	}
}

// Name implements Sink.
func (s *BigQuerySink) Name() string { return "bigquery" }

// RunID identifies the rows written by this sink.
func (s *BigQuerySink) RunID() string { return s.runID }

// Close releases the BigQuery client, if the sink owns one.
func (s *BigQuerySink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Write implements Sink.
func (s *BigQuerySink) Write(ctx context.Context, res *partition.Result) error {
	log := logger.FromContext(ctx)

	rows := ArchiveRows(res, s.runID, s.location, s.now())
	if s.dryRun {
		log.Info().Str("run_id", s.runID).Int("rows", len(rows)).Msg("[DRY RUN] Would archive bills to BigQuery")
		return nil
	}

	for i := 0; i < len(rows); i += archiveBatchSize {
		end := i + archiveBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.inserter.Put(ctx, rows[i:end]); err != nil {
			return fmt.Errorf("BigQuerySink.Write: inserting rows %d-%d: %w", i, end, err)
		}
	}

	log.Info().Str("run_id", s.runID).Int("rows", len(rows)).Msg("Archived bills to BigQuery")
	return nil
}

// ArchiveRows converts every bucket of res into archive rows, in display
// order.
func ArchiveRows(res *partition.Result, runID string, loc *time.Location, now time.Time) []*BillRow {
	var rows []*BillRow
	for _, bucket := range res.Buckets() {
		for _, b := range bucket.Bills {
			rows = append(rows, archiveRow(b, bucket.Name, runID, loc, now))
		}
	}
	return rows
}

func archiveRow(b *domain.Bill, bucket, runID string, loc *time.Location, now time.Time) *BillRow {
	row := &BillRow{
		RunID:        runID,
		BillKey:      BillKey(b),
		BillDate:     civil.DateOf(b.OccurredAt.In(loc)),
		OccurredAt:   b.OccurredAt,
		Amount:       b.Amount.Rat(),
		Counterparty: b.Counterparty,
		Description:  b.Description,
		Kind:         b.Kind.String(),
		Category:     b.Category.String(),
		Method:       b.Method.String(),
		Bucket:       bucket,
		Source:       string(b.Source),
		Owner:        b.Owner,
		CreatedTS:    now,
	}
	if b.OrderID != "" {
		row.OrderID = bigquery.NullString{StringVal: b.OrderID, Valid: true}
	}
	return row
}
