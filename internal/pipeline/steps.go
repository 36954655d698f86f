// Package pipeline wires the bill workflow together as an ordered list of
// steps sharing one state.
package pipeline

import (
	"context"
	"errors"
	"sort"

	"github.com/dvloznov/bill-classifier/internal/classify"
	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/ingest"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"github.com/dvloznov/bill-classifier/internal/partition"
	"github.com/dvloznov/bill-classifier/internal/reconcile"
	"github.com/dvloznov/bill-classifier/internal/rules"
	"github.com/dvloznov/bill-classifier/internal/sink"
)

// PipelineStep represents a single step of a run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps. Each
// step replaces Bills rather than editing a slice another step still holds.
type PipelineState struct {
	Inputs []ingest.Input
	Bills  []*domain.Bill
	Rules  *rules.Store
	Stats  classify.Stats
	Result *partition.Result
}

// IngestStep reads and parses the export files.
type IngestStep struct {
	Source BillSource
}

func (s *IngestStep) Name() string { return "ingest" }

func (s *IngestStep) Execute(ctx context.Context, state *PipelineState) error {
	bills, err := s.Source.Ingest(ctx, state.Inputs)
	if err != nil {
		return err
	}
	state.Bills = bills
	logger.FromContext(ctx).Info().Int("bills", len(bills)).Int("files", len(state.Inputs)).Msg("Ingested bills")
	return nil
}

// MergeRefundsStep collapses order groups into net bills.
type MergeRefundsStep struct{}

func (s *MergeRefundsStep) Name() string { return "merge_refunds" }

func (s *MergeRefundsStep) Execute(ctx context.Context, state *PipelineState) error {
	before := len(state.Bills)
	state.Bills = reconcile.MergeRefunds(ctx, state.Bills)
	logger.FromContext(ctx).Info().Int("before", before).Int("after", len(state.Bills)).Msg("Merged refunds")
	return nil
}

// MergeBalanceStep collapses balance-fund payouts per owner.
type MergeBalanceStep struct{}

func (s *MergeBalanceStep) Name() string { return "merge_balance" }

func (s *MergeBalanceStep) Execute(ctx context.Context, state *PipelineState) error {
	before := len(state.Bills)
	state.Bills = reconcile.MergeBalanceSweeps(ctx, state.Bills)
	logger.FromContext(ctx).Info().Int("before", before).Int("after", len(state.Bills)).Msg("Merged balance sweeps")
	return nil
}

// SortStep orders bills by time. Ties keep their merged order.
type SortStep struct{}

func (s *SortStep) Name() string { return "sort" }

func (s *SortStep) Execute(ctx context.Context, state *PipelineState) error {
	sorted := make([]*domain.Bill, len(state.Bills))
	copy(sorted, state.Bills)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})
	state.Bills = sorted
	return nil
}

// LoadRulesStep snapshots the rule tables. A failure here ends the run.
type LoadRulesStep struct {
	Loader rules.Loader
}

func (s *LoadRulesStep) Name() string { return "load_rules" }

func (s *LoadRulesStep) Execute(ctx context.Context, state *PipelineState) error {
	store, err := s.Loader.Load(ctx)
	if err != nil {
		return err
	}
	state.Rules = store
	return nil
}

// ClassifyStep runs the classification tiers.
type ClassifyStep struct {
	Classifier Classifier
}

func (s *ClassifyStep) Name() string { return "classify" }

func (s *ClassifyStep) Execute(ctx context.Context, state *PipelineState) error {
	stats, err := s.Classifier.Classify(ctx, state.Bills, state.Rules)
	if err != nil {
		return err
	}
	state.Stats = stats
	return nil
}

// PartitionStep splits the classified bills into buckets.
type PartitionStep struct{}

func (s *PartitionStep) Name() string { return "partition" }

func (s *PartitionStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Result = partition.Split(state.Bills)
	return nil
}

// SinkStep writes the buckets out.
type SinkStep struct {
	Sink sink.Sink
}

func (s *SinkStep) Name() string { return "sink" }

func (s *SinkStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Result == nil {
		return errors.New("nothing to write: partition step has not run")
	}
	return s.Sink.Write(ctx, state.Result)
}

// ReportStep logs the coverage summary of the run.
type ReportStep struct{}

func (s *ReportStep) Name() string { return "report" }

func (s *ReportStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Result == nil {
		return nil
	}
	sum := state.Result.Summary()
	logger.FromContext(ctx).Info().
		Int("total", sum.Total).
		Int("expense", sum.Expense).
		Int("regex", sum.Regex).
		Int("temporal", sum.Temporal).
		Int("llm", sum.LLM).
		Int("unknown", sum.Unknown).
		Int("other", sum.Other).
		Int("skip", sum.Skip).
		Int("income", sum.Income).
		Int("exact_matches", state.Stats.Exact).
		Int("oracle_calls", state.Stats.OracleCalls).
		Int("oracle_errors", state.Stats.OracleErrors).
		Int64("oracle_usage", state.Stats.OracleUsage).
		Float64("coverage", sum.Coverage()).
		Msg("Run summary")
	return nil
}
