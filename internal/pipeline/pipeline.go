package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/bill-classifier/internal/rules"
	"github.com/dvloznov/bill-classifier/internal/sink"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}

// Deps are the collaborators of a classification run.
type Deps struct {
	Source     BillSource
	Rules      rules.Loader
	Classifier Classifier
	Sink       sink.Sink
}

// NewBillPipeline creates the standard run: ingest, merge refunds, merge
// balance sweeps, sort, load rules, classify, partition, write, report.
func NewBillPipeline(d Deps) *Pipeline {
	return NewPipeline(
		&IngestStep{Source: d.Source},
		&MergeRefundsStep{},
		&MergeBalanceStep{},
		&SortStep{},
		&LoadRulesStep{Loader: d.Rules},
		&ClassifyStep{Classifier: d.Classifier},
		&PartitionStep{},
		&SinkStep{Sink: d.Sink},
		&ReportStep{},
	)
}
