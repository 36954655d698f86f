package main

import (
	"fmt"
	"time"

	"github.com/dvloznov/bill-classifier/internal/classify"
	"github.com/dvloznov/bill-classifier/internal/config"
	"github.com/dvloznov/bill-classifier/internal/ingest"
	"github.com/dvloznov/bill-classifier/internal/pipeline"
	"github.com/dvloznov/bill-classifier/internal/rules"
	"github.com/dvloznov/bill-classifier/internal/sheets"
	"github.com/dvloznov/bill-classifier/internal/sink"
)

type runCmd struct {
	Inputs []string `name:"input" short:"i" required help:"Export file as source:owner:uri, where source is alipay or wechat and uri is a path or gs://bucket/object. Repeatable."`
	Month  string   `help:"Report month as YYYYMM. Defaults to this month from the 15th, otherwise last month."`
	DryRun bool     `name:"dry-run" help:"Classify and log what would be written, without writing."`
}

func (r *runCmd) Run(g *globals) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.cancel()
	ctx, log, cfg := s.ctx, s.log, s.cfg

	if err := cfg.Validate(); err != nil {
		return err
	}

	inputs := make([]ingest.Input, 0, len(r.Inputs))
	for _, raw := range r.Inputs {
		in, err := ingest.ParseInput(raw)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	month := sink.ReportMonth(time.Now().In(cfg.Location))
	if r.Month != "" {
		if month, err = sink.ParseMonth(r.Month); err != nil {
			return err
		}
	}

	log.Info().
		Int("inputs", len(inputs)).
		Str("month", month.String()).
		Int("llm_budget", cfg.LLMCallBudget).
		Bool("dry_run", r.DryRun).
		Msg("Starting bill classification")

	sheetsClient, err := sheets.NewClient(ctx, cfg.CredentialsFile)
	if err != nil {
		return err
	}

	fetcher := ingest.NewURIFetcher(s.googleOptions()...)
	defer fetcher.Close()

	var oracle classify.Oracle
	if cfg.OracleEnabled() {
		gemini, err := classify.NewGeminiOracle(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMMaxRetries)
		if err != nil {
			return err
		}
		oracle = gemini
	} else {
		log.Info().Msg("Remote classifier disabled (no API key or zero budget)")
	}
	engineCfg := classify.DefaultConfig()
	engineCfg.CallBudget = cfg.LLMCallBudget

	sinks := sink.Multi{sink.NewSheetsSink(sheetsClient, sink.SheetsOptions{
		SpreadsheetID: cfg.BillSpreadsheetID,
		SummaryTitle:  cfg.SummarySheetTitle,
		Month:         month,
		Location:      cfg.Location,
		DryRun:        r.DryRun,
	})}
	if cfg.NotionEnabled() {
		sinks = append(sinks, sink.NewNotionSink(sink.NewNotionClient(cfg.NotionToken), cfg.NotionDatabaseID, cfg.Location, r.DryRun))
	}
	if cfg.BigQueryEnabled() {
		archive, err := sink.NewBigQuerySink(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryTable,
			cfg.Location, r.DryRun, s.googleOptions()...)
		if err != nil {
			return err
		}
		defer archive.Close()
		sinks = append(sinks, archive)
		log.Info().Str("run_id", archive.RunID()).Msg("Archiving to BigQuery")
	}

	p := pipeline.NewBillPipeline(pipeline.Deps{
		Source:     ingest.NewIngester(fetcher, cfg.Location),
		Rules:      rules.NewSheetLoader(sheetsClient, cfg.RuleSpreadsheetID, cfg.RuleSheetTitle),
		Classifier: classify.NewEngine(engineCfg, oracle),
		Sink:       sinks,
	})
	if err := p.Execute(ctx, &pipeline.PipelineState{Inputs: inputs}); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	log.Info().Msg("Bill classification completed")
	return nil
}

// requireOracle reports a missing API key the same way Validate does.
func requireOracle(cfg *config.Config) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY: %w", config.ErrMissing)
	}
	return nil
}
