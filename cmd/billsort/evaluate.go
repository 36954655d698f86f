package main

import (
	"fmt"
	"strings"

	"github.com/dvloznov/bill-classifier/internal/classify"
	"github.com/dvloznov/bill-classifier/internal/config"
	"github.com/dvloznov/bill-classifier/internal/evaluate"
	"github.com/dvloznov/bill-classifier/internal/rules"
	"github.com/dvloznov/bill-classifier/internal/sheets"
)

type evaluateCmd struct {
	Range string `required help:"A1 range of labeled rows, e.g. '评测'!A1:H500."`
}

func (e *evaluateCmd) Run(g *globals) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.cancel()
	ctx, cfg := s.ctx, s.cfg

	if cfg.BillSpreadsheetID == "" {
		return fmt.Errorf("BILL_SPREADSHEET_ID: %w", config.ErrMissing)
	}
	if err := requireOracle(cfg); err != nil {
		return err
	}

	client, err := sheets.NewClient(ctx, cfg.CredentialsFile)
	if err != nil {
		return err
	}
	oracle, err := classify.NewGeminiOracle(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMMaxRetries)
	if err != nil {
		return err
	}

	report, err := evaluate.NewEvaluator(client, oracle, cfg.BillSpreadsheetID, cfg.Location).Evaluate(ctx, e.Range)
	if err != nil {
		return err
	}

	fmt.Println("Evaluation results:")
	fmt.Printf("  correct:  %d\n", report.Correct)
	fmt.Printf("  wrong:    %d (classifier errors: %d)\n", report.Wrong, report.Errors)
	fmt.Printf("  skipped:  %d\n", report.Skipped)
	fmt.Printf("  accuracy: %.2f%%\n", report.Accuracy()*100)
	if len(report.Mismatches) > 0 {
		fmt.Println("\nMismatches:")
		for _, m := range report.Mismatches {
			fmt.Printf("  %s | %s\n    expected %s, got %q\n", m.Description, m.Counterparty, m.Expected, m.Predicted)
		}
		fmt.Println(strings.Repeat("-", 50))
	}
	return nil
}

type rulesCmd struct{}

func (r *rulesCmd) Run(g *globals) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.cancel()
	ctx, cfg := s.ctx, s.cfg

	if cfg.RuleSpreadsheetID == "" {
		return fmt.Errorf("RULE_SPREADSHEET_ID: %w", config.ErrMissing)
	}

	client, err := sheets.NewClient(ctx, cfg.CredentialsFile)
	if err != nil {
		return err
	}
	store, err := rules.NewSheetLoader(client, cfg.RuleSpreadsheetID, cfg.RuleSheetTitle).Load(ctx)
	if err != nil {
		return err
	}

	st := store.Stats()
	fmt.Printf("Rule tables in %q:\n", cfg.RuleSheetTitle)
	fmt.Printf("  description exact:     %d\n", st.DescriptionExact)
	fmt.Printf("  counterparty exact:    %d\n", st.CounterpartyExact)
	fmt.Printf("  description patterns:  %d\n", st.DescriptionPatterns)
	fmt.Printf("  counterparty patterns: %d\n", st.CounterpartyPatterns)
	return nil
}
