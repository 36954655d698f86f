// Package config reads run configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// ErrMissing is returned by Validate when a required value is not set.
var ErrMissing = errors.New("missing required configuration")

const (
	envCredentialsFile   = "GOOGLE_CREDENTIALS_FILE"
	envBillSpreadsheetID = "BILL_SPREADSHEET_ID"
	envRuleSpreadsheetID = "RULE_SPREADSHEET_ID"
	envRuleSheetTitle    = "RULE_SHEET_TITLE"
	envSummarySheetTitle = "SUMMARY_SHEET_TITLE"
	envGeminiAPIKey      = "GEMINI_API_KEY"
	envGeminiModel       = "GEMINI_MODEL"
	envLLMCallBudget     = "LLM_CALL_BUDGET"
	envLLMMaxRetries     = "LLM_MAX_RETRIES"
	envBillTimezone      = "BILL_TIMEZONE"
	envNotionToken       = "NOTION_TOKEN"
	envNotionDatabaseID  = "NOTION_DATABASE_ID"
	envBigQueryProject   = "BIGQUERY_PROJECT"
	envBigQueryDataset   = "BIGQUERY_DATASET"
	envBigQueryTable     = "BIGQUERY_TABLE"
	envLogLevel          = "LOG_LEVEL"
	envRunTimeout        = "RUN_TIMEOUT"
)

const (
	defaultRuleSheetTitle    = "分类规则"
	defaultSummarySheetTitle = "月度明细"
	defaultGeminiModel       = "gemini-2.5-flash"
	defaultLLMMaxRetries     = 2
	defaultBillTimezone      = "Asia/Shanghai"
	defaultBigQueryDataset   = "finance"
	defaultBigQueryTable     = "classified_bills"
	defaultLogLevel          = "info"
	defaultRunTimeout        = 10 * time.Minute
)

// Config holds everything a run needs from the environment.
type Config struct {
	CredentialsFile string

	BillSpreadsheetID string
	RuleSpreadsheetID string
	RuleSheetTitle    string
	SummarySheetTitle string

	GeminiAPIKey  string
	GeminiModel   string
	LLMCallBudget int
	LLMMaxRetries uint64

	Location *time.Location

	NotionToken      string
	NotionDatabaseID string

	BigQueryProject string
	BigQueryDataset string
	BigQueryTable   string

	LogLevel   string
	RunTimeout time.Duration
}

// Load reads the configuration. When envFile is set it is loaded first;
// a missing file is ignored, as is a missing default ".env". Variables
// already in the environment win over the file.
func Load(envFile string) (*Config, error) {
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Load: reading env file: %w", err)
	}

	cfg := &Config{
		CredentialsFile:   os.Getenv(envCredentialsFile),
		BillSpreadsheetID: os.Getenv(envBillSpreadsheetID),
		RuleSpreadsheetID: os.Getenv(envRuleSpreadsheetID),
		RuleSheetTitle:    getenv(envRuleSheetTitle, defaultRuleSheetTitle),
		SummarySheetTitle: getenv(envSummarySheetTitle, defaultSummarySheetTitle),
		GeminiAPIKey:      os.Getenv(envGeminiAPIKey),
		GeminiModel:       getenv(envGeminiModel, defaultGeminiModel),
		NotionToken:       os.Getenv(envNotionToken),
		NotionDatabaseID:  os.Getenv(envNotionDatabaseID),
		BigQueryProject:   os.Getenv(envBigQueryProject),
		BigQueryDataset:   getenv(envBigQueryDataset, defaultBigQueryDataset),
		BigQueryTable:     getenv(envBigQueryTable, defaultBigQueryTable),
		LogLevel:          getenv(envLogLevel, defaultLogLevel),
	}
	if cfg.RuleSpreadsheetID == "" {
		cfg.RuleSpreadsheetID = cfg.BillSpreadsheetID
	}

	if v := os.Getenv(envLLMCallBudget); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("Load: %s=%q: %w", envLLMCallBudget, v, err)
		}
		cfg.LLMCallBudget = n
	}

	cfg.LLMMaxRetries = defaultLLMMaxRetries
	if v := os.Getenv(envLLMMaxRetries); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("Load: %s=%q: %w", envLLMMaxRetries, v, err)
		}
		cfg.LLMMaxRetries = n
	}

	cfg.RunTimeout = defaultRunTimeout
	if v := os.Getenv(envRunTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("Load: %s=%q: %w", envRunTimeout, v, err)
		}
		cfg.RunTimeout = d
	}

	tz := getenv(envBillTimezone, defaultBillTimezone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("Load: %s=%q: %w", envBillTimezone, tz, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// Validate checks the values a classification run cannot do without.
func (c *Config) Validate() error {
	if c.BillSpreadsheetID == "" {
		return fmt.Errorf("Validate: %s: %w", envBillSpreadsheetID, ErrMissing)
	}
	if c.RuleSpreadsheetID == "" {
		return fmt.Errorf("Validate: %s: %w", envRuleSpreadsheetID, ErrMissing)
	}
	if (c.NotionToken == "") != (c.NotionDatabaseID == "") {
		return fmt.Errorf("Validate: %s and %s must be set together: %w", envNotionToken, envNotionDatabaseID, ErrMissing)
	}
	return nil
}

// OracleEnabled reports whether Tier 3 can run at all.
func (c *Config) OracleEnabled() bool {
	return c.GeminiAPIKey != "" && c.LLMCallBudget != 0
}

// NotionEnabled reports whether the Notion mirror is configured.
func (c *Config) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

// BigQueryEnabled reports whether the archive sink is configured.
func (c *Config) BigQueryEnabled() bool {
	return c.BigQueryProject != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
