// Command billsort classifies Alipay and WeChat Pay bill exports and writes
// them to the household bill spreadsheet.
package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/dvloznov/bill-classifier/internal/config"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// globals holds options shared by every command.
type globals struct {
	EnvFile string `name:"env-file" help:"Load environment variables from this file first (default .env, if present)." type:"path"`
}

var cli struct {
	Globals globals `embed`

	Run      runCmd      `cmd help:"Classify bill exports and write the monthly sheet."`
	Evaluate evaluateCmd `cmd help:"Measure the remote classifier against a labeled range."`
	Rules    rulesCmd    `cmd help:"Load the rule tables and print their sizes."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("billsort"),
		kong.Description("Household bill classifier."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

// session is what every command needs once configuration is read.
type session struct {
	cfg    *config.Config
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(g *globals) (*session, error) {
	cfg, err := config.Load(g.EnvFile)
	if err != nil {
		return nil, err
	}

	log := logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	// Keep a stuck remote call from hanging the CLI.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
	ctx = logger.WithContext(ctx, log)

	return &session{cfg: cfg, log: log, ctx: ctx, cancel: cancel}, nil
}

// googleOptions are the client options shared by the Google API clients.
func (s *session) googleOptions() []option.ClientOption {
	if s.cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(s.cfg.CredentialsFile)}
}
