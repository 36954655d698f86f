// Package classify assigns spending categories to merged, time-sorted bills
// in tiers: rule lookup, temporal clustering around produce purchases, and a
// budgeted remote classifier.
package classify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"github.com/dvloznov/bill-classifier/internal/rules"
)

var (
	// ErrNilRules is returned when classification is attempted without a
	// loaded rule store.
	ErrNilRules = errors.New("rule store not loaded")
	// ErrNotSorted is returned when bills are not in ascending time order.
	ErrNotSorted = errors.New("bills not sorted by time")
)

// DefaultTemporalRadius is the distance from a produce purchase within which
// unknown bills are assumed to be from the same market visit.
const DefaultTemporalRadius = 3600 * time.Second

// NoiseRule excludes a counterparty's bills from the remote classifier when
// the description matches Pattern.
type NoiseRule struct {
	Counterparty string
	Pattern      *regexp.Regexp
}

// Config controls the engine.
type Config struct {
	// CallBudget caps remote classifier calls per run. Negative means no
	// limit and zero disables the tier.
	CallBudget     int
	TemporalRadius time.Duration
	// IgnoredCounterparties are never sent to the remote classifier.
	IgnoredCounterparties []string
	NoiseRules            []NoiseRule
}

// DefaultConfig returns the production denylist with the remote tier off.
func DefaultConfig() Config {
	return Config{
		CallBudget:            0,
		TemporalRadius:        DefaultTemporalRadius,
		IgnoredCounterparties: []string{"美团", "美团平台商户"},
		NoiseRules: []NoiseRule{
			{Counterparty: "京东", Pattern: regexp.MustCompile(`订单编号`)},
		},
	}
}

// Stats counts what each tier did during one Classify call.
type Stats struct {
	Premarked        int
	NonExpense       int
	Exact            int
	Regex            int
	Temporal         int
	OracleCalls      int
	OracleClassified int
	OracleRejected   int
	OracleErrors     int
	OracleFiltered   int
	OracleUsage      int64
}

// Engine runs the classification tiers.
type Engine struct {
	cfg    Config
	oracle Oracle
}

// NewEngine creates an engine. A nil oracle disables the remote tier.
func NewEngine(cfg Config, oracle Oracle) *Engine {
	if cfg.TemporalRadius <= 0 {
		cfg.TemporalRadius = DefaultTemporalRadius
	}
	return &Engine{cfg: cfg, oracle: oracle}
}

// Classify categorizes bills in place. Bills must be sorted by OccurredAt.
// Only bills still Unknown are touched by each tier, so a category is never
// overwritten once set. Remote classifier failures are logged and counted;
// the only errors returned are precondition violations.
func (e *Engine) Classify(ctx context.Context, bills []*domain.Bill, store *rules.Store) (Stats, error) {
	log := logger.FromContext(ctx)
	var stats Stats

	if store == nil {
		return stats, fmt.Errorf("Classify: %w", ErrNilRules)
	}
	for i := 1; i < len(bills); i++ {
		if bills[i].OccurredAt.Before(bills[i-1].OccurredAt) {
			return stats, fmt.Errorf("Classify: bill %d at %s precedes bill %d at %s: %w",
				i, bills[i].OccurredAt.Format(time.RFC3339), i-1, bills[i-1].OccurredAt.Format(time.RFC3339), ErrNotSorted)
		}
	}

	e.matchRules(bills, store, &stats)
	log.Info().
		Int("premarked", stats.Premarked).
		Int("non_expense", stats.NonExpense).
		Int("exact", stats.Exact).
		Int("regex", stats.Regex).
		Msg("Rule matching done")

	e.clusterProduce(bills, &stats)
	log.Info().Int("temporal", stats.Temporal).Msg("Temporal clustering done")

	e.askOracle(ctx, bills, &stats)
	log.Info().
		Int("calls", stats.OracleCalls).
		Int("classified", stats.OracleClassified).
		Int("rejected", stats.OracleRejected).
		Int("errors", stats.OracleErrors).
		Int64("usage", stats.OracleUsage).
		Msg("Remote classification done")

	return stats, nil
}

func (e *Engine) matchRules(bills []*domain.Bill, store *rules.Store, stats *Stats) {
	for _, b := range bills {
		if !b.IsUnknown() {
			stats.Premarked++
			continue
		}
		if b.Kind != domain.KindExpense {
			b.Assign(domain.CategorySkip, domain.MethodUnrecognized)
			stats.NonExpense++
			continue
		}
		if c, ok := store.MatchExact(b); ok {
			b.Assign(c, domain.MethodExactMatch)
			stats.Exact++
			continue
		}
		if c, ok := store.MatchPattern(b); ok {
			b.Assign(c, domain.MethodRegexMatch)
			stats.Regex++
		}
	}
}

// isProduceAnchor reports whether b can pull neighbours into the produce
// category. Only exact rule matches count.
func isProduceAnchor(b *domain.Bill) bool {
	return b.Category == domain.CategoryProduce && b.Method == domain.MethodExactMatch
}

// clusterProduce labels unknown bills as produce when an anchor lies within
// the radius. The window [left, right) is advanced monotonically with i and
// holds every bill whose time is within the radius of bills[i]; anchors
// counts the anchors inside it.
func (e *Engine) clusterProduce(bills []*domain.Bill, stats *Stats) {
	radius := e.cfg.TemporalRadius
	left, right, anchors := 0, 0, 0

	for i, b := range bills {
		for right < len(bills) && bills[right].OccurredAt.Sub(b.OccurredAt) <= radius {
			if isProduceAnchor(bills[right]) {
				anchors++
			}
			right++
		}
		for left < i && b.OccurredAt.Sub(bills[left].OccurredAt) > radius {
			if isProduceAnchor(bills[left]) {
				anchors--
			}
			left++
		}

		if anchors > 0 && b.IsUnknown() {
			b.Assign(domain.CategoryProduce, domain.MethodTemporalCluster)
			stats.Temporal++
		}
	}
}

func (e *Engine) filtered(b *domain.Bill) bool {
	for _, cp := range e.cfg.IgnoredCounterparties {
		if b.Counterparty == cp {
			return true
		}
	}
	for _, r := range e.cfg.NoiseRules {
		if b.Counterparty == r.Counterparty && r.Pattern.MatchString(b.Description) {
			return true
		}
	}
	return false
}

// askOracle sends remaining unknown bills to the oracle in list order. Every
// call consumes one unit of budget whatever its outcome; filtered bills
// consume none.
func (e *Engine) askOracle(ctx context.Context, bills []*domain.Bill, stats *Stats) {
	log := logger.FromContext(ctx)
	budget := e.cfg.CallBudget

	if e.oracle == nil || budget == 0 {
		log.Info().Msg("Remote classifier disabled")
		return
	}

	for _, b := range bills {
		if budget >= 0 && stats.OracleCalls >= budget {
			break
		}
		if !b.IsUnknown() {
			continue
		}
		if e.filtered(b) {
			stats.OracleFiltered++
			continue
		}
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("Context done, stopping remote classification")
			break
		}

		stats.OracleCalls++
		label, err := e.oracle.Classify(ctx, Request{
			Description:  b.Description,
			Counterparty: b.Counterparty,
			Amount:       b.Amount,
			OccurredAt:   b.OccurredAt,
		})
		if err != nil {
			stats.OracleErrors++
			log.Warn().
				Err(err).
				Str("description", b.Description).
				Str("counterparty", b.Counterparty).
				Msg("Remote classification failed")
			continue
		}

		label = strings.TrimSpace(label)
		log.Info().
			Str("description", b.Description).
			Str("counterparty", b.Counterparty).
			Str("answer", label).
			Msg("Remote classifier answered")

		c, ok := domain.ParseCategory(label)
		if !ok || !c.Assignable() {
			stats.OracleRejected++
			continue
		}
		b.Assign(c, domain.MethodLLMClassified)
		stats.OracleClassified++
	}

	stats.OracleUsage = e.oracle.Usage()
}
