// Package rules holds the category lookup tables maintained by hand in the
// rule spreadsheet.
package rules

import (
	"regexp"
	"strings"

	"github.com/dvloznov/bill-classifier/internal/domain"
)

// Entry is one row of a rule table: a key (exact text or pattern) and the
// category it maps to.
type Entry struct {
	Key      string
	Category domain.Category
}

// Tables are the four raw rule tables in sheet order.
type Tables struct {
	DescriptionExact     []Entry
	CounterpartyExact    []Entry
	DescriptionPatterns  []Entry
	CounterpartyPatterns []Entry
}

// Pattern is a compiled pattern rule. A pattern matches when it occurs in
// the text literally or, if it compiles, as an unanchored regular
// expression.
type Pattern struct {
	Source   string
	Category domain.Category
	re       *regexp.Regexp
}

// Match reports whether the pattern occurs in text.
func (p Pattern) Match(text string) bool {
	if strings.Contains(text, p.Source) {
		return true
	}
	return p.re != nil && p.re.MatchString(text)
}

// Store is an immutable snapshot of the rule tables for one run.
type Store struct {
	descExact    map[string]domain.Category
	cpExact      map[string]domain.Category
	descPatterns []Pattern
	cpPatterns   []Pattern
}

// NewStore builds a snapshot. For repeated keys the last row wins; a
// repeated pattern keeps the position of its first row.
func NewStore(t Tables) *Store {
	return &Store{
		descExact:    exactTable(t.DescriptionExact),
		cpExact:      exactTable(t.CounterpartyExact),
		descPatterns: patternTable(t.DescriptionPatterns),
		cpPatterns:   patternTable(t.CounterpartyPatterns),
	}
}

func exactTable(entries []Entry) map[string]domain.Category {
	m := make(map[string]domain.Category, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Category
	}
	return m
}

func patternTable(entries []Entry) []Pattern {
	pos := make(map[string]int, len(entries))
	var out []Pattern
	for _, e := range entries {
		if i, ok := pos[e.Key]; ok {
			out[i].Category = e.Category
			continue
		}
		p := Pattern{Source: e.Key, Category: e.Category}
		if re, err := regexp.Compile(e.Key); err == nil {
			p.re = re
		}
		pos[e.Key] = len(out)
		out = append(out, p)
	}
	return out
}

// MatchExact looks the bill up by exact description, then exact
// counterparty.
func (s *Store) MatchExact(b *domain.Bill) (domain.Category, bool) {
	if c, ok := s.descExact[b.Description]; ok {
		return c, true
	}
	if c, ok := s.cpExact[b.Counterparty]; ok {
		return c, true
	}
	return domain.CategoryUnknown, false
}

// MatchPattern returns the category of the first description pattern that
// matches, then of the first counterparty pattern.
func (s *Store) MatchPattern(b *domain.Bill) (domain.Category, bool) {
	for _, p := range s.descPatterns {
		if p.Match(b.Description) {
			return p.Category, true
		}
	}
	for _, p := range s.cpPatterns {
		if p.Match(b.Counterparty) {
			return p.Category, true
		}
	}
	return domain.CategoryUnknown, false
}

// Stats reports the size of each table.
type Stats struct {
	DescriptionExact     int
	CounterpartyExact    int
	DescriptionPatterns  int
	CounterpartyPatterns int
}

// Stats returns table sizes for logging.
func (s *Store) Stats() Stats {
	return Stats{
		DescriptionExact:     len(s.descExact),
		CounterpartyExact:    len(s.cpExact),
		DescriptionPatterns:  len(s.descPatterns),
		CounterpartyPatterns: len(s.cpPatterns),
	}
}
