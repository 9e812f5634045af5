package domain

import (
	"fmt"
	"regexp"
	"time"
)

// StallTriggerID is the trigger id recorded when a phase advances because it ran
// out of turns without any declared trigger firing.
const StallTriggerID = "stall"

// MatcherType selects how a Matcher inspects utterances.
type MatcherType string

const (
	// MatchKeyword matches case-insensitive substrings.
	MatchKeyword MatcherType = "keyword"
	// MatchPhrase matches whole-word phrases after normalising punctuation and case.
	MatchPhrase MatcherType = "phrase"
	// MatchRegex matches an RE2 pattern (case-insensitive unless the pattern sets flags).
	MatchRegex MatcherType = "regex"
)

// MatchMode controls how multiple keywords or phrases combine.
type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

// Matcher is a predicate over the trainee's recent utterances.
// The zero Type means MatchKeyword.
type Matcher struct {
	Type     MatcherType `json:"type,omitempty"`
	Keywords []string    `json:"keywords,omitempty"`
	Mode     MatchMode   `json:"mode,omitempty"`
	Pattern  string      `json:"pattern,omitempty"`
	// Window widens the match to the previous N trainee utterances of the current phase.
	Window int  `json:"window,omitempty"`
	Negate bool `json:"negate,omitempty"`
}

// Kind returns the effective matcher type.
func (m Matcher) Kind() MatcherType {
	if m.Type == "" {
		return MatchKeyword
	}
	return m.Type
}

// Validate reports structural problems with the matcher.
func (m Matcher) Validate() error {
	if m.Window < 0 {
		return fmt.Errorf("window must not be negative")
	}
	switch m.Mode {
	case "", MatchAny, MatchAll:
	default:
		return fmt.Errorf("unknown mode %q", m.Mode)
	}
	switch m.Kind() {
	case MatchKeyword, MatchPhrase:
		if len(m.Keywords) == 0 {
			return fmt.Errorf("%s matcher needs at least one keyword", m.Kind())
		}
	case MatchRegex:
		if m.Pattern == "" {
			return fmt.Errorf("regex matcher needs a pattern")
		}
		if _, err := regexp.Compile(m.Pattern); err != nil {
			return fmt.Errorf("bad pattern: %w", err)
		}
	}
	return nil
}

// BranchTrigger moves the conversation to Target when every condition it
// declares holds. Triggers are evaluated in declaration order and the first
// match wins. A trigger without conditions always fires.
type BranchTrigger struct {
	ID     string   `json:"id"`
	Target string   `json:"target"`
	Match  *Matcher `json:"match,omitempty"`

	MinObjectives     int      `json:"minObjectives,omitempty"`
	RequireObjectives []string `json:"requireObjectives,omitempty"`
	MinMessages       int      `json:"minMessages,omitempty"`

	// MoodShift overrides the target phase's entry shift when non-zero.
	MoodShift float64 `json:"moodShift,omitempty"`
}

// Unconditional reports whether the trigger declares no condition at all.
func (t BranchTrigger) Unconditional() bool {
	return t.Match == nil && t.MinObjectives == 0 && len(t.RequireObjectives) == 0 && t.MinMessages == 0
}

// BranchRecord is one entry in the append-only audit trail of phase jumps.
type BranchRecord struct {
	PhaseID       string    `json:"phaseId"`
	BranchTrigger string    `json:"branchTrigger"`
	From          string    `json:"from,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
