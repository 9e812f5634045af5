package domain

import (
	"fmt"
	"slices"
)

// Difficulty is a trainee-facing challenge level offered by a vignette.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// DefaultDifficulties is assumed when a vignette does not list its levels.
var DefaultDifficulties = []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}

// Persona describes who the AI plays.
type Persona struct {
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Background string   `json:"background,omitempty"`
	Traits     []string `json:"traits,omitempty"`
}

// VoiceConfig carries synthesis parameters for the voice transport.
// The state machine never reads it.
type VoiceConfig struct {
	VoiceID         string  `json:"voiceId"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarityBoost"`
}

// Objective is a checkable goal within a phase.
type Objective struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Match       Matcher `json:"match"`
}

// Phase is one stage of the simulated conversation.
type Phase struct {
	ID             string          `json:"phaseId"`
	Name           string          `json:"name,omitempty"`
	Directive      string          `json:"directive"`
	Objectives     []Objective     `json:"objectives,omitempty"`
	BranchTriggers []BranchTrigger `json:"branchTriggers,omitempty"`

	// StallAfter advances the conversation after this many trainee turns in the
	// phase when no trigger fired. Zero disables the stall trigger.
	StallAfter int `json:"stallAfter,omitempty"`
	// StallTarget defaults to the next phase in declaration order.
	StallTarget string `json:"stallTarget,omitempty"`

	// MoodShift is applied to the emotional state whenever the phase is entered.
	MoodShift float64 `json:"moodShift,omitempty"`
}

// Title returns the display name of the phase.
func (p Phase) Title() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Vignette is the immutable scenario template. It may be shared across
// concurrent conversations as long as nobody mutates it.
type Vignette struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description,omitempty"`
	DifficultyLevels  []Difficulty  `json:"difficultyLevels,omitempty"`
	AIModel           string        `json:"aiModel,omitempty"`
	MaxResponseLength int           `json:"maxResponseLength,omitempty"`
	Temperature       *float64      `json:"temperature,omitempty"`
	Persona           Persona       `json:"persona"`
	Phases            []Phase       `json:"phases"`
	Emotions          EmotionConfig `json:"emotions,omitempty"`
	VoiceConfig       *VoiceConfig  `json:"voiceConfig,omitempty"`
}

// Phase returns the phase with the given id.
func (v *Vignette) Phase(id string) (*Phase, bool) {
	i := v.PhaseIndex(id)
	if i < 0 {
		return nil, false
	}
	return &v.Phases[i], true
}

// PhaseIndex returns the declaration index of a phase, or -1.
func (v *Vignette) PhaseIndex(id string) int {
	for i := range v.Phases {
		if v.Phases[i].ID == id {
			return i
		}
	}
	return -1
}

// InitialPhase returns the designated first phase.
func (v *Vignette) InitialPhase() *Phase {
	if len(v.Phases) == 0 {
		return nil
	}
	return &v.Phases[0]
}

// StallTarget resolves where the stall trigger of a phase leads.
// It returns false when the phase cannot stall.
func (v *Vignette) StallTarget(p *Phase) (string, bool) {
	if p.StallAfter <= 0 {
		return "", false
	}
	if p.StallTarget != "" {
		return p.StallTarget, true
	}
	i := v.PhaseIndex(p.ID)
	if i < 0 || i+1 >= len(v.Phases) {
		return "", false
	}
	return v.Phases[i+1].ID, true
}

// Levels returns the difficulties offered by the vignette.
func (v *Vignette) Levels() []Difficulty {
	if len(v.DifficultyLevels) == 0 {
		return DefaultDifficulties
	}
	return v.DifficultyLevels
}

// SupportsDifficulty reports whether d is offered. The empty difficulty is always accepted.
func (v *Vignette) SupportsDifficulty(d Difficulty) bool {
	return d == "" || slices.Contains(v.Levels(), d)
}

// Validate checks the structural invariants of the vignette: unique phase ids,
// resolvable branch targets and a usable emotion scale. Problems are gathered
// into a single *VignetteError so authors see everything at once.
func (v *Vignette) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if v.ID == "" {
		add("id is required")
	}
	if len(v.Phases) == 0 {
		add("at least one phase is required")
	}
	if v.MaxResponseLength < 0 {
		add("maxResponseLength must not be negative")
	}

	ids := make(map[string]bool, len(v.Phases))
	for i, p := range v.Phases {
		if p.ID == "" {
			add("phase #%d has no phaseId", i)
			continue
		}
		if ids[p.ID] {
			add("duplicate phaseId %q", p.ID)
		}
		ids[p.ID] = true
	}

	for _, p := range v.Phases {
		objectives := make(map[string]bool, len(p.Objectives))
		for _, o := range p.Objectives {
			if o.ID == "" {
				add("phase %q: objective without id", p.ID)
				continue
			}
			if objectives[o.ID] {
				add("phase %q: duplicate objective %q", p.ID, o.ID)
			}
			objectives[o.ID] = true
			if err := o.Match.Validate(); err != nil {
				add("phase %q objective %q: %v", p.ID, o.ID, err)
			}
		}

		triggers := make(map[string]bool, len(p.BranchTriggers))
		for i, t := range p.BranchTriggers {
			switch {
			case t.ID == "":
				add("phase %q: trigger #%d has no id", p.ID, i)
			case t.ID == StallTriggerID:
				add("phase %q: trigger id %q is reserved", p.ID, StallTriggerID)
			case triggers[t.ID]:
				add("phase %q: duplicate trigger %q", p.ID, t.ID)
			}
			triggers[t.ID] = true

			if !ids[t.Target] {
				add("phase %q trigger %q: unknown target %q", p.ID, t.ID, t.Target)
			}
			if t.Match != nil {
				if err := t.Match.Validate(); err != nil {
					add("phase %q trigger %q: %v", p.ID, t.ID, err)
				}
			}
			if t.MinObjectives < 0 || t.MinMessages < 0 {
				add("phase %q trigger %q: thresholds must not be negative", p.ID, t.ID)
			}
			if t.MinObjectives > len(p.Objectives) {
				add("phase %q trigger %q: minObjectives exceeds the %d objectives of the phase", p.ID, t.ID, len(p.Objectives))
			}
			for _, req := range t.RequireObjectives {
				if !objectives[req] {
					add("phase %q trigger %q: unknown objective %q", p.ID, t.ID, req)
				}
			}
		}

		if p.StallAfter < 0 {
			add("phase %q: stallAfter must not be negative", p.ID)
		}
		if p.StallTarget != "" && !ids[p.StallTarget] {
			add("phase %q: unknown stallTarget %q", p.ID, p.StallTarget)
		}
	}

	if err := v.Emotions.Validate(); err != nil {
		add("emotions: %v", err)
	}
	for d, initial := range v.Emotions.InitialByDifficulty {
		if !v.SupportsDifficulty(d) {
			add("emotions: initial mood for unsupported difficulty %q", d)
		}
		cfg := v.Emotions.WithDefaults()
		if initial < cfg.Min || initial > cfg.Max {
			add("emotions: initial mood %.2f for %q is outside [%.2f, %.2f]", initial, d, cfg.Min, cfg.Max)
		}
	}

	if len(problems) > 0 {
		return &VignetteError{VignetteID: v.ID, Problems: problems}
	}
	return nil
}
