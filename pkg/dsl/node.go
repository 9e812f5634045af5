package dsl

import "github.com/aretw0/parley/pkg/domain"

// PhaseBuilder provides a fluent API for configuring a phase.
type PhaseBuilder struct {
	phase   domain.Phase
	builder *Builder
}

// Name sets the display name.
func (p *PhaseBuilder) Name(name string) *PhaseBuilder {
	p.phase.Name = name
	return p
}

// Directive sets the behaviour instructions given to the model.
func (p *PhaseBuilder) Directive(text string) *PhaseBuilder {
	p.phase.Directive = text
	return p
}

// Objective adds a keyword objective met when any keyword is said.
func (p *PhaseBuilder) Objective(id, description string, keywords ...string) *PhaseBuilder {
	return p.ObjectiveMatch(id, description, domain.Matcher{Keywords: keywords})
}

// ObjectiveMatch adds an objective with an explicit matcher.
func (p *PhaseBuilder) ObjectiveMatch(id, description string, m domain.Matcher) *PhaseBuilder {
	p.phase.Objectives = append(p.phase.Objectives, domain.Objective{ID: id, Description: description, Match: m})
	return p
}

// StallAfter advances the phase after n turns without a trigger firing.
// An empty target means the next phase.
func (p *PhaseBuilder) StallAfter(n int, target string) *PhaseBuilder {
	p.phase.StallAfter = n
	p.phase.StallTarget = target
	return p
}

// Mood sets the shift applied when the phase is entered.
func (p *PhaseBuilder) Mood(shift float64) *PhaseBuilder {
	p.phase.MoodShift = shift
	return p
}

// When starts a branch trigger. Finish it with To.
func (p *PhaseBuilder) When(id string) *TriggerBuilder {
	return &TriggerBuilder{trigger: domain.BranchTrigger{ID: id}, phase: p}
}

// Go adds an unconditional trigger to the target phase.
func (p *PhaseBuilder) Go(id, target string) *PhaseBuilder {
	return p.When(id).To(target)
}

// Phase continues with another phase of the same vignette.
func (p *PhaseBuilder) Phase(id string) *PhaseBuilder {
	return p.builder.Phase(id)
}

// Build returns the underlying domain.Phase.
// This is primarily used by the Builder, but exposed for advanced usage.
func (p *PhaseBuilder) Build() domain.Phase {
	return p.phase
}

// TriggerBuilder configures the conditions of one branch trigger.
type TriggerBuilder struct {
	trigger domain.BranchTrigger
	phase   *PhaseBuilder
}

// Says fires when any keyword is said.
func (t *TriggerBuilder) Says(keywords ...string) *TriggerBuilder {
	t.trigger.Match = &domain.Matcher{Keywords: keywords}
	return t
}

// Matches fires on a custom matcher.
func (t *TriggerBuilder) Matches(m domain.Matcher) *TriggerBuilder {
	t.trigger.Match = &m
	return t
}

// Requires fires only once every listed objective is met.
func (t *TriggerBuilder) Requires(objectives ...string) *TriggerBuilder {
	t.trigger.RequireObjectives = append(t.trigger.RequireObjectives, objectives...)
	return t
}

// AtLeast fires only once n objectives of the phase are met.
func (t *TriggerBuilder) AtLeast(n int) *TriggerBuilder {
	t.trigger.MinObjectives = n
	return t
}

// After fires only once the phase has seen n trainee turns.
func (t *TriggerBuilder) After(n int) *TriggerBuilder {
	t.trigger.MinMessages = n
	return t
}

// Mood overrides the entry shift of the target phase.
func (t *TriggerBuilder) Mood(shift float64) *TriggerBuilder {
	t.trigger.MoodShift = shift
	return t
}

// To sets the target phase and attaches the trigger.
func (t *TriggerBuilder) To(target string) *PhaseBuilder {
	t.trigger.Target = target
	t.phase.phase.BranchTriggers = append(t.phase.phase.BranchTriggers, t.trigger)
	return t.phase
}
