package runtime

import (
	"slices"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// Input is what the machine sees of one trainee turn.
type Input struct {
	Utterance string
	// History holds earlier trainee utterances of the current phase, oldest first.
	History []string
}

// window returns the last n history entries followed by the utterance.
func (in Input) window(n int) []string {
	if n > len(in.History) {
		n = len(in.History)
	}
	w := make([]string, 0, n+1)
	w = append(w, in.History[len(in.History)-n:]...)
	return append(w, in.Utterance)
}

// Decision is a branch trigger that fired.
type Decision struct {
	TriggerID string
	Target    string
	MoodShift float64
	Stall     bool
}

// EvaluateObjectives returns every objective of the phase now satisfied: the
// previously completed ids in their original order followed by newly matched
// ones in declaration order. Completed objectives are never dropped.
func (m *Machine) EvaluateObjectives(phaseID string, in Input, completed []string) ([]string, error) {
	cp, err := m.phase(phaseID)
	if err != nil {
		return nil, err
	}

	result := slices.Clone(completed)
	if result == nil {
		result = []string{}
	}
	for _, o := range cp.objectives {
		if slices.Contains(result, o.id) {
			continue
		}
		if o.match(in.window(o.window)) {
			m.logger.Debug("objective satisfied", "phase_id", phaseID, "objective_id", o.id)
			result = append(result, o.id)
		}
	}
	return result, nil
}

// EvaluateBranches walks the phase's triggers in declaration order and returns
// the first whose conditions all hold. When none fires and the phase has spent
// its stall budget, the implicit stall trigger is returned. A nil decision
// means the conversation stays in the phase.
func (m *Machine) EvaluateBranches(phaseID string, in Input, completed []string, messageCount int) (*Decision, error) {
	cp, err := m.phase(phaseID)
	if err != nil {
		return nil, err
	}

	for _, ct := range cp.triggers {
		if !ct.fires(in, completed, messageCount) {
			continue
		}
		m.logger.Debug("branch trigger fired", "phase_id", phaseID, "trigger", ct.trigger.ID, "target", ct.trigger.Target)
		return &Decision{
			TriggerID: ct.trigger.ID,
			Target:    ct.trigger.Target,
			MoodShift: m.shiftFor(ct.trigger.MoodShift, ct.trigger.Target),
		}, nil
	}

	if cp.canStall && messageCount >= cp.phase.StallAfter {
		m.logger.Debug("phase stalled", "phase_id", phaseID, "turns", messageCount, "target", cp.stallTarget)
		return &Decision{
			TriggerID: domain.StallTriggerID,
			Target:    cp.stallTarget,
			MoodShift: m.shiftFor(0, cp.stallTarget),
			Stall:     true,
		}, nil
	}
	return nil, nil
}

func (ct compiledTrigger) fires(in Input, completed []string, messageCount int) bool {
	t := ct.trigger
	if t.MinMessages > 0 && messageCount < t.MinMessages {
		return false
	}
	if t.MinObjectives > 0 && len(completed) < t.MinObjectives {
		return false
	}
	for _, id := range t.RequireObjectives {
		if !slices.Contains(completed, id) {
			return false
		}
	}
	if ct.match != nil && !ct.match(in.window(ct.window)) {
		return false
	}
	return true
}

func (m *Machine) shiftFor(override float64, target string) float64 {
	if override != 0 {
		return override
	}
	if cp, ok := m.phases[target]; ok {
		return cp.phase.MoodShift
	}
	return 0
}

// IsTerminal reports whether the phase has no way out and nothing left to achieve.
func (m *Machine) IsTerminal(phaseID string, completed []string) (bool, error) {
	cp, err := m.phase(phaseID)
	if err != nil {
		return false, err
	}
	if len(cp.triggers) > 0 || cp.canStall {
		return false, nil
	}
	for _, o := range cp.objectives {
		if !slices.Contains(completed, o.id) {
			return false, nil
		}
	}
	return true, nil
}

// StepResult is the outcome of the state machine part of one turn.
type StepResult struct {
	State         *domain.SessionState
	NewObjectives []string
	Decision      *domain.BranchRecord
	MoodShift     float64
	Ended         bool
}

// Step applies one trainee turn to a copy of state: objectives first, then the
// per-phase turn counter, then branch evaluation so a trigger can depend on an
// objective met in this same turn. At most one transition happens per turn.
// A phase is only reported terminal when the turn did not transition.
// The transcript is left to the caller.
func (m *Machine) Step(state *domain.SessionState, in Input, now time.Time) (*StepResult, error) {
	next := state.Clone()
	current := next.CurrentPhase.CurrentPhaseID

	completed, err := m.EvaluateObjectives(current, in, next.CurrentPhase.ObjectivesCompleted)
	if err != nil {
		return nil, err
	}
	res := &StepResult{State: next}
	for _, id := range completed {
		if !next.CurrentPhase.HasObjective(id) {
			res.NewObjectives = append(res.NewObjectives, id)
		}
	}
	next.CurrentPhase.ObjectivesCompleted = completed
	next.CurrentPhase.MessageCount++

	decision, err := m.EvaluateBranches(current, in, completed, next.CurrentPhase.MessageCount)
	if err != nil {
		return nil, err
	}

	if decision != nil {
		record := domain.BranchRecord{
			PhaseID:       decision.Target,
			BranchTrigger: decision.TriggerID,
			From:          current,
			Timestamp:     now,
		}
		next.CompletedPhases = append(next.CompletedPhases, next.CurrentPhase)
		next.BranchHistory = append(next.BranchHistory, record)
		next.CurrentPhase = domain.PhaseState{
			CurrentPhaseID:      decision.Target,
			ObjectivesCompleted: []string{},
		}
		res.Decision = &record
		res.MoodShift = decision.MoodShift
		m.logger.Info("phase transition", "vignette_id", m.vignette.ID, "from", current, "to", decision.Target, "trigger", decision.TriggerID)
		return res, nil
	}

	ended, err := m.IsTerminal(current, completed)
	if err != nil {
		return nil, err
	}
	if ended {
		next.Ended = true
		res.Ended = true
		m.logger.Info("conversation reached a terminal phase", "vignette_id", m.vignette.ID, "phase_id", current)
	}
	return res, nil
}
