package runtime

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

type compiledObjective struct {
	id     string
	window int
	match  Predicate
}

type compiledTrigger struct {
	trigger domain.BranchTrigger
	window  int
	match   Predicate
}

type compiledPhase struct {
	phase       *domain.Phase
	objectives  []compiledObjective
	triggers    []compiledTrigger
	stallTarget string
	canStall    bool
}

// Machine is the phase/branch state machine of one vignette.
// It holds no per-conversation state and is safe for concurrent use.
type Machine struct {
	vignette *domain.Vignette
	phases   map[string]*compiledPhase
	logger   *slog.Logger
}

// Option configures the Machine.
type Option func(*Machine)

// WithLogger sets the logger for evaluation detail.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// NewMachine validates the vignette and compiles every matcher up front, so
// configuration bugs fail here instead of inside a turn.
func NewMachine(v *domain.Vignette, opts ...Option) (*Machine, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil vignette", domain.ErrInvalidVignette)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		vignette: v,
		phases:   make(map[string]*compiledPhase, len(v.Phases)),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for i := range v.Phases {
		p := &v.Phases[i]
		cp := &compiledPhase{phase: p}
		cp.stallTarget, cp.canStall = v.StallTarget(p)

		for _, o := range p.Objectives {
			pred, err := CompileMatcher(o.Match)
			if err != nil {
				return nil, &domain.VignetteError{VignetteID: v.ID, Problems: []string{
					fmt.Sprintf("phase %q objective %q: %v", p.ID, o.ID, err),
				}}
			}
			cp.objectives = append(cp.objectives, compiledObjective{id: o.ID, window: o.Match.Window, match: pred})
		}

		for _, t := range p.BranchTriggers {
			ct := compiledTrigger{trigger: t}
			if t.Match != nil {
				pred, err := CompileMatcher(*t.Match)
				if err != nil {
					return nil, &domain.VignetteError{VignetteID: v.ID, Problems: []string{
						fmt.Sprintf("phase %q trigger %q: %v", p.ID, t.ID, err),
					}}
				}
				ct.match = pred
				ct.window = t.Match.Window
			}
			cp.triggers = append(cp.triggers, ct)
		}

		m.phases[p.ID] = cp
	}

	return m, nil
}

// Vignette returns the bound vignette.
func (m *Machine) Vignette() *domain.Vignette {
	return m.vignette
}

func (m *Machine) phase(id string) (*compiledPhase, error) {
	cp, ok := m.phases[id]
	if !ok {
		return nil, &domain.ResumeStateError{Field: "currentPhaseId", Value: id, Reason: "no such phase in vignette " + m.vignette.ID}
	}
	return cp, nil
}

// ValidateState checks that a snapshot can be resumed against this vignette.
func (m *Machine) ValidateState(s *domain.SessionState) error {
	if s.VignetteID != "" && s.VignetteID != m.vignette.ID {
		return &domain.ResumeStateError{Field: "vignetteId", Value: s.VignetteID, Reason: "state belongs to another vignette"}
	}
	cp, err := m.phase(s.CurrentPhase.CurrentPhaseID)
	if err != nil {
		return err
	}
	for _, id := range s.CurrentPhase.ObjectivesCompleted {
		if !cp.hasObjective(id) {
			return &domain.ResumeStateError{Field: "objectivesCompleted", Value: id, Reason: "not an objective of phase " + cp.phase.ID}
		}
	}
	if s.CurrentPhase.MessageCount < 0 {
		return &domain.ResumeStateError{Field: "messageCount", Value: fmt.Sprint(s.CurrentPhase.MessageCount), Reason: "must not be negative"}
	}
	for _, b := range s.BranchHistory {
		if _, ok := m.phases[b.PhaseID]; !ok {
			return &domain.ResumeStateError{Field: "branchHistory.phaseId", Value: b.PhaseID, Reason: "no such phase in vignette " + m.vignette.ID}
		}
	}
	return nil
}

func (cp *compiledPhase) hasObjective(id string) bool {
	for _, o := range cp.objectives {
		if o.id == id {
			return true
		}
	}
	return false
}
