package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/emotion"
	"github.com/aretw0/parley/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultHistoryWindow is how many transcript messages are sent to the model.
const DefaultHistoryWindow = 12

// ErrTranscriptStarted is returned by Opening once anyone has spoken.
var ErrTranscriptStarted = errors.New("transcript already started")

var tracer = otel.Tracer("github.com/aretw0/parley/pkg/conversation")

// Config binds one conversation to its vignette, trainee and backend.
type Config struct {
	Vignette   *domain.Vignette
	Difficulty domain.Difficulty
	UserID     string
	Provider   ports.ModelProvider

	// InitialPhaseID starts a fresh conversation mid-scenario.
	InitialPhaseID string
	// PriorState resumes a conversation. It wins over InitialPhaseID.
	PriorState *domain.SessionState

	// HistoryWindow bounds the transcript sent to the model.
	HistoryWindow int
	// Generation holds fallbacks for vignettes that leave
	// maxResponseLength or temperature unset.
	Generation ports.GenerationConfig
}

// Engine runs one conversation. It is request-scoped and not safe for
// concurrent use; callers serialize turns of the same conversation.
type Engine struct {
	vignette   *domain.Vignette
	machine    *runtime.Machine
	tracker    *emotion.Tracker
	provider   ports.ModelProvider
	generation ports.GenerationConfig
	window     int

	state *domain.SessionState

	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	now        func() time.Time
	classifier emotion.Classifier
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithClock replaces time.Now for message and branch timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithClassifier replaces the heuristic tone classifier.
func WithClassifier(c emotion.Classifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// New builds an engine and seeds its state, either fresh or from a prior
// snapshot. Inconsistent resume points fail here with ErrInvalidResumeState.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Vignette == nil {
		return nil, fmt.Errorf("%w: nil vignette", domain.ErrInvalidVignette)
	}
	if cfg.Provider == nil {
		return nil, errors.New("conversation: model provider is required")
	}

	e := &Engine{
		vignette: cfg.Vignette,
		provider: cfg.Provider,
		window:   cfg.HistoryWindow,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.window <= 0 {
		e.window = DefaultHistoryWindow
	}
	e.logger = e.logger.With("vignette_id", cfg.Vignette.ID)

	e.generation = cfg.Generation
	if cfg.Vignette.MaxResponseLength > 0 {
		e.generation.MaxTokens = cfg.Vignette.MaxResponseLength
	}
	if t := cfg.Vignette.Temperature; t != nil {
		temperature := *t
		e.generation.Temperature = &temperature
	}

	machine, err := runtime.NewMachine(cfg.Vignette, runtime.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	e.machine = machine

	trackerOpts := []emotion.Option{emotion.WithLogger(e.logger)}
	if e.classifier != nil {
		trackerOpts = append(trackerOpts, emotion.WithClassifier(e.classifier))
	}
	e.tracker = emotion.NewTracker(cfg.Vignette.Emotions, trackerOpts...)

	if !cfg.Vignette.SupportsDifficulty(cfg.Difficulty) {
		return nil, fmt.Errorf("%w: %q is not offered by vignette %s", domain.ErrInvalidDifficulty, cfg.Difficulty, cfg.Vignette.ID)
	}

	if cfg.PriorState != nil {
		if err := e.resume(cfg); err != nil {
			return nil, err
		}
		return e, nil
	}

	phaseID := cfg.InitialPhaseID
	if phaseID == "" {
		phaseID = cfg.Vignette.InitialPhase().ID
	} else if _, ok := cfg.Vignette.Phase(phaseID); !ok {
		return nil, &domain.ResumeStateError{Field: "initialPhaseId", Value: phaseID, Reason: "no such phase in vignette " + cfg.Vignette.ID}
	}

	e.state = domain.NewSessionState(cfg.Vignette.ID, phaseID)
	e.state.UserID = cfg.UserID
	e.state.Difficulty = cfg.Difficulty
	e.state.EmotionalState = e.tracker.Initial(cfg.Difficulty)
	return e, nil
}

func (e *Engine) resume(cfg Config) error {
	state := cfg.PriorState.Clone()
	if state.VignetteID == "" {
		state.VignetteID = e.vignette.ID
	}
	if err := e.machine.ValidateState(state); err != nil {
		return err
	}
	if cfg.InitialPhaseID != "" && cfg.InitialPhaseID != state.CurrentPhase.CurrentPhaseID {
		e.logger.Warn("initial phase ignored for resumed conversation",
			"initial_phase_id", cfg.InitialPhaseID, "phase_id", state.CurrentPhase.CurrentPhaseID)
	}
	if state.UserID == "" {
		state.UserID = cfg.UserID
	}
	if state.Difficulty == "" {
		state.Difficulty = cfg.Difficulty
	}
	if !e.vignette.SupportsDifficulty(state.Difficulty) {
		return &domain.ResumeStateError{Field: "difficulty", Value: string(state.Difficulty), Reason: "not offered by vignette " + e.vignette.ID}
	}
	if state.EmotionalState.Label == "" {
		state.EmotionalState.Label = domain.MoodLabel(state.EmotionalState.Value, e.tracker.Config())
	}
	if state.Messages == nil {
		state.Messages = []domain.Message{}
	}
	if state.BranchHistory == nil {
		state.BranchHistory = []domain.BranchRecord{}
	}
	e.state = state
	return nil
}

// TurnResult is what one trainee turn produced.
type TurnResult struct {
	// Response is the persona reply; empty when the conversation ended or
	// generation failed.
	Response       string                `json:"response"`
	CurrentPhase   string                `json:"currentPhase"`
	EmotionalState domain.EmotionalState `json:"emotionalState"`
	// Transition is the branch taken this turn, if any.
	Transition    *domain.BranchRecord `json:"transition,omitempty"`
	ObjectivesMet []string             `json:"objectivesMet,omitempty"`
	Ended         bool                 `json:"ended"`
	// State is a snapshot taken after the turn; the caller owns it.
	State *domain.SessionState `json:"sessionState"`
}

// ProcessUserMessage runs one trainee turn: transcript, objectives, branches,
// mood and finally the persona reply. Every step before generation is
// committed before the provider is called, so a GenerationError comes back
// together with a result whose State can be retried with RetryReply.
func (e *Engine) ProcessUserMessage(ctx context.Context, utterance string) (*TurnResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.ProcessUserMessage", trace.WithAttributes(
		attribute.String("parley.vignette_id", e.vignette.ID),
		attribute.String("parley.phase_id", e.state.CurrentPhase.CurrentPhaseID),
	))
	defer span.End()

	if e.state.Ended {
		return nil, domain.ErrSessionEnded
	}
	text := strings.TrimSpace(utterance)
	if text == "" {
		return nil, domain.ErrEmptyUtterance
	}

	now := e.now()
	from := e.state.CurrentPhase.CurrentPhaseID

	step, err := e.machine.Step(e.state, runtime.Input{Utterance: text, History: e.phaseHistory()}, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	next := step.State
	next.Messages = append(next.Messages, domain.Message{
		Role:      domain.RoleTrainee,
		Text:      text,
		Timestamp: now,
		PhaseID:   from,
	})

	var transition *emotion.Transition
	if step.Decision != nil {
		transition = &emotion.Transition{From: from, To: step.Decision.PhaseID, Shift: step.MoodShift}
	}
	previousMood := next.EmotionalState
	next.EmotionalState = e.tracker.Update(previousMood, text, transition)

	e.state = next
	e.emitTurn(ctx, from, step, previousMood)

	result := &TurnResult{
		CurrentPhase:   next.CurrentPhase.CurrentPhaseID,
		EmotionalState: next.EmotionalState,
		Transition:     step.Decision,
		ObjectivesMet:  step.NewObjectives,
		Ended:          step.Ended,
	}
	span.SetAttributes(
		attribute.String("parley.next_phase_id", result.CurrentPhase),
		attribute.Float64("parley.mood", result.EmotionalState.Value),
		attribute.Bool("parley.ended", result.Ended),
	)

	if step.Ended {
		result.State = e.SessionState()
		return result, nil
	}

	reply, err := e.reply(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		result.State = e.SessionState()
		return result, err
	}
	result.Response = reply
	result.State = e.SessionState()
	return result, nil
}

// RetryReply generates the persona reply for a snapshot whose last message
// is an unanswered trainee turn, without re-running any turn logic.
func (e *Engine) RetryReply(ctx context.Context) (*TurnResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.RetryReply", trace.WithAttributes(
		attribute.String("parley.vignette_id", e.vignette.ID),
	))
	defer span.End()

	if e.state.Ended {
		return nil, domain.ErrSessionEnded
	}
	last, ok := e.state.LastMessage()
	if !ok || last.Role != domain.RoleTrainee {
		return nil, domain.ErrNoPendingReply
	}

	result := &TurnResult{
		CurrentPhase:   e.state.CurrentPhase.CurrentPhaseID,
		EmotionalState: e.state.EmotionalState,
	}
	reply, err := e.reply(ctx)
	if err != nil {
		span.RecordError(err)
		result.State = e.SessionState()
		return result, err
	}
	result.Response = reply
	result.State = e.SessionState()
	return result, nil
}

// Opening asks the persona to speak first. It only works on an empty transcript.
func (e *Engine) Opening(ctx context.Context) (*TurnResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.Opening")
	defer span.End()

	if e.state.Ended {
		return nil, domain.ErrSessionEnded
	}
	if len(e.state.Messages) > 0 {
		return nil, ErrTranscriptStarted
	}

	result := &TurnResult{
		CurrentPhase:   e.state.CurrentPhase.CurrentPhaseID,
		EmotionalState: e.state.EmotionalState,
	}
	reply, err := e.reply(ctx)
	if err != nil {
		span.RecordError(err)
		result.State = e.SessionState()
		return result, err
	}
	result.Response = reply
	result.State = e.SessionState()
	return result, nil
}

// UpdateConversationHistory replaces the transcript used for prompts and for
// windowed matchers. Phase, objectives and mood are left untouched.
func (e *Engine) UpdateConversationHistory(messages []domain.Message) {
	e.state.Messages = slices.Clone(messages)
	if e.state.Messages == nil {
		e.state.Messages = []domain.Message{}
	}
}

// SessionState returns a deep copy of the current snapshot.
func (e *Engine) SessionState() *domain.SessionState {
	return e.state.Clone()
}

// Vignette returns the bound vignette.
func (e *Engine) Vignette() *domain.Vignette {
	return e.vignette
}

// Provider returns the bound model provider.
func (e *Engine) Provider() ports.ModelProvider {
	return e.provider
}

// phaseHistory returns the trainee utterances already spoken in the current
// phase, oldest first. MessageCount says how many there are.
func (e *Engine) phaseHistory() []string {
	n := e.state.CurrentPhase.MessageCount
	if n <= 0 {
		return nil
	}
	history := make([]string, 0, n)
	for i := len(e.state.Messages) - 1; i >= 0 && len(history) < n; i-- {
		if m := e.state.Messages[i]; m.Role == domain.RoleTrainee {
			history = append(history, m.Text)
		}
	}
	slices.Reverse(history)
	return history
}

// reply calls the provider with the committed state and appends the result.
func (e *Engine) reply(ctx context.Context) (string, error) {
	phaseID := e.state.CurrentPhase.CurrentPhaseID
	prompt := BuildPrompt(e.vignette, e.state, e.window)

	start := time.Now()
	text, err := e.provider.Generate(ctx, prompt, e.generation)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = errors.New("empty reply")
		}
	}
	if e.hooks.OnGenerate != nil {
		e.hooks.OnGenerate(ctx, &domain.GenerateEvent{
			EventBase: e.event(domain.EventGenerate),
			PhaseID:   phaseID,
			Provider:  e.provider.Name(),
			Duration:  time.Since(start),
			IsError:   err != nil,
		})
	}
	if err != nil {
		e.logger.Warn("persona generation failed", "phase_id", phaseID, "provider", e.provider.Name(), "err", err)
		return "", &domain.GenerationError{Provider: e.provider.Name(), Model: e.vignette.AIModel, Err: err}
	}

	e.state.Messages = append(e.state.Messages, domain.Message{
		Role:      domain.RolePersona,
		Text:      text,
		Timestamp: e.now(),
		PhaseID:   phaseID,
	})
	return text, nil
}

func (e *Engine) event(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, VignetteID: e.vignette.ID}
}

func (e *Engine) emitTurn(ctx context.Context, from string, step *runtime.StepResult, previousMood domain.EmotionalState) {
	for _, id := range step.NewObjectives {
		e.logger.Debug("objective met", "phase_id", from, "objective_id", id)
		if e.hooks.OnObjectiveMet != nil {
			e.hooks.OnObjectiveMet(ctx, &domain.ObjectiveEvent{
				EventBase:   e.event(domain.EventObjectiveMet),
				PhaseID:     from,
				ObjectiveID: id,
			})
		}
	}

	if d := step.Decision; d != nil {
		if e.hooks.OnPhaseLeave != nil {
			e.hooks.OnPhaseLeave(ctx, &domain.PhaseEvent{
				EventBase: e.event(domain.EventPhaseLeave),
				PhaseID:   from,
				Trigger:   d.BranchTrigger,
			})
		}
		if e.hooks.OnPhaseEnter != nil {
			e.hooks.OnPhaseEnter(ctx, &domain.PhaseEvent{
				EventBase: e.event(domain.EventPhaseEnter),
				PhaseID:   d.PhaseID,
				Trigger:   d.BranchTrigger,
			})
		}
	}

	current := e.state.EmotionalState
	if current.Value != previousMood.Value {
		e.logger.Debug("mood changed", "from", previousMood.Value, "to", current.Value, "trend", current.Trend)
		if e.hooks.OnMoodChange != nil {
			e.hooks.OnMoodChange(ctx, &domain.MoodEvent{
				EventBase: e.event(domain.EventMoodChange),
				Previous:  previousMood,
				Current:   current,
			})
		}
	}
}
