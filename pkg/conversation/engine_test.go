package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider replies deterministically from the prompt, or fails when err is set.
type stubProvider struct {
	mu      sync.Mutex
	err     error
	prompts []ports.Prompt
	gens    []ports.GenerationConfig
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(_ context.Context, prompt ports.Prompt, gen ports.GenerationConfig) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	p.gens = append(p.gens, gen)
	if p.err != nil {
		return "", p.err
	}
	return "re: " + prompt.Messages[len(prompt.Messages)-1].Text, nil
}

func (p *stubProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func scenario() *domain.Vignette {
	return &domain.Vignette{
		ID:       "delayed-results",
		Title:    "Delayed biopsy results",
		AIModel:  "scripted",
		Persona:  domain.Persona{Name: "Dana", Role: "the patient's daughter"},
		Emotions: domain.EmotionConfig{Initial: -2},
		Phases: []domain.Phase{
			{
				ID:        "intro",
				Directive: "You are tense and want answers.",
				Objectives: []domain.Objective{
					{ID: "introduced", Match: domain.Matcher{Type: domain.MatchPhrase, Keywords: []string{"my name is"}}},
				},
				BranchTriggers: []domain.BranchTrigger{
					{ID: "introduced", Target: "escalation", RequireObjectives: []string{"introduced"}},
				},
				StallAfter: 2,
			},
			{
				ID:        "escalation",
				Directive: "You raise your voice about the delay.",
				Objectives: []domain.Objective{
					{ID: "acknowledged_concern", Match: domain.Matcher{Keywords: []string{"understand"}}},
				},
				BranchTriggers: []domain.BranchTrigger{
					{ID: "acknowledged", Target: "resolution", RequireObjectives: []string{"acknowledged_concern"}},
				},
				StallAfter: 3,
			},
			{
				ID:        "resolution",
				Directive: "You are willing to hear the plan.",
				MoodShift: 1,
				Objectives: []domain.Objective{
					{ID: "next_steps", Match: domain.Matcher{Keywords: []string{"plan"}}},
				},
			},
		},
	}
}

func newEngine(t *testing.T, cfg conversation.Config, opts ...conversation.Option) *conversation.Engine {
	t.Helper()
	if cfg.Vignette == nil {
		cfg.Vignette = scenario()
	}
	opts = append([]conversation.Option{conversation.WithClock(fixedClock())}, opts...)
	e, err := conversation.New(cfg, opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_ExampleScenario(t *testing.T) {
	provider := &stubProvider{}
	e := newEngine(t, conversation.Config{Provider: provider, InitialPhaseID: "escalation"})

	res, err := e.ProcessUserMessage(context.Background(), "I understand your frustration, let's look at the chart together")
	require.NoError(t, err)

	assert.Equal(t, "resolution", res.CurrentPhase)
	assert.Equal(t, []string{"acknowledged_concern"}, res.ObjectivesMet)
	require.NotNil(t, res.Transition)
	assert.Equal(t, "acknowledged", res.Transition.BranchTrigger)

	state := res.State
	assert.Equal(t, "resolution", state.CurrentPhase.CurrentPhaseID)
	require.Len(t, state.BranchHistory, 1)
	assert.Equal(t, "resolution", state.BranchHistory[0].PhaseID)
	assert.Equal(t, "escalation", state.BranchHistory[0].From)
	assert.Equal(t, 0, state.CurrentPhase.MessageCount)

	require.Len(t, state.CompletedPhases, 1)
	assert.Equal(t, []string{"acknowledged_concern"}, state.CompletedPhases[0].ObjectivesCompleted)

	require.Len(t, state.Messages, 2)
	assert.Equal(t, domain.RoleTrainee, state.Messages[0].Role)
	assert.Equal(t, "escalation", state.Messages[0].PhaseID)
	assert.Equal(t, domain.RolePersona, state.Messages[1].Role)
	assert.Equal(t, "resolution", state.Messages[1].PhaseID)
	assert.Equal(t, res.Response, state.Messages[1].Text)

	assert.Greater(t, state.EmotionalState.Value, -2.0, "transition into resolution softens the mood")
	assert.Equal(t, domain.TrendSoftening, state.EmotionalState.Trend)

	require.Equal(t, 1, provider.calls())
	assert.Contains(t, provider.prompts[0].System, "You are willing to hear the plan.", "prompt uses the new phase")
}

func TestEngine_StallAntiLock(t *testing.T) {
	e := newEngine(t, conversation.Config{Provider: &stubProvider{}})
	ctx := context.Background()

	res, err := e.ProcessUserMessage(ctx, "Good morning.")
	require.NoError(t, err)
	assert.Equal(t, "intro", res.CurrentPhase)
	assert.Nil(t, res.Transition)

	res, err = e.ProcessUserMessage(ctx, "The weather is nice today.")
	require.NoError(t, err)
	assert.Equal(t, "escalation", res.CurrentPhase)
	require.NotNil(t, res.Transition)
	assert.Equal(t, domain.StallTriggerID, res.Transition.BranchTrigger)
}

func TestEngine_TerminalPhaseSkipsGeneration(t *testing.T) {
	provider := &stubProvider{}
	e := newEngine(t, conversation.Config{Provider: provider, InitialPhaseID: "resolution"})
	ctx := context.Background()

	res, err := e.ProcessUserMessage(ctx, "Here is the plan for tomorrow.")
	require.NoError(t, err)
	assert.True(t, res.Ended)
	assert.Empty(t, res.Response)
	assert.True(t, res.State.Ended)
	assert.Equal(t, 0, provider.calls())

	_, err = e.ProcessUserMessage(ctx, "Anything else?")
	assert.ErrorIs(t, err, domain.ErrSessionEnded)
}

func TestEngine_Resumability(t *testing.T) {
	utterances := []string{
		"Hello, my name is Dr. Reyes.",
		"I understand this has been a long wait.",
		"The plan is to call the lab now.",
	}
	ctx := context.Background()

	continuous := newEngine(t, conversation.Config{Provider: &stubProvider{}, UserID: "u1"})
	for _, u := range utterances {
		_, err := continuous.ProcessUserMessage(ctx, u)
		require.NoError(t, err)
	}

	var snapshot *domain.SessionState
	for i, u := range utterances {
		cfg := conversation.Config{Provider: &stubProvider{}, UserID: "u1"}
		if snapshot != nil {
			bytes, err := json.Marshal(snapshot)
			require.NoError(t, err)
			cfg.PriorState = &domain.SessionState{}
			require.NoError(t, json.Unmarshal(bytes, cfg.PriorState))
		}
		e := newEngine(t, cfg)
		_, err := e.ProcessUserMessage(ctx, u)
		require.NoError(t, err, "turn %d", i)
		snapshot = e.SessionState()
	}

	assert.Equal(t, continuous.SessionState(), snapshot)
	assert.True(t, snapshot.Ended)
}

func TestEngine_GenerationFailureCommitsTurn(t *testing.T) {
	ctx := context.Background()
	utterance := "Hello, my name is Dr. Reyes."

	ok := newEngine(t, conversation.Config{Provider: &stubProvider{}})
	okRes, err := ok.ProcessUserMessage(ctx, utterance)
	require.NoError(t, err)

	failing := &stubProvider{err: context.DeadlineExceeded}
	bad := newEngine(t, conversation.Config{Provider: failing})
	badRes, err := bad.ProcessUserMessage(ctx, utterance)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGenerationFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var genErr *domain.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "stub", genErr.Provider)

	require.NotNil(t, badRes)
	assert.Empty(t, badRes.Response)
	assert.Equal(t, okRes.State.CurrentPhase, badRes.State.CurrentPhase)
	assert.Equal(t, okRes.State.BranchHistory, badRes.State.BranchHistory)
	assert.Equal(t, okRes.State.EmotionalState, badRes.State.EmotionalState)
	assert.Equal(t, okRes.State.Messages[:1], badRes.State.Messages, "only the reply is missing")

	t.Run("Retry On Fresh Engine", func(t *testing.T) {
		retry := newEngine(t, conversation.Config{Provider: &stubProvider{}, PriorState: badRes.State})
		res, err := retry.RetryReply(ctx)
		require.NoError(t, err)
		assert.Equal(t, okRes.Response, res.Response)
		assert.Equal(t, okRes.State, res.State)

		_, err = retry.RetryReply(ctx)
		assert.ErrorIs(t, err, domain.ErrNoPendingReply)
	})
}

func TestEngine_ResumeValidation(t *testing.T) {
	provider := &stubProvider{}

	_, err := conversation.New(conversation.Config{Vignette: scenario(), Provider: provider, InitialPhaseID: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidResumeState)

	prior := domain.NewSessionState("delayed-results", "missing")
	_, err = conversation.New(conversation.Config{Vignette: scenario(), Provider: provider, PriorState: prior})
	assert.ErrorIs(t, err, domain.ErrInvalidResumeState)

	foreign := domain.NewSessionState("other-vignette", "intro")
	_, err = conversation.New(conversation.Config{Vignette: scenario(), Provider: provider, PriorState: foreign})
	assert.ErrorIs(t, err, domain.ErrInvalidResumeState)

	t.Run("Prior Difficulty Must Be Offered", func(t *testing.T) {
		v := scenario()
		v.DifficultyLevels = []domain.Difficulty{domain.DifficultyBeginner}
		prior := domain.NewSessionState("delayed-results", "intro")
		prior.Difficulty = domain.DifficultyAdvanced

		_, err := conversation.New(conversation.Config{Vignette: v, Provider: provider, PriorState: prior})
		assert.ErrorIs(t, err, domain.ErrInvalidResumeState)
		var rse *domain.ResumeStateError
		require.True(t, errors.As(err, &rse))
		assert.Equal(t, "difficulty", rse.Field)
	})

	t.Run("Prior State Wins Over Initial Phase", func(t *testing.T) {
		prior := domain.NewSessionState("delayed-results", "escalation")
		e, err := conversation.New(conversation.Config{Vignette: scenario(), Provider: provider, PriorState: prior, InitialPhaseID: "intro"})
		require.NoError(t, err)
		assert.Equal(t, "escalation", e.SessionState().CurrentPhase.CurrentPhaseID)
	})
}

func TestEngine_Difficulty(t *testing.T) {
	v := scenario()
	v.DifficultyLevels = []domain.Difficulty{domain.DifficultyBeginner}
	v.Emotions.InitialByDifficulty = map[domain.Difficulty]float64{domain.DifficultyBeginner: 1}

	_, err := conversation.New(conversation.Config{Vignette: v, Provider: &stubProvider{}, Difficulty: domain.DifficultyAdvanced})
	assert.ErrorIs(t, err, domain.ErrInvalidDifficulty)

	e := newEngine(t, conversation.Config{Vignette: v, Provider: &stubProvider{}, Difficulty: domain.DifficultyBeginner})
	state := e.SessionState()
	assert.Equal(t, domain.DifficultyBeginner, state.Difficulty)
	assert.Equal(t, 1.0, state.EmotionalState.Value)
}

func TestEngine_Temperature(t *testing.T) {
	fallback, zero := 0.7, 0.0

	t.Run("Vignette Zero Overrides Fallback", func(t *testing.T) {
		v := scenario()
		v.Temperature = &zero
		provider := &stubProvider{}
		e := newEngine(t, conversation.Config{Vignette: v, Provider: provider, Generation: ports.GenerationConfig{Temperature: &fallback}})

		_, err := e.ProcessUserMessage(context.Background(), "hello")
		require.NoError(t, err)
		require.Len(t, provider.gens, 1)
		require.NotNil(t, provider.gens[0].Temperature)
		assert.Equal(t, 0.0, *provider.gens[0].Temperature)
	})

	t.Run("Unset Uses Fallback", func(t *testing.T) {
		provider := &stubProvider{}
		e := newEngine(t, conversation.Config{Provider: provider, Generation: ports.GenerationConfig{Temperature: &fallback}})

		_, err := e.ProcessUserMessage(context.Background(), "hello")
		require.NoError(t, err)
		require.Len(t, provider.gens, 1)
		require.NotNil(t, provider.gens[0].Temperature)
		assert.Equal(t, 0.7, *provider.gens[0].Temperature)
	})
}

func TestEngine_EmptyUtterance(t *testing.T) {
	e := newEngine(t, conversation.Config{Provider: &stubProvider{}})
	_, err := e.ProcessUserMessage(context.Background(), "   \n")
	assert.ErrorIs(t, err, domain.ErrEmptyUtterance)
	assert.Empty(t, e.SessionState().Messages)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var events []string
	hooks := domain.LifecycleHooks{
		OnObjectiveMet: func(_ context.Context, e *domain.ObjectiveEvent) { events = append(events, "objective:"+e.ObjectiveID) },
		OnPhaseLeave:   func(_ context.Context, e *domain.PhaseEvent) { events = append(events, "leave:"+e.PhaseID) },
		OnPhaseEnter:   func(_ context.Context, e *domain.PhaseEvent) { events = append(events, "enter:"+e.PhaseID) },
		OnMoodChange:   func(_ context.Context, e *domain.MoodEvent) { events = append(events, "mood") },
		OnGenerate:     func(_ context.Context, e *domain.GenerateEvent) { events = append(events, "generate:"+e.Provider) },
	}
	e := newEngine(t, conversation.Config{Provider: &stubProvider{}}, conversation.WithLifecycleHooks(hooks))

	_, err := e.ProcessUserMessage(context.Background(), "Hello, my name is Dr. Reyes.")
	require.NoError(t, err)
	assert.Equal(t, []string{"objective:introduced", "leave:intro", "enter:escalation", "generate:stub"}, events)
}

func TestEngine_SnapshotIsIndependent(t *testing.T) {
	e := newEngine(t, conversation.Config{Provider: &stubProvider{}})
	_, err := e.ProcessUserMessage(context.Background(), "Good morning.")
	require.NoError(t, err)

	snap := e.SessionState()
	snap.Messages[0].Text = "tampered"
	snap.CurrentPhase.CurrentPhaseID = "resolution"

	again := e.SessionState()
	assert.Equal(t, "Good morning.", again.Messages[0].Text)
	assert.Equal(t, "intro", again.CurrentPhase.CurrentPhaseID)
}

func TestEngine_Opening(t *testing.T) {
	provider := &stubProvider{}
	e := newEngine(t, conversation.Config{Provider: provider})

	res, err := e.Opening(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Response)
	require.Len(t, res.State.Messages, 1)
	assert.Equal(t, domain.RolePersona, res.State.Messages[0].Role)
	assert.Equal(t, 0, res.State.CurrentPhase.MessageCount)

	_, err = e.Opening(context.Background())
	assert.ErrorIs(t, err, conversation.ErrTranscriptStarted)
}

func TestEngine_UpdateConversationHistory(t *testing.T) {
	provider := &stubProvider{}
	e := newEngine(t, conversation.Config{Provider: provider, HistoryWindow: 2})

	e.UpdateConversationHistory([]domain.Message{
		{Role: domain.RolePersona, Text: "Who are you?"},
		{Role: domain.RoleTrainee, Text: "A colleague."},
		{Role: domain.RolePersona, Text: "And?"},
	})
	assert.Equal(t, "intro", e.SessionState().CurrentPhase.CurrentPhaseID)
	assert.Equal(t, 0, e.SessionState().CurrentPhase.MessageCount)

	_, err := e.ProcessUserMessage(context.Background(), "Good morning.")
	require.NoError(t, err)
	require.Len(t, provider.prompts, 1)
	assert.Len(t, provider.prompts[0].Messages, 2, "window bounds the transcript")
	assert.Equal(t, "Good morning.", provider.prompts[0].Messages[1].Text)
	assert.Len(t, e.SessionState().Messages, 5)
}
