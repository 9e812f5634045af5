package parley_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/llm"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader(t *testing.T) *memory.Loader {
	t.Helper()
	b := dsl.New("handover").Title("Shift handover")
	b.Phase("start").
		Directive("You are rushed.").
		Objective("asked", "Trainee asks about pending results", "results").
		When("asked").Requires("asked").To("detail")
	b.Phase("detail").Directive("You list the pending tests.")
	loader, err := b.Loader()
	require.NoError(t, err)
	return loader
}

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }

func (failingProvider) Generate(context.Context, ports.Prompt, ports.GenerationConfig) (string, error) {
	return "", errors.New("upstream down")
}

func TestNew_RequiresDirOrLoader(t *testing.T) {
	_, err := parley.New("")
	assert.Error(t, err)
}

func TestNew_SampleVignettes(t *testing.T) {
	p, err := parley.New("./vignettes")
	require.NoError(t, err)
	assert.Equal(t, "vignettes", p.Name)

	ids, err := p.Vignettes(context.Background())
	require.NoError(t, err)
	assert.Contains(t, ids, "delayed-results")
	assert.Contains(t, ids, "medication-error")

	eng, err := p.Open(context.Background(), parley.OpenRequest{
		VignetteID: "delayed-results",
		Difficulty: domain.DifficultyBeginner,
	})
	require.NoError(t, err)
	assert.Equal(t, "scripted", eng.Provider().Name())
	assert.Equal(t, -1.0, eng.SessionState().EmotionalState.Value)
}

func TestOpen_ResumeFromPriorState(t *testing.T) {
	p, err := parley.New("", parley.WithLoader(testLoader(t)), parley.WithProvider(llm.Echo{}))
	require.NoError(t, err)
	ctx := context.Background()

	eng, err := p.Open(ctx, parley.OpenRequest{VignetteID: "handover", UserID: "u1"})
	require.NoError(t, err)
	res, err := eng.ProcessUserMessage(ctx, "Any results pending?")
	require.NoError(t, err)
	assert.Equal(t, "detail", res.CurrentPhase)
	assert.Equal(t, "You said: Any results pending?", res.Response)

	resumed, err := p.Open(ctx, parley.OpenRequest{PriorState: res.State})
	require.NoError(t, err)
	state := resumed.SessionState()
	assert.Equal(t, "detail", state.CurrentPhase.CurrentPhaseID)
	assert.Equal(t, "u1", state.UserID)
	assert.Len(t, state.Messages, 2)
}

func TestOpen_Errors(t *testing.T) {
	p, err := parley.New("", parley.WithLoader(testLoader(t)))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.Open(ctx, parley.OpenRequest{})
	assert.ErrorIs(t, err, domain.ErrVignetteNotFound)

	_, err = p.Open(ctx, parley.OpenRequest{VignetteID: "missing"})
	assert.ErrorIs(t, err, domain.ErrVignetteNotFound)

	_, err = p.Open(ctx, parley.OpenRequest{VignetteID: "handover", Model: "no-such-model"})
	assert.ErrorIs(t, err, domain.ErrUnknownModel)

	_, err = p.Open(ctx, parley.OpenRequest{VignetteID: "handover", Difficulty: "impossible"})
	assert.ErrorIs(t, err, domain.ErrInvalidDifficulty)

	bad := domain.NewSessionState("handover", "nowhere")
	_, err = p.Open(ctx, parley.OpenRequest{PriorState: bad})
	assert.ErrorIs(t, err, domain.ErrInvalidResumeState)
}

func TestProvider_IsCachedPerModel(t *testing.T) {
	p, err := parley.New("", parley.WithLoader(testLoader(t)))
	require.NoError(t, err)

	a, err := p.Provider("echo")
	require.NoError(t, err)
	b, err := p.Provider("echo")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := p.Provider("scripted")
	require.NoError(t, err)
	assert.Equal(t, "scripted", c.Name())
}

func TestWatch_Unsupported(t *testing.T) {
	p, err := parley.New("", parley.WithLoader(testLoader(t)))
	require.NoError(t, err)
	_, err = p.Watch(context.Background())
	assert.Error(t, err)
}

func TestRunner_Conversation(t *testing.T) {
	p, err := parley.New("", parley.WithLoader(testLoader(t)),
		parley.WithProvider(llm.NewScripted("Make it quick.", "Two cultures and a CT.")))
	require.NoError(t, err)
	ctx := context.Background()
	eng, err := p.Open(ctx, parley.OpenRequest{VignetteID: "handover"})
	require.NoError(t, err)

	var out strings.Builder
	var saved []*domain.SessionState
	r := &parley.Runner{
		Input:  strings.NewReader("\nWhat results are pending?\nexit\n"),
		Output: &out,
		OnTurn: func(_ context.Context, s *domain.SessionState) error {
			saved = append(saved, s)
			return nil
		},
	}
	require.NoError(t, r.Run(ctx, eng))

	text := out.String()
	assert.Contains(t, text, "Make it quick.")
	assert.Contains(t, text, "+ objective asked")
	assert.Contains(t, text, "phase start -> detail (asked)")
	assert.Contains(t, text, "Two cultures and a CT.")
	assert.Contains(t, text, "Bye!")
	require.Len(t, saved, 2)
	assert.Equal(t, "detail", saved[1].CurrentPhase.CurrentPhaseID)
}

func TestRunner_GenerationFailureAndRetry(t *testing.T) {
	p, err := parley.New("", parley.WithLoader(testLoader(t)), parley.WithProvider(failingProvider{}))
	require.NoError(t, err)
	ctx := context.Background()
	prior := domain.NewSessionState("handover", "start")
	prior.Messages = []domain.Message{{Role: domain.RolePersona, Text: "Yes?"}}
	eng, err := p.Open(ctx, parley.OpenRequest{PriorState: prior})
	require.NoError(t, err)

	var out strings.Builder
	r := &parley.Runner{Input: strings.NewReader("hello\n/retry\n"), Output: &out}
	require.NoError(t, r.Run(ctx, eng))

	text := out.String()
	assert.Contains(t, text, "Yes?", "last persona line is replayed on resume")
	assert.Equal(t, 2, strings.Count(text, "upstream down"))
	assert.Contains(t, text, parley.RetryCommand)
}

func TestRunner_RequiresIO(t *testing.T) {
	p, err := parley.New("", parley.WithLoader(testLoader(t)), parley.WithProvider(llm.Echo{}))
	require.NoError(t, err)
	eng, err := p.Open(context.Background(), parley.OpenRequest{VignetteID: "handover"})
	require.NoError(t, err)

	assert.Error(t, (&parley.Runner{Output: &strings.Builder{}}).Run(context.Background(), eng))
	assert.Error(t, (&parley.Runner{Input: strings.NewReader("")}).Run(context.Background(), eng))
}
