package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVignette() *domain.Vignette {
	return &domain.Vignette{
		ID:    "angry-daughter",
		Title: "Delayed diagnosis",
		Persona: domain.Persona{
			Name: "Dana",
			Role: "daughter of the patient",
		},
		Phases: []domain.Phase{
			{
				ID:        "intro",
				Directive: "You are worried and short-tempered.",
				Objectives: []domain.Objective{
					{ID: "introduced", Description: "Trainee introduces themselves", Match: domain.Matcher{Keywords: []string{"my name is"}}},
				},
				BranchTriggers: []domain.BranchTrigger{
					{ID: "introduced", Target: "escalation", RequireObjectives: []string{"introduced"}},
				},
				StallAfter: 3,
			},
			{ID: "escalation", Directive: "You escalate."},
			{ID: "resolution", Directive: "You calm down."},
		},
	}
}

func TestVignette_Validate_OK(t *testing.T) {
	require.NoError(t, sampleVignette().Validate())
}

func TestVignette_Validate_CollectsProblems(t *testing.T) {
	v := sampleVignette()
	v.Phases = append(v.Phases, domain.Phase{ID: "intro"})
	v.Phases[0].BranchTriggers = append(v.Phases[0].BranchTriggers,
		domain.BranchTrigger{ID: "ghost", Target: "nowhere"},
		domain.BranchTrigger{ID: domain.StallTriggerID, Target: "resolution"},
		domain.BranchTrigger{ID: "bad-regex", Target: "resolution", Match: &domain.Matcher{Type: domain.MatchRegex, Pattern: "("}},
	)
	v.Emotions = domain.EmotionConfig{MaxStep: 20}

	err := v.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidVignette)

	var vErr *domain.VignetteError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "angry-daughter", vErr.VignetteID)
	assert.Contains(t, err.Error(), `duplicate phaseId "intro"`)
	assert.Contains(t, err.Error(), `unknown target "nowhere"`)
	assert.Contains(t, err.Error(), "is reserved")
	assert.Contains(t, err.Error(), "bad pattern")
	assert.Contains(t, err.Error(), "maxStep")
}

func TestVignette_StallTarget(t *testing.T) {
	v := sampleVignette()

	target, ok := v.StallTarget(&v.Phases[0])
	assert.True(t, ok)
	assert.Equal(t, "escalation", target, "defaults to the next phase")

	_, ok = v.StallTarget(&v.Phases[1])
	assert.False(t, ok, "stallAfter unset")

	v.Phases[2].StallAfter = 2
	_, ok = v.StallTarget(&v.Phases[2])
	assert.False(t, ok, "last phase has no successor")
}

func TestVignette_Difficulty(t *testing.T) {
	v := sampleVignette()
	assert.True(t, v.SupportsDifficulty(domain.DifficultyAdvanced), "all levels offered by default")

	v.DifficultyLevels = []domain.Difficulty{domain.DifficultyBeginner}
	assert.True(t, v.SupportsDifficulty(domain.DifficultyBeginner))
	assert.False(t, v.SupportsDifficulty(domain.DifficultyAdvanced))
	assert.True(t, v.SupportsDifficulty(""))
}

func TestMoodLabel(t *testing.T) {
	cfg := domain.EmotionConfig{}
	assert.Equal(t, "hostile", domain.MoodLabel(-5, cfg))
	assert.Equal(t, "agitated", domain.MoodLabel(-2, cfg))
	assert.Equal(t, "guarded", domain.MoodLabel(0, cfg))
	assert.Equal(t, "receptive", domain.MoodLabel(2, cfg))
	assert.Equal(t, "cooperative", domain.MoodLabel(5, cfg))
}

func TestSessionState_CloneIsIndependent(t *testing.T) {
	s := domain.NewSessionState("v1", "intro")
	s.CurrentPhase.ObjectivesCompleted = append(s.CurrentPhase.ObjectivesCompleted, "a")
	s.Messages = append(s.Messages, domain.Message{Role: domain.RoleTrainee, Text: "hi", Timestamp: time.Now()})
	s.Metadata = map[string]string{"tenant": "t1"}

	c := s.Clone()
	c.CurrentPhase.ObjectivesCompleted[0] = "changed"
	c.Messages[0].Text = "changed"
	c.Metadata["tenant"] = "changed"

	assert.Equal(t, "a", s.CurrentPhase.ObjectivesCompleted[0])
	assert.Equal(t, "hi", s.Messages[0].Text)
	assert.Equal(t, "t1", s.Metadata["tenant"])
}

func TestSessionState_JSONShape(t *testing.T) {
	s := domain.NewSessionState("v1", "intro")
	bytes, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(bytes, &raw))
	current := raw["currentPhase"].(map[string]any)
	assert.Equal(t, "intro", current["currentPhaseId"])
	assert.Contains(t, current, "objectivesCompleted")
	assert.Contains(t, current, "messageCount")
	assert.Contains(t, raw, "branchHistory")
	assert.Contains(t, raw, "emotionalState")
}

func TestErrors_Classification(t *testing.T) {
	genErr := &domain.GenerationError{Provider: "openai", Model: "gpt-4o", Err: errors.New("boom")}
	assert.ErrorIs(t, genErr, domain.ErrGenerationFailure)
	assert.Contains(t, genErr.Error(), "openai/gpt-4o")

	resumeErr := &domain.ResumeStateError{Field: "currentPhaseId", Value: "x", Reason: "unknown phase"}
	assert.ErrorIs(t, resumeErr, domain.ErrInvalidResumeState)
	assert.NotErrorIs(t, resumeErr, domain.ErrGenerationFailure)
}
