package vignette_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/vignette"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFile_Sample(t *testing.T) {
	v, err := vignette.ParseFile(filepath.Join("..", "..", "vignettes", "delayed-results.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "delayed-results", v.ID)
	assert.Equal(t, 160, v.MaxResponseLength)
	require.NotNil(t, v.Temperature)
	assert.Equal(t, 0.8, *v.Temperature)
	assert.Equal(t, "Dana Whitfield", v.Persona.Name)
	require.Len(t, v.Phases, 3)
	assert.Equal(t, "intro", v.InitialPhase().ID)
	assert.Equal(t, domain.MatchPhrase, v.Phases[0].Objectives[0].Match.Type)
	assert.Equal(t, -1.5, v.Phases[0].BranchTriggers[1].MoodShift)
	assert.Equal(t, -3.5, v.Emotions.InitialByDifficulty[domain.DifficultyAdvanced])
	require.NotNil(t, v.VoiceConfig)
	assert.Equal(t, 0.45, v.VoiceConfig.Stability)
}

func TestParse_JSON(t *testing.T) {
	doc := []byte(`{
		"id": "short",
		"title": "Short",
		"maxResponseLength": 90,
		"persona": {"name": "Sam"},
		"phases": [
			{"phaseId": "a", "directive": "Be curt.", "stallAfter": 2},
			{"phaseId": "b", "directive": "Be kind."}
		]
	}`)
	v, err := vignette.Parse(doc, vignette.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 90, v.MaxResponseLength)
	assert.Equal(t, 2, v.Phases[0].StallAfter)
}

func TestParse_SchemaProblems(t *testing.T) {
	doc := []byte(`
id: broken
title: Broken
difficultyLevels: [expert]
phases:
  - phaseId: a
    directive: Hi
    branchTriggers:
      - id: go
        targt: b
`)
	_, err := vignette.Parse(doc, vignette.FormatYAML)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidVignette)

	var vErr *domain.VignetteError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "broken", vErr.VignetteID)
	assert.GreaterOrEqual(t, len(vErr.Problems), 2)
	assert.Contains(t, err.Error(), "/difficultyLevels/0")
	assert.Contains(t, err.Error(), "/phases/0/branchTriggers/0")
}

func TestParse_StructuralProblems(t *testing.T) {
	doc := []byte(`
id: dangling
title: Dangling target
phases:
  - phaseId: a
    directive: Hi
    branchTriggers:
      - id: go
        target: nowhere
`)
	_, err := vignette.Parse(doc, vignette.FormatYAML)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidVignette)
	assert.Contains(t, err.Error(), `unknown target "nowhere"`)
}

func TestParse_Malformed(t *testing.T) {
	_, err := vignette.Parse([]byte("id: [unclosed"), vignette.FormatYAML)
	assert.ErrorIs(t, err, domain.ErrInvalidVignette)

	_, err = vignette.Parse([]byte(""), vignette.FormatJSON)
	assert.ErrorIs(t, err, domain.ErrInvalidVignette)
}

func TestParseFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))
	_, err := vignette.ParseFile(path)
	assert.Error(t, err)
}

func TestDecode_JSONNumbers(t *testing.T) {
	v, err := vignette.Decode(map[string]any{
		"id":                "n",
		"maxResponseLength": "120",
		"emotions":          map[string]any{"maxStep": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 120, v.MaxResponseLength)
	assert.Equal(t, 2.0, v.Emotions.MaxStep)
}
