package memory_test

import (
	"testing"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	contract "github.com/aretw0/parley/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitingRoom = `
id: waiting-room
title: Waiting room
persona: { name: Lee }
phases:
  - phaseId: only
    directive: You are impatient.
`

const badNews = `{"id": "bad-news", "title": "Bad news", "persona": {"name": "Ana"},
  "phases": [{"phaseId": "a", "directive": "Listen."}]}`

func TestInMemoryLoader_Contract(t *testing.T) {
	loader, err := memory.NewLoader(map[string]string{
		"waiting-room.yaml": waitingRoom,
		"bad-news.json":     badNews,
	})
	require.NoError(t, err)

	contract.VignetteLoaderContractTest(t, loader, map[string]string{
		"waiting-room": "Waiting room",
		"bad-news":     "Bad news",
	})
}

func TestInMemoryLoader_FromVignettes(t *testing.T) {
	v := &domain.Vignette{ID: "x", Title: "X", Phases: []domain.Phase{{ID: "a", Directive: "d"}}}
	loader, err := memory.NewFromVignettes(v)
	require.NoError(t, err)
	contract.VignetteLoaderContractTest(t, loader, map[string]string{"x": "X"})

	_, err = memory.NewFromVignettes(v, v)
	assert.Error(t, err, "duplicate ids are rejected")

	_, err = memory.NewFromVignettes(&domain.Vignette{ID: "empty"})
	assert.ErrorIs(t, err, domain.ErrInvalidVignette)
}

func TestInMemoryLoader_RejectsInvalidDocument(t *testing.T) {
	_, err := memory.NewLoader(map[string]string{"broken.yaml": "id: broken\nphases: []\n"})
	assert.ErrorIs(t, err, domain.ErrInvalidVignette)
}
