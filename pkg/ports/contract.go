package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")
	ts := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewSessionState("vignette-1", "escalation")
		state.UserID = "resident-7"
		state.Difficulty = domain.DifficultyAdvanced
		state.CurrentPhase.ObjectivesCompleted = []string{"acknowledged_concern"}
		state.CurrentPhase.MessageCount = 2
		state.CompletedPhases = []domain.PhaseState{{CurrentPhaseID: "intro", ObjectivesCompleted: []string{"introduced"}, MessageCount: 3}}
		state.BranchHistory = []domain.BranchRecord{{PhaseID: "escalation", BranchTrigger: "stall", From: "intro", Timestamp: ts}}
		state.EmotionalState = domain.EmotionalState{Value: -2.5, Trend: domain.TrendEscalating, Label: "agitated"}
		state.Messages = []domain.Message{
			{Role: domain.RoleTrainee, Text: "I understand", Timestamp: ts, PhaseID: "escalation"},
			{Role: domain.RolePersona, Text: "Do you?", Timestamp: ts, PhaseID: "escalation"},
		}

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.VignetteID, loaded.VignetteID)
		assert.Equal(t, state.UserID, loaded.UserID)
		assert.Equal(t, state.Difficulty, loaded.Difficulty)
		assert.Equal(t, state.CurrentPhase, loaded.CurrentPhase)
		assert.Equal(t, state.CompletedPhases, loaded.CompletedPhases)
		assert.Equal(t, state.EmotionalState, loaded.EmotionalState)
		require.Len(t, loaded.BranchHistory, 1)
		assert.Equal(t, "stall", loaded.BranchHistory[0].BranchTrigger)
		assert.True(t, ts.Equal(loaded.BranchHistory[0].Timestamp))
		require.Len(t, loaded.Messages, 2)
		assert.Equal(t, "Do you?", loaded.Messages[1].Text)
		assert.Equal(t, domain.RolePersona, loaded.Messages[1].Role)
	})

	t.Run("Load Returns Independent Copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.CurrentPhase.CurrentPhaseID = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "escalation", again.CurrentPhase.CurrentPhaseID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSessionState("vignette-1", "intro"))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSessionState("vignette-1", "intro"))
		_ = store.Save(ctx, id2, domain.NewSessionState("vignette-1", "intro"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
