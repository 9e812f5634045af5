package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func transcriptState() *domain.SessionState {
	s := domain.NewSessionState("medication-error", "disclosure")
	s.UserID = "resident-4"
	s.Messages = []domain.Message{
		{Role: domain.RoleTrainee, Text: "There was a dosing error with your wife's heparin."},
		{Role: domain.RolePersona, Text: "An error? Who gave it?"},
	}
	return s
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := NewMockStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	require.NoError(t, secure.Save(ctx, "s1", transcriptState()))

	stored, err := underlying.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, stored.Messages, "transcript must not be stored in clear")
	assert.Empty(t, stored.UserID)
	assert.Equal(t, "medication-error", stored.VignetteID)
	assert.Contains(t, stored.Metadata, middleware.EnvelopeKey)
	raw, _ := json.Marshal(stored)
	assert.NotContains(t, string(raw), "heparin")

	loaded, err := secure.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, transcriptState().Messages, loaded.Messages)
	assert.Equal(t, "resident-4", loaded.UserID)
	assert.Equal(t, "disclosure", loaded.CurrentPhase.CurrentPhaseID)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := NewMockStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, oldStore.Save(ctx, "s1", transcriptState()))

	withoutFallback := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})(underlying)
	_, err := withoutFallback.Load(ctx, "s1")
	assert.Error(t, err, "new key alone cannot open old data")

	rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)
	loaded, err := rotated.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 2)

	// Re-saving migrates the snapshot to the active key.
	require.NoError(t, rotated.Save(ctx, "s1", loaded))
	_, err = withoutFallback.Load(ctx, "s1")
	assert.NoError(t, err)
}

func TestEncryptionMiddleware_RejectsPlainState(t *testing.T) {
	underlying := NewMockStore()
	require.NoError(t, underlying.Save(context.Background(), "plain", transcriptState()))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Load(context.Background(), "plain")
	assert.ErrorIs(t, err, middleware.ErrMissingEnvelope)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	})
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(memory.NewStore())
	ports.RunStateStoreContract(t, store)
}
