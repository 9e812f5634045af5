package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.StateStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_WritesReadableJSON(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	state := domain.NewSessionState("delayed-results", "intro")
	state.Messages = append(state.Messages, domain.Message{Role: domain.RoleTrainee, Text: "Hello, my name is Dr. Ruiz"})
	require.NoError(t, store.Save(ctx, "s1", state))

	raw, err := os.ReadFile(filepath.Join(dir, "s1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"vignetteId": "delayed-results"`)
	assert.Contains(t, string(raw), "my name is Dr. Ruiz")

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = os.Stat(filepath.Join(dir, "s1.json"))
	assert.True(t, os.IsNotExist(err), "file should not exist after delete")
	assert.NoError(t, store.Delete(ctx, "s1"), "deleting twice is fine")
}

func TestFileStore_RejectsPathLikeIDs(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", `a\b`, ".."} {
		assert.Error(t, store.Save(ctx, id, domain.NewSessionState("v", "p")), "id %q", id)
	}
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "not-yet"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
