package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lorrc/liveops/internal/core/errors"
)

func openTestStore(t *testing.T, path string) *KeyValueStore {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKeyValueStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.db"))

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "liveops_field_search", "acme"))
	v, err := s.Get(ctx, "liveops_field_search")
	require.NoError(t, err)
	assert.Equal(t, "acme", v)

	require.NoError(t, s.Set(ctx, "liveops_field_search", "globex"))
	v, err = s.Get(ctx, "liveops_field_search")
	require.NoError(t, err)
	assert.Equal(t, "globex", v)

	require.NoError(t, s.Delete(ctx, "liveops_field_search"))
	_, err = s.Get(ctx, "liveops_field_search")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)

	assert.NoError(t, s.Delete(ctx, "never-set"))
	assert.NoError(t, s.Ping(ctx))
}

func TestKeyValueStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kv.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "auth_token", "tok"))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	v, err := reopened.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.Equal(t, "tok", v)
}
