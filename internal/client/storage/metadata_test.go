package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/adminvault/internal/guard"
	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

var (
	_ guard.Store         = (*MetadataRepository)(nil)
	_ identity.TokenStore = (*MetadataRepository)(nil)
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(context.Background(), db))
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewMetadataRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "attempts_a@b.c", []byte("2")))

	v, err := r.Get(ctx, "attempts_a@b.c")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestGet_MissingReturnsNilNil(t *testing.T) {
	r := NewMetadataRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSet_Upserts(t *testing.T) {
	r := NewMetadataRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

func TestDelete_Idempotent(t *testing.T) {
	r := NewMetadataRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "x", []byte{1}))
	require.NoError(t, r.Delete(ctx, "x"))
	require.NoError(t, r.Delete(ctx, "x"))

	v, err := r.Get(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestKeysAndClear_ByPrefix(t *testing.T) {
	r := NewMetadataRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "lockout_b", []byte("1")))
	require.NoError(t, r.Set(ctx, "lockout_a", []byte("1")))
	require.NoError(t, r.Set(ctx, "session_primary", []byte("{}")))

	keys, err := r.Keys(ctx, "lockout_")
	require.NoError(t, err)
	assert.Equal(t, []string{"lockout_a", "lockout_b"}, keys)

	require.NoError(t, r.Clear(ctx, "lockout_"))
	keys, err = r.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"session_primary"}, keys)

	require.NoError(t, r.Clear(ctx, ""))
	keys, err = r.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewMetadataRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get metadata[k]")
	require.ErrorContains(t, r.Set(ctx, "k", []byte("v")), "failed to set metadata[k]")
	require.ErrorContains(t, r.Delete(ctx, "k"), "failed to delete metadata[k]")
	require.ErrorContains(t, r.Clear(ctx, ""), "failed to clear metadata")
	_, err = r.Keys(ctx, "")
	require.ErrorContains(t, err, "failed to list metadata")
}
