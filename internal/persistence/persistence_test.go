package persistence

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUnderTest runs the shared contract against any Store.
func storeUnderTest(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "k1", []byte("v1")))
	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, s.Put(ctx, "k1", []byte("v2")), "put overwrites")
	got, err = s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, s.Delete(ctx, "k1"))
	_, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "never-existed"), "delete is idempotent")
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	storeUnderTest(t, s)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	storeUnderTest(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snap.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "k", []byte("durable")))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), got)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	shards, _ := json.Marshal(map[string]int{"LOCAL": 3, "GLOBAL": 1})
	snap := Snapshot{
		TakenAt:        time.Unix(5000, 0).UTC(),
		Seed:           "seed-1",
		SequenceCursor: 42,
		Shards:         shards,
		RecentHashes:   []string{"v1:abc", "v1:def"},
	}
	require.NoError(t, SaveSnapshot(ctx, s, "snapshot", snap))

	got, err := LoadSnapshot(ctx, s, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, snap.Seed, got.Seed)
	assert.Equal(t, snap.SequenceCursor, got.SequenceCursor)
	assert.Equal(t, snap.RecentHashes, got.RecentHashes)
	assert.JSONEq(t, string(shards), string(got.Shards))

	_, err = LoadSnapshot(ctx, s, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}
