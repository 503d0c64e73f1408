package shard

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string
	Lane string
	N    int
}

func laneKey(v *item) string { return v.Lane }

func TestStore_PutGetAcrossShards(t *testing.T) {
	s := New(laneKey)
	s.Put("a", &item{ID: "a", Lane: "LOCAL"})
	s.Put("b", &item{ID: "b", Lane: "GLOBAL"})

	v, ok := s.GetIn("LOCAL", "a")
	require.True(t, ok)
	assert.Equal(t, "a", v.ID)

	// Get without a shard key scans all shards.
	v, ok = s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "GLOBAL", v.Lane)

	_, ok = s.GetIn("LOCAL", "b")
	assert.False(t, ok, "b lives in the GLOBAL shard")
}

func TestStore_PutOverwriteKeepsSize(t *testing.T) {
	s := New(laneKey)
	s.Put("a", &item{ID: "a", Lane: "LOCAL", N: 1})
	s.Put("a", &item{ID: "a", Lane: "LOCAL", N: 2})
	assert.Equal(t, 1, s.TotalSize())
	v, _ := s.Get("a")
	assert.Equal(t, 2, v.N)
}

func TestStore_Update(t *testing.T) {
	s := New(laneKey)
	s.Put("a", &item{ID: "a", Lane: "LOCAL", N: 1})

	ok := s.Update("a", func(v *item) *item {
		return &item{ID: v.ID, Lane: v.Lane, N: v.N + 1}
	})
	require.True(t, ok)
	v, _ := s.Get("a")
	assert.Equal(t, 2, v.N)

	assert.False(t, s.Update("missing", func(v *item) *item { return v }))
}

func TestStore_UpdateRehomesAcrossShards(t *testing.T) {
	s := New(laneKey)
	s.Put("a", &item{ID: "a", Lane: "LOCAL"})

	ok := s.Update("a", func(v *item) *item {
		return &item{ID: v.ID, Lane: "GLOBAL"}
	})
	require.True(t, ok)

	_, ok = s.GetIn("LOCAL", "a")
	assert.False(t, ok)
	v, ok := s.GetIn("GLOBAL", "a")
	require.True(t, ok)
	assert.Equal(t, "GLOBAL", v.Lane)
	assert.Equal(t, 1, s.TotalSize())
}

func TestStore_UpdateIsAtomicUnderContention(t *testing.T) {
	s := New(laneKey)
	s.Put("a", &item{ID: "a", Lane: "LOCAL"})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Update("a", func(v *item) *item {
					return &item{ID: v.ID, Lane: v.Lane, N: v.N + 1}
				})
			}
		}()
	}
	wg.Wait()

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 800, v.N, "no increment may be lost")
}

func TestStore_Delete(t *testing.T) {
	s := New(laneKey)
	s.Put("a", &item{ID: "a", Lane: "LOCAL"})
	assert.True(t, s.Delete("a", "LOCAL"))
	assert.False(t, s.Delete("a", "LOCAL"))
	assert.Equal(t, 0, s.TotalSize())

	s.Put("b", &item{ID: "b", Lane: "GLOBAL"})
	assert.True(t, s.Delete("b"), "delete without shard key scans")
}

func TestStore_QueryShardFilterAndLimit(t *testing.T) {
	s := New(laneKey)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("d%d", i)
		s.Put(id, &item{ID: id, Lane: "LOCAL", N: i})
	}
	even := s.QueryShard("LOCAL", func(v *item) bool { return v.N%2 == 0 }, 3)
	require.Len(t, even, 3)
	// Insertion order preserved.
	assert.Equal(t, 0, even[0].N)
	assert.Equal(t, 2, even[1].N)
	assert.Equal(t, 4, even[2].N)

	assert.Nil(t, s.QueryShard("MISSING", nil, 0))
}

func TestStore_ListShardsInsertionOrder(t *testing.T) {
	s := New(laneKey)
	s.Put("a", &item{ID: "a", Lane: "LOCAL"})
	s.Put("b", &item{ID: "b", Lane: "GLOBAL"})
	s.Put("c", &item{ID: "c", Lane: "LOCAL"})
	assert.Equal(t, []string{"LOCAL", "GLOBAL"}, s.ListShards())
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	s := New(laneKey)
	s.Put("a", &item{ID: "a", Lane: "LOCAL", N: 1})
	s.Put("b", &item{ID: "b", Lane: "GLOBAL", N: 2})

	restored := New(laneKey)
	restored.Import(s.Export())
	assert.Equal(t, 2, restored.TotalSize())
	v, ok := restored.GetIn("GLOBAL", "b")
	require.True(t, ok)
	assert.Equal(t, 2, v.N)
}

func TestStore_ConcurrentMixedShards(t *testing.T) {
	s := New(laneKey)
	var wg sync.WaitGroup
	lanes := []string{"LOCAL", "GLOBAL", "MARKETPLACE"}
	for w := 0; w < 12; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			lane := lanes[w%3]
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				s.Put(id, &item{ID: id, Lane: lane, N: i})
				_, _ = s.GetIn(lane, id)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 12*200, s.TotalSize())
	assert.Len(t, s.ListShards(), 3)
}
