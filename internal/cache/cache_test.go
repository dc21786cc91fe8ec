package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesweep/codesweep/internal/finding"
)

func sampleFindings() []finding.Finding {
	return []finding.Finding{
		{
			Kind:        finding.KindDebt,
			Severity:    finding.SeverityLow,
			Description: "TODO left in code",
			File:        "a.py",
			Line:        10,
			Action:      "resolve or remove the TODO",
			Sources:     []string{"todo"},
		},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	_, hit, err := store.Get(ctx, "a.py", "hash1", "todo@1.0.0")
	require.NoError(t, err)
	assert.False(t, hit)

	want := sampleFindings()
	require.NoError(t, store.Put(ctx, "a.py", "hash1", "todo@1.0.0", want))

	got, hit, err := store.Get(ctx, "a.py", "hash1", "todo@1.0.0")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, want, got)

	// Different content hash is a different key: changed files miss.
	_, hit, err = store.Get(ctx, "a.py", "hash2", "todo@1.0.0")
	require.NoError(t, err)
	assert.False(t, hit)

	// Different plugin version is a different key: upgrades invalidate.
	_, hit, err = store.Get(ctx, "a.py", "hash1", "todo@1.1.0")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryStorePutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	first := sampleFindings()
	require.NoError(t, store.Put(ctx, "a.py", "h", "p@1.0.0", first))
	require.NoError(t, store.Put(ctx, "a.py", "h", "p@1.0.0", first))

	got, hit, err := store.Get(ctx, "a.py", "h", "p@1.0.0")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, first, got)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	require.NoError(t, store.Put(ctx, "a.py", "h", "p@1.0.0", sampleFindings()))

	got, _, err := store.Get(ctx, "a.py", "h", "p@1.0.0")
	require.NoError(t, err)
	got[0].Description = "mutated by caller"

	again, _, err := store.Get(ctx, "a.py", "h", "p@1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "TODO left in code", again[0].Description)
}

func TestMemoryStoreEviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(memoryShards) // one entry per shard

	for i := 0; i < memoryShards*4; i++ {
		key := fmt.Sprintf("file%d.py", i)
		require.NoError(t, store.Put(ctx, key, "h", "p@1.0.0", sampleFindings()))
	}

	total := 0
	for i := 0; i < memoryShards*4; i++ {
		key := fmt.Sprintf("file%d.py", i)
		if _, hit, _ := store.Get(ctx, key, "h", "p@1.0.0"); hit {
			total++
		}
	}
	assert.LessOrEqual(t, total, memoryShards, "each shard is bounded to one entry")
	assert.Greater(t, total, 0, "recent entries survive")
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			file := fmt.Sprintf("file%d.py", n%8)
			for j := 0; j < 50; j++ {
				_ = store.Put(ctx, file, "h", "p@1.0.0", sampleFindings())
				_, _, _ = store.Get(ctx, file, "h", "p@1.0.0")
			}
		}(i)
	}
	wg.Wait()

	got, hit, err := store.Get(ctx, "file0.py", "h", "p@1.0.0")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, sampleFindings(), got, "concurrent identical writers converge to the same value")
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer store.Close()

	_, hit, err := store.Get(ctx, "a.py", "hash1", "todo@1.0.0")
	require.NoError(t, err)
	assert.False(t, hit)

	want := sampleFindings()
	require.NoError(t, store.Put(ctx, "a.py", "hash1", "todo@1.0.0", want))

	got, hit, err := store.Get(ctx, "a.py", "hash1", "todo@1.0.0")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, want, got)

	// Overwrite silently with the same key.
	require.NoError(t, store.Put(ctx, "a.py", "hash1", "todo@1.0.0", want))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestSQLiteStorePrune(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, "a.py", "h", "p@1.0.0", sampleFindings()))

	// Nothing is older than a day.
	pruned, err := store.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	// Everything is older than a negative age.
	pruned, err = store.Prune(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, hit, err := store.Get(ctx, "a.py", "h", "p@1.0.0")
	require.NoError(t, err)
	assert.False(t, hit)
}
