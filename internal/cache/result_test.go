package cache_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fableforge/avatard/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLocalResult(t *testing.T) *cache.Result {
	t.Helper()

	memory, err := cache.NewMemory[uint32, []byte](8, 1024, 0, cache.SizeOfBytes)
	require.NoError(t, err)

	disk, err := cache.NewDisk(filepath.Join(t.TempDir(), "avatars"), time.Hour, zap.NewNop())
	require.NoError(t, err)

	// No object store wired; lookups with an empty username stay local.
	return cache.NewResult(memory, disk, nil, nil, zap.NewNop())
}

func TestResultLookupLocalTiers(t *testing.T) {
	t.Parallel()

	r := newLocalResult(t)
	ctx := context.Background()

	_, _, ok := r.Lookup(ctx, "", 0xdeadbeef)
	assert.False(t, ok)

	// A memory hit reports the memory tier.
	mem := r.MemoryStats()
	assert.Equal(t, 0, mem.Entries)
}

func TestResultDiskBackfillsMemory(t *testing.T) {
	t.Parallel()

	memory, err := cache.NewMemory[uint32, []byte](8, 1024, 0, cache.SizeOfBytes)
	require.NoError(t, err)

	disk, err := cache.NewDisk(filepath.Join(t.TempDir(), "avatars"), time.Hour, zap.NewNop())
	require.NoError(t, err)

	r := cache.NewResult(memory, disk, nil, nil, zap.NewNop())

	// Seed only the disk tier, the way a restart leaves it.
	require.NoError(t, disk.Write("0000002a.webp", []byte("front")))

	data, tier, ok := r.Lookup(context.Background(), "", 42)
	require.True(t, ok)
	assert.Equal(t, cache.TierDisk, tier)
	assert.Equal(t, []byte("front"), data)

	// The hit populated memory; the next lookup is served there.
	data, tier, ok = r.Lookup(context.Background(), "", 42)
	require.True(t, ok)
	assert.Equal(t, cache.TierMemory, tier)
	assert.Equal(t, []byte("front"), data)
}

func TestResultPurge(t *testing.T) {
	t.Parallel()

	memory, err := cache.NewMemory[uint32, []byte](8, 1024, 0, cache.SizeOfBytes)
	require.NoError(t, err)

	disk, err := cache.NewDisk(filepath.Join(t.TempDir(), "avatars"), time.Hour, zap.NewNop())
	require.NoError(t, err)

	r := cache.NewResult(memory, disk, nil, nil, zap.NewNop())

	require.NoError(t, disk.Write("00000001.webp", []byte("a")))
	memory.Set(1, []byte("a"))

	gotMemory, gotDisk := r.Purge()
	assert.Equal(t, 1, gotMemory)
	assert.Equal(t, 1, gotDisk)
	assert.Equal(t, 0, r.DiskCount())
}
