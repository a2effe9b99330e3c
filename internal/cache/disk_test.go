package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fableforge/avatard/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDisk(t *testing.T, maxAge time.Duration) *cache.Disk {
	t.Helper()

	d, err := cache.NewDisk(filepath.Join(t.TempDir(), "tier"), maxAge, zap.NewNop())
	require.NoError(t, err)

	return d
}

func TestDiskReadWrite(t *testing.T) {
	t.Parallel()

	d := newDisk(t, time.Hour)

	_, err := d.Read("missing.webp")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, d.Write("a.webp", []byte("payload")))

	got, err := d.Read("a.webp")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	// Overwrite replaces atomically; no temp files stay behind.
	require.NoError(t, d.Write("a.webp", []byte("replaced")))

	got, err = d.Read("a.webp")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), got)
	assert.Equal(t, 1, d.Count())
}

func TestDiskRemove(t *testing.T) {
	t.Parallel()

	d := newDisk(t, time.Hour)

	require.NoError(t, d.Write("a.webp", []byte("x")))
	require.NoError(t, d.Remove("a.webp"))

	// Removing a missing entry is not an error.
	require.NoError(t, d.Remove("a.webp"))
	assert.Equal(t, 0, d.Count())
}

func TestDiskPurge(t *testing.T) {
	t.Parallel()

	d := newDisk(t, time.Hour)

	require.NoError(t, d.Write("a.webp", []byte("1")))
	require.NoError(t, d.Write("b.webp", []byte("2")))

	removed, err := d.Purge()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, d.Count())
}

func TestDiskSweep(t *testing.T) {
	t.Parallel()

	d := newDisk(t, time.Hour)

	require.NoError(t, d.Write("old.webp", []byte("1")))
	require.NoError(t, d.Write("new.webp", []byte("2")))

	// Age one entry past the cutoff.
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(d.Dir(), "old.webp"), old, old))

	assert.Equal(t, 1, d.Sweep(time.Now()))

	_, err := d.Read("old.webp")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = d.Read("new.webp")
	assert.NoError(t, err)
}
