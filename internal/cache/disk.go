package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Disk is a flat directory tier holding one file per cache key. Writes go
// through a temp file and rename so readers never observe partial content;
// a sweeper garbage-collects entries past a maximum age.
type Disk struct {
	dir    string
	maxAge time.Duration
	logger *zap.Logger
}

// NewDisk creates the directory if needed and returns the tier.
func NewDisk(dir string, maxAge time.Duration, logger *zap.Logger) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	return &Disk{
		dir:    dir,
		maxAge: maxAge,
		logger: logger.Named("disk_cache"),
	}, nil
}

// Dir returns the backing directory.
func (d *Disk) Dir() string {
	return d.dir
}

// Read returns the content of one entry. A missing entry reports
// os.ErrNotExist.
func (d *Disk) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", name, err)
	}

	return data, nil
}

// Write atomically replaces one entry. The temp file lives in the same
// directory so the rename never crosses filesystems.
func (d *Disk) Write(name string, data []byte) error {
	tmp, err := os.CreateTemp(d.dir, name+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write temp file for %s: %w", name, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish cache entry %s: %w", name, err)
	}

	return nil
}

// Remove drops one entry; missing entries are not an error.
func (d *Disk) Remove(name string) error {
	err := os.Remove(filepath.Join(d.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cache entry %s: %w", name, err)
	}

	return nil
}

// Purge removes every entry and returns the count.
func (d *Disk) Purge() (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache directory: %w", err)
	}

	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if err := os.Remove(filepath.Join(d.dir, entry.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}

// Sweep removes entries whose modification time is older than the maximum
// age and returns how many were dropped.
func (d *Disk) Sweep(now time.Time) int {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		d.logger.Warn("Failed to list cache directory for sweep", zap.Error(err))
		return 0
	}

	cutoff := now.Add(-d.maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(d.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		d.logger.Info("Swept expired cache entries",
			zap.String("dir", d.dir),
			zap.Int("removed", removed))
	}

	return removed
}

// StartSweeper runs Sweep on the given interval until the context ends.
func (d *Disk) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				d.Sweep(now)
			}
		}
	}()
}

// Count returns the number of entries currently on disk.
func (d *Disk) Count() int {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0
	}

	n := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			n++
		}
	}

	return n
}
