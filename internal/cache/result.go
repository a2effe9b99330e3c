package cache

import (
	"context"
	"fmt"

	"github.com/fableforge/avatard/internal/avatar"
	"github.com/fableforge/avatard/internal/database"
	"github.com/fableforge/avatard/internal/storage"
	"go.uber.org/zap"
)

// Tier names reported in lookup results and the X-Cache header.
const (
	TierMemory = "memory"
	TierDisk   = "disk"
	TierRemote = "remote"
)

// Result is the fingerprint-keyed cache for rendered avatars. The front-view
// bytes live in memory and on disk; the object store holds the canonical
// user-keyed copies of all three artifacts.
type Result struct {
	memory *Memory[uint32, []byte]
	disk   *Disk
	store  *storage.Client
	db     database.Client
	logger *zap.Logger
}

// NewResult assembles the three-tier result cache.
func NewResult(
	memory *Memory[uint32, []byte], disk *Disk, store *storage.Client,
	db database.Client, logger *zap.Logger,
) *Result {
	return &Result{
		memory: memory,
		disk:   disk,
		store:  store,
		db:     db,
		logger: logger.Named("result_cache"),
	}
}

// diskName maps a fingerprint to its file under avatars/.
func diskName(fp uint32) string {
	return fmt.Sprintf("%08x.webp", fp)
}

// Lookup returns the front-view bytes for a fingerprint from the first local
// tier that has them, along with the tier name. The remote tier is only
// consulted when username is non-empty, since remote objects are user-keyed.
func (r *Result) Lookup(ctx context.Context, username string, fp uint32) ([]byte, string, bool) {
	if data, ok := r.memory.Get(fp); ok {
		return data, TierMemory, true
	}

	if data, err := r.disk.Read(diskName(fp)); err == nil {
		r.memory.Set(fp, data)
		return data, TierDisk, true
	}

	if username == "" {
		return nil, "", false
	}

	data, err := r.store.Get(ctx, storage.AvatarKey(username))
	if err != nil {
		return nil, "", false
	}

	// Backfill the local tiers so the next hit on this node is free.
	r.memory.Set(fp, data)

	if err := r.disk.Write(diskName(fp), data); err != nil {
		r.logger.Warn("Failed to backfill disk tier",
			zap.Uint32("fingerprint", fp),
			zap.Error(err))
	}

	return data, TierRemote, true
}

// Store publishes one render. Order matters: local disk first so the next hit
// on this node is free, then the three remote objects, then the user record's
// hash and keys in one update. The record update comes last so a failure
// anywhere leaves the stored hash unchanged and the entry simply invalid.
func (r *Result) Store(ctx context.Context, username string, fp uint32, artifacts *avatar.Artifacts) error {
	r.memory.Set(fp, artifacts.Avatar)

	if err := r.disk.Write(diskName(fp), artifacts.Avatar); err != nil {
		r.logger.Warn("Failed to write result to disk tier",
			zap.String("username", username),
			zap.Uint32("fingerprint", fp),
			zap.Error(err))
	}

	avatarKey := storage.AvatarKey(username)
	clothingKey := storage.ClothingKey(username)
	thumbnailKey := storage.ThumbnailKey(username)

	for _, object := range []struct {
		key  string
		data []byte
	}{
		{avatarKey, artifacts.Avatar},
		{clothingKey, artifacts.Sheet},
		{thumbnailKey, artifacts.Thumbnail},
	} {
		if err := r.store.Put(ctx, object.key, object.data, "image/webp"); err != nil {
			return fmt.Errorf("failed to store %s: %w", object.key, err)
		}
	}

	if err := r.db.Users().UpdateRenderKeys(
		ctx, username, fp, avatarKey, clothingKey, thumbnailKey,
	); err != nil {
		return fmt.Errorf("failed to update render keys for %s: %w", username, err)
	}

	return nil
}

// Purge empties the local tiers and returns per-tier removal counts.
func (r *Result) Purge() (memory, disk int) {
	memory = r.memory.Purge()

	disk, err := r.disk.Purge()
	if err != nil {
		r.logger.Warn("Failed to purge result disk tier", zap.Error(err))
	}

	return memory, disk
}

// MemoryStats exposes the memory tier snapshot for the health endpoint.
func (r *Result) MemoryStats() MemoryStats {
	return r.memory.Stats()
}

// DiskCount exposes the disk tier entry count for the health endpoint.
func (r *Result) DiskCount() int {
	return r.disk.Count()
}
