// Package parts fetches and caches the sprite sheets that the compositor
// stacks into an avatar: item sprites from the CDN and body base sheets from
// local disk.
package parts

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fableforge/avatard/internal/avatar"
	"github.com/fableforge/avatard/internal/cache"
	"github.com/jaxron/axonet/pkg/client"
	"go.uber.org/zap"
	"golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
)

// Loader resolves item references to decoded sprite sheets through three
// tiers: a bounded memory cache of decoded rasters, a PNG directory on disk,
// and finally the CDN origin. Failures at any tier degrade to a nil sheet so
// a render never fails because one part is missing.
type Loader struct {
	client   *client.Client
	memory   *cache.Memory[string, *image.NRGBA]
	disk     *cache.Disk
	basesDir string
	baseURL  string
	fetchSem *semaphore.Weighted
	logger   *zap.Logger
}

// NewLoader creates a part loader. fetchLimit bounds concurrent CDN fetches
// across all render workers.
func NewLoader(
	axonetClient *client.Client, memory *cache.Memory[string, *image.NRGBA], disk *cache.Disk,
	basesDir, baseURL string, fetchLimit int64, logger *zap.Logger,
) *Loader {
	if fetchLimit <= 0 {
		fetchLimit = 10
	}

	return &Loader{
		client:   axonetClient,
		memory:   memory,
		disk:     disk,
		basesDir: basesDir,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		fetchSem: semaphore.NewWeighted(fetchLimit),
		logger:   logger.Named("parts"),
	}
}

// Load returns the sprite sheet for one item reference, or nil when the part
// cannot be obtained. References are case-insensitive.
func (l *Loader) Load(ctx context.Context, ref string) *image.NRGBA {
	if ref == "" {
		return nil
	}

	key := strings.ToLower(ref)

	if img, ok := l.memory.Get(key); ok {
		return img
	}

	if img := l.loadDisk(key); img != nil {
		l.memory.Set(key, img)
		return img
	}

	img := l.fetchCDN(ctx, key)
	if img == nil {
		return nil
	}

	l.memory.Set(key, img)

	// Persist asynchronously; the render does not wait on disk.
	go l.storeDisk(key, img)

	return img
}

// LoadBase returns the body base sheet for one sex and skin tone, or nil when
// no matching sheet is installed. Base sheets are immutable, so decoded copies
// live in the memory tier alongside the item sprites. The "base:" prefix keeps
// them apart from item keys, which are bare lowercased references.
func (l *Loader) LoadBase(sex avatar.Sex, skinTone int) *image.NRGBA {
	name := fmt.Sprintf("%s_%d.png", sex, skinTone)
	key := "base:" + name

	if img, ok := l.memory.Get(key); ok {
		return img
	}

	img, err := decodeFile(filepath.Join(l.basesDir, name))
	if err != nil {
		l.logger.Warn("Failed to load body base sheet",
			zap.String("name", name),
			zap.Error(err))

		return nil
	}

	l.memory.Set(key, img)

	return img
}

// MemoryStats exposes the memory tier snapshot for the health endpoint.
func (l *Loader) MemoryStats() cache.MemoryStats {
	return l.memory.Stats()
}

// DiskCount exposes the disk tier entry count for the health endpoint.
func (l *Loader) DiskCount() int {
	return l.disk.Count()
}

// Purge empties both local tiers and returns how many entries were dropped.
func (l *Loader) Purge() (memory, disk int) {
	memory = l.memory.Purge()

	disk, err := l.disk.Purge()
	if err != nil {
		l.logger.Warn("Failed to purge part disk tier", zap.Error(err))
	}

	return memory, disk
}

// diskName maps a part key to its file name on disk.
func diskName(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:]) + ".png"
}

func (l *Loader) loadDisk(key string) *image.NRGBA {
	data, err := l.disk.Read(diskName(key))
	if err != nil {
		return nil
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		// Corrupt entry; drop it so the next load refetches.
		l.disk.Remove(diskName(key))
		return nil
	}

	return toNRGBA(img)
}

func (l *Loader) storeDisk(key string, img *image.NRGBA) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		l.logger.Warn("Failed to encode part for disk tier",
			zap.String("key", key),
			zap.Error(err))

		return
	}

	if err := l.disk.Write(diskName(key), buf.Bytes()); err != nil {
		l.logger.Warn("Failed to write part to disk tier",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (l *Loader) fetchCDN(ctx context.Context, key string) *image.NRGBA {
	if err := l.fetchSem.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer l.fetchSem.Release(1)

	start := time.Now()

	resp, err := l.client.NewRequest().
		Method(http.MethodGet).
		URL(fmt.Sprintf("%s/item-sprite/%s.webp", l.baseURL, key)).
		Do(ctx)
	if err != nil {
		l.logger.Warn("Failed to fetch part sprite",
			zap.String("key", key),
			zap.Error(err))

		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.logger.Warn("Unexpected status for part sprite",
			zap.String("key", key),
			zap.Int("status", resp.StatusCode))

		return nil
	}

	img, err := webp.Decode(resp.Body)
	if err != nil {
		l.logger.Warn("Failed to decode part sprite",
			zap.String("key", key),
			zap.Error(err))

		return nil
	}

	l.logger.Debug("Fetched part sprite",
		zap.String("key", key),
		zap.Duration("elapsed", time.Since(start)))

	return toNRGBA(img)
}

func decodeFile(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return toNRGBA(img), nil
}

// toNRGBA normalizes any decoded image to the premultiplication-free format
// the compositor works in.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}

	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)

	return out
}

// SizeOfNRGBA sizes a decoded raster for the memory tier.
func SizeOfNRGBA(img *image.NRGBA) int64 {
	if img == nil {
		return 0
	}

	return int64(len(img.Pix))
}
