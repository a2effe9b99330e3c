package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/fableforge/avatard/internal/avatar"
	"github.com/fableforge/avatard/internal/database/types"
	"github.com/fableforge/avatard/internal/parts"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

var (
	ErrNoCustomization = errors.New("user has no customization")
	ErrBaseMissing     = errors.New("body base sheet missing")
)

// ItemSource resolves wardrobe items for the layout-flag lookup.
// *models.ItemModel is the real implementation.
type ItemSource interface {
	GetItems(ctx context.Context, ids []string) (map[string]*types.Item, error)
}

// Renderer turns one user record into the three encoded artifacts. It is
// stateless; every call loads parts through the shared loader and composites
// from scratch.
type Renderer struct {
	items  ItemSource
	parts  *parts.Loader
	logger *zap.Logger
}

// NewRenderer creates a Renderer.
func NewRenderer(items ItemSource, loader *parts.Loader, logger *zap.Logger) *Renderer {
	return &Renderer{
		items:  items,
		parts:  loader,
		logger: logger.Named("renderer"),
	}
}

// Render produces the sprite sheet, front frame and thumbnail for one user.
// Missing parts degrade to absent layers; only a missing base sheet or an
// encoding failure aborts the render.
func (r *Renderer) Render(ctx context.Context, user *types.User) (*avatar.Artifacts, error) {
	c := user.Customization
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCustomization, user.Username)
	}

	start := time.Now()
	opts := r.resolveFlags(ctx, c)

	base := r.parts.LoadBase(c.Sex, c.SkinTone)
	if base == nil {
		return nil, fmt.Errorf("%w: %s tone %d", ErrBaseMissing, c.Sex, c.SkinTone)
	}

	slotRasters := make([]*image.NRGBA, len(avatar.SlotNames))
	tattooRasters := make([]*image.NRGBA, len(avatar.TattooNames))

	// Load every referenced part concurrently. Each task owns one slice slot,
	// so no locking is needed; the loader bounds CDN concurrency itself.
	p := pool.New()

	for i, name := range avatar.SlotNames {
		slot := c.SlotByName(name)
		if slot.Empty() {
			continue
		}

		p.Go(func() {
			slotRasters[i] = r.parts.Load(ctx, slot.Item)
		})
	}

	for i, name := range avatar.TattooNames {
		slot := c.Tattoos.TattooByName(name)
		if slot.Empty() {
			continue
		}

		p.Go(func() {
			tattooRasters[i] = r.parts.Load(ctx, slot.Item)
		})
	}

	p.Wait()

	layers := avatar.Layers{avatar.LayerBase: base}

	for i, name := range avatar.SlotNames {
		raster := slotRasters[i]
		if raster == nil {
			continue
		}

		// Loader rasters are shared across renders, so the destructive
		// chroma-key pass works on a copy.
		if c.ChromaKey {
			raster = avatar.Clone(raster)
			avatar.EraseKey(raster)
		}

		layers[avatar.SlotLayer(name)] = raster
	}

	if c.ChromaKey {
		for i, raster := range tattooRasters {
			if raster == nil {
				continue
			}

			tattooRasters[i] = avatar.Clone(raster)
			avatar.EraseKey(tattooRasters[i])
		}
	}

	if merged := avatar.MergeTattoos(tattooRasters); merged != nil {
		layers[avatar.LayerTattoos] = merged
	}

	sheet := avatar.Compose(layers, opts)

	sheetBytes, err := avatar.EncodeWebP(sheet)
	if err != nil {
		return nil, err
	}

	avatarBytes, err := avatar.EncodeWebP(avatar.FrontFrame(sheet))
	if err != nil {
		return nil, err
	}

	thumbnailBytes, err := avatar.EncodeWebP(avatar.Thumbnail(sheet))
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Rendered avatar",
		zap.String("username", user.Username),
		zap.Int("layers", len(layers)),
		zap.Duration("elapsed", time.Since(start)))

	return &avatar.Artifacts{
		Avatar:    avatarBytes,
		Sheet:     sheetBytes,
		Thumbnail: thumbnailBytes,
	}, nil
}

// resolveFlags looks up the bottom and hair items to read their layout flags.
// Lookup failures fall back to the default placement rather than failing the
// render.
func (r *Renderer) resolveFlags(ctx context.Context, c *avatar.Customization) avatar.ComposeOptions {
	var opts avatar.ComposeOptions

	ids := make([]string, 0, 2)

	if !c.Bottom.Empty() {
		ids = append(ids, c.Bottom.Item)
	}

	if !c.Hair.Empty() {
		ids = append(ids, c.Hair.Item)
	}

	if len(ids) == 0 {
		return opts
	}

	items, err := r.items.GetItems(ctx, ids)
	if err != nil {
		r.logger.Warn("Failed to resolve item flags, using defaults", zap.Error(err))
		return opts
	}

	if !c.Bottom.Empty() {
		if item := items[c.Bottom.Item]; item != nil {
			opts.ShoesBehindPants = item.ShoesBehindPants()
		}
	}

	if !c.Hair.Empty() {
		if item := items[c.Hair.Item]; item != nil {
			opts.HairInFrontOfTop = item.HairInFrontOfTop()
		}
	}

	return opts
}
