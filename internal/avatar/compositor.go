package avatar

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	"github.com/HugoSmits86/nativewebp"
)

// Raster geometry of the rendered outputs.
const (
	FrameWidth  = 425
	FrameHeight = 850
	SheetWidth  = FrameWidth * DirectionCount
	SheetHeight = FrameHeight

	ThumbnailSize    = 218
	ThumbnailOffsetX = 103
	ThumbnailOffsetY = 42
)

// Layers maps a compositing layer to its loaded raster. Rasters are either a
// full 2550x850 sheet or a single 425x850 frame. Hair and shoes are supplied
// under their raw keys (LayerHair, LayerShoes); the ten tattoo rasters are
// merged into LayerTattoos before Compose sees them.
type Layers map[Layer]*image.NRGBA

// ComposeOptions carries the two conditional layout flags and the optional
// chroma-key masks.
type ComposeOptions struct {
	// ShoesBehindPants moves the shoes raster below the bottom layer so the
	// bottom occludes it (the "!x" item flag).
	ShoesBehindPants bool
	// HairInFrontOfTop moves the hair raster above the top/coat layers
	// (the "!s" item flag).
	HairInFrontOfTop bool
	// ChromaMasks holds per-layer mask rasters for the historical chroma-key
	// mode. When a layer has a mask, matching fully opaque mask pixels punch
	// transparency into the layer before it is drawn.
	ChromaMasks map[Layer]*image.NRGBA
}

// Compose renders the six-direction sprite sheet from the loaded layers.
// It is pure: inputs are never mutated and identical inputs produce a
// byte-identical sheet.
func Compose(layers Layers, opts ComposeOptions) *image.NRGBA {
	sheet := image.NewNRGBA(image.Rect(0, 0, SheetWidth, SheetHeight))

	for d := Direction(0); d < DirectionCount; d++ {
		dstRect := image.Rect(int(d)*FrameWidth, 0, (int(d)+1)*FrameWidth, FrameHeight)

		for _, layer := range OrderFor(d) {
			raster := resolveLayer(layer, layers, opts)
			if raster == nil {
				continue
			}

			if mask, ok := opts.ChromaMasks[layer]; ok && mask != nil {
				raster = cloneNRGBA(raster)
				ApplyMask(raster, mask)
			}

			draw.Draw(sheet, dstRect, raster, frameOrigin(raster, d), draw.Over)
		}
	}

	return sheet
}

// resolveLayer returns the raster to draw for one table entry, applying the
// conditional placement of the shoes and hair pseudo-layers.
func resolveLayer(layer Layer, layers Layers, opts ComposeOptions) *image.NRGBA {
	switch layer {
	case LayerShoesBefore:
		if opts.ShoesBehindPants {
			return nil
		}

		return layers[LayerShoes]
	case LayerShoesAfter:
		if !opts.ShoesBehindPants {
			return nil
		}

		return layers[LayerShoes]
	case LayerHairBehind:
		if opts.HairInFrontOfTop {
			return nil
		}

		return layers[LayerHair]
	case LayerHairInFront:
		if !opts.HairInFrontOfTop {
			return nil
		}

		return layers[LayerHair]
	default:
		return layers[layer]
	}
}

// frameOrigin returns the source point for extracting one direction from a
// raster. Full sheets are offset by direction; single frames are used as-is
// for every direction.
func frameOrigin(raster *image.NRGBA, d Direction) image.Point {
	if raster.Bounds().Dx() >= SheetWidth {
		return image.Pt(raster.Bounds().Min.X+int(d)*FrameWidth, raster.Bounds().Min.Y)
	}

	return raster.Bounds().Min
}

// MergeTattoos combines the per-body-part tattoo rasters into one sheet-sized
// layer with straight alpha, so direction ordering treats tattoos as a single
// item. Returns nil when no raster is present.
func MergeTattoos(rasters []*image.NRGBA) *image.NRGBA {
	var merged *image.NRGBA

	for _, raster := range rasters {
		if raster == nil {
			continue
		}

		if merged == nil {
			merged = image.NewNRGBA(image.Rect(0, 0, SheetWidth, SheetHeight))
		}

		for d := Direction(0); d < DirectionCount; d++ {
			dstRect := image.Rect(int(d)*FrameWidth, 0, (int(d)+1)*FrameWidth, FrameHeight)
			draw.Draw(merged, dstRect, raster, frameOrigin(raster, d), draw.Over)
		}
	}

	return merged
}

// FrontFrame copies the front-facing 425x850 frame out of a sprite sheet.
func FrontFrame(sheet *image.NRGBA) *image.NRGBA {
	return cropNRGBA(sheet, image.Rect(0, 0, FrameWidth, FrameHeight))
}

// Thumbnail copies the 218x218 head crop at offset (103, 42) of the front
// frame.
func Thumbnail(sheet *image.NRGBA) *image.NRGBA {
	return cropNRGBA(sheet, image.Rect(
		ThumbnailOffsetX, ThumbnailOffsetY,
		ThumbnailOffsetX+ThumbnailSize, ThumbnailOffsetY+ThumbnailSize,
	))
}

// EncodeWebP encodes a raster as lossless WebP. Lossless encoding keeps the
// determinism property: one fingerprint maps to exactly one byte sequence.
func EncodeWebP(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := nativewebp.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}

	return buf.Bytes(), nil
}

// cropNRGBA returns a tightly packed copy of a sub-rectangle. Copying keeps
// the crop independent of the sheet buffer and zero-based for encoding.
func cropNRGBA(src *image.NRGBA, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)

	return dst
}

// Clone deep-copies a raster. Callers that mutate a raster obtained from a
// shared cache must clone it first.
func Clone(src *image.NRGBA) *image.NRGBA {
	return cloneNRGBA(src)
}

// cloneNRGBA deep-copies a raster.
func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)

	return dst
}
