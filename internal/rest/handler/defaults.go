package handler

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/fableforge/avatard/internal/avatar"
)

// Defaults holds the built-in placeholder served when no render is available
// and the queue cannot take the job. Generated once at startup so the bytes
// stay stable for the process lifetime.
type Defaults struct {
	avatar    []byte
	sheet     []byte
	thumbnail []byte
}

// NewDefaults renders the silhouette placeholder in all three output shapes.
func NewDefaults() (*Defaults, error) {
	fill := color.NRGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}

	encode := func(w, h int) ([]byte, error) {
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)

		return avatar.EncodeWebP(img)
	}

	avatarBytes, err := encode(avatar.FrameWidth, avatar.FrameHeight)
	if err != nil {
		return nil, err
	}

	sheetBytes, err := encode(avatar.SheetWidth, avatar.SheetHeight)
	if err != nil {
		return nil, err
	}

	thumbnailBytes, err := encode(avatar.ThumbnailSize, avatar.ThumbnailSize)
	if err != nil {
		return nil, err
	}

	return &Defaults{
		avatar:    avatarBytes,
		sheet:     sheetBytes,
		thumbnail: thumbnailBytes,
	}, nil
}

// For returns the placeholder bytes for one artifact kind.
func (d *Defaults) For(kind Kind) []byte {
	switch kind {
	case KindSprite:
		return d.sheet
	case KindThumbnail:
		return d.thumbnail
	default:
		return d.avatar
	}
}
