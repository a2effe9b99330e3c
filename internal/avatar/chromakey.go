package avatar

import "image"

// Historical chroma-key mode. Newer assets ship with the mask already cut;
// customizations that still need the pass set Customization.ChromaKey, which
// also feeds the fingerprint so the two modes never share cache entries.

// Chroma-key target color and per-channel tolerances.
const (
	chromaTargetR = 0
	chromaTargetG = 255
	chromaTargetB = 4

	chromaTolR = 50
	chromaTolG = 150
	chromaTolB = 50
)

// chromaMatch reports whether an NRGBA pixel (straight alpha) is fully opaque
// and falls inside the target color box.
func chromaMatch(r, g, b, a uint8) bool {
	if a != 0xff {
		return false
	}

	return absDiff(r, chromaTargetR) <= chromaTolR &&
		absDiff(g, chromaTargetG) <= chromaTolG &&
		absDiff(b, chromaTargetB) <= chromaTolB
}

// ApplyMask erases from src every pixel whose counterpart in mask is a fully
// opaque chroma-key pixel. Pixels outside the mask bounds are untouched.
// Applying the same mask twice yields the same result as applying it once.
func ApplyMask(src, mask *image.NRGBA) {
	bounds := src.Bounds().Intersect(mask.Bounds())

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			mi := mask.PixOffset(x, y)
			if chromaMatch(mask.Pix[mi], mask.Pix[mi+1], mask.Pix[mi+2], mask.Pix[mi+3]) {
				si := src.PixOffset(x, y)
				src.Pix[si+3] = 0
			}
		}
	}
}

// EraseKey is the single-image form: it makes src's own matching pixels fully
// transparent.
func EraseKey(src *image.NRGBA) {
	bounds := src.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := src.PixOffset(x, y)
			if chromaMatch(src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3]) {
				src.Pix[i+3] = 0
			}
		}
	}
}

func absDiff(v uint8, target int) int {
	d := int(v) - target
	if d < 0 {
		return -d
	}

	return d
}
