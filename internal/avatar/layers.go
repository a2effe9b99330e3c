package avatar

// Layer identifies one compositing layer. Most layers correspond 1:1 to an
// equipment slot; the remainder are pseudo-layers that carry conditional
// placement or derived content.
type Layer string

const (
	// LayerBase is the body base sheet selected by sex, body variant and
	// skin tone.
	LayerBase Layer = "base"
	// LayerTattoos is the derived layer holding all ten tattoo rasters merged
	// with straight alpha, so per-direction ordering treats them as one item.
	LayerTattoos Layer = "tattoos"

	// LayerShoes and LayerHair are input keys only. They never appear in an
	// order table; the compositor draws them at exactly one of their
	// conditional positions below.
	LayerShoes Layer = "shoes"
	LayerHair  Layer = "hair"

	// LayerShoesBefore receives the shoes raster by default. When the bottom
	// item carries the "!x" flag the shoes are drawn at LayerShoesAfter
	// instead, putting the bottom layer on top of them. Never both.
	LayerShoesBefore Layer = "shoes_before"
	LayerShoesAfter  Layer = "shoes_after"

	// LayerHairBehind and LayerHairInFront carry the hair raster; the "!s"
	// flag on the hair item selects the in-front position.
	LayerHairBehind  Layer = "hair_behind"
	LayerHairInFront Layer = "hair_in_front"

	LayerMakeup    Layer = "makeup"
	LayerBeard     Layer = "beard"
	LayerEyes      Layer = "eyes"
	LayerEyebrows  Layer = "eyebrows"
	LayerHead      Layer = "head"
	LayerNose      Layer = "nose"
	LayerMouth     Layer = "mouth"
	LayerHat       Layer = "hat"
	LayerPiercings Layer = "piercings"
	LayerEarPiece  Layer = "earPiece"
	LayerGlasses   Layer = "glasses"
	LayerHorns     Layer = "horns"
	LayerTop       Layer = "top"
	LayerNecklace  Layer = "necklace"
	LayerNeckwear  Layer = "neckwear"
	LayerCoat      Layer = "coat"
	LayerBelt      Layer = "belt"
	LayerBottom    Layer = "bottom"
	LayerSocks     Layer = "socks"
	LayerBracelets Layer = "bracelets"
	LayerWings     Layer = "wings"
	LayerBag       Layer = "bag"
	LayerGloves    Layer = "gloves"
	LayerHandheld  Layer = "handheld"
)

// Direction indexes the six frames of the sprite sheet, left to right.
//
// The mapping from index to physical orientation is fixed:
//
//	0  front
//	1  side-left
//	2  three-quarter-left
//	3  back
//	4  side-right
//	5  three-quarter-right
type Direction int

const (
	DirFront Direction = iota
	DirSideLeft
	DirThreeQuarterLeft
	DirBack
	DirSideRight
	DirThreeQuarterRight

	// DirectionCount is the number of frames in a sprite sheet.
	DirectionCount = 6
)

// The four z-order tables, bottom to top. Directions 1/4 share sideOrder and
// 2/5 share threeQuarterOrder.
var (
	frontOrder = []Layer{
		LayerWings, LayerBase, LayerTattoos,
		LayerMakeup, LayerEyes, LayerEyebrows, LayerNose, LayerMouth,
		LayerBeard, LayerHead, LayerHorns, LayerPiercings, LayerEarPiece,
		LayerSocks, LayerShoesAfter, LayerBottom, LayerShoesBefore,
		LayerBelt, LayerTop, LayerNecklace, LayerHairBehind, LayerNeckwear,
		LayerCoat, LayerBag, LayerGloves, LayerBracelets, LayerHairInFront,
		LayerGlasses, LayerHat, LayerHandheld,
	}

	sideOrder = []Layer{
		LayerWings, LayerBase, LayerTattoos,
		LayerMakeup, LayerEyes, LayerEyebrows, LayerNose, LayerMouth,
		LayerBeard, LayerHead, LayerHorns, LayerPiercings, LayerEarPiece,
		LayerSocks, LayerShoesAfter, LayerBottom, LayerShoesBefore,
		LayerBelt, LayerHandheld, LayerTop, LayerNecklace, LayerHairBehind,
		LayerNeckwear, LayerCoat, LayerBag, LayerGloves, LayerBracelets,
		LayerHairInFront, LayerGlasses, LayerHat,
	}

	threeQuarterOrder = []Layer{
		LayerWings, LayerBase, LayerTattoos,
		LayerMakeup, LayerEyes, LayerEyebrows, LayerNose, LayerMouth,
		LayerBeard, LayerHead, LayerHorns, LayerPiercings, LayerEarPiece,
		LayerSocks, LayerShoesAfter, LayerBottom, LayerShoesBefore,
		LayerBelt, LayerTop, LayerNecklace, LayerHairBehind, LayerNeckwear,
		LayerCoat, LayerGloves, LayerBracelets, LayerBag, LayerHairInFront,
		LayerGlasses, LayerHat, LayerHandheld,
	}

	backOrder = []Layer{
		LayerBase, LayerTattoos,
		LayerMakeup, LayerEyes, LayerEyebrows, LayerNose, LayerMouth,
		LayerBeard, LayerHead, LayerHorns, LayerPiercings, LayerEarPiece,
		LayerGlasses, LayerSocks, LayerShoesAfter, LayerBottom,
		LayerShoesBefore, LayerBelt, LayerHandheld, LayerGloves,
		LayerBracelets, LayerTop, LayerNecklace, LayerNeckwear, LayerCoat,
		LayerHairBehind, LayerHairInFront, LayerHat, LayerBag, LayerWings,
	}
)

// OrderFor returns the z-order table for a direction, bottom layer first.
func OrderFor(d Direction) []Layer {
	switch d {
	case DirSideLeft, DirSideRight:
		return sideOrder
	case DirThreeQuarterLeft, DirThreeQuarterRight:
		return threeQuarterOrder
	case DirBack:
		return backOrder
	default:
		return frontOrder
	}
}

// SlotLayer maps an equipment slot name to its compositing layer. Hair and
// shoes map to their raw input keys; the compositor resolves their
// conditional placement.
func SlotLayer(slot string) Layer {
	return Layer(slot)
}
