// Package avatar holds the customization model, the content fingerprint and
// the pure layer compositor that turns loaded part sprites into the
// six-direction sprite sheet.
package avatar

// Sex selects the male or female base sheet.
type Sex uint8

const (
	SexMale Sex = iota
	SexFemale
)

// String returns the base-image name component for the sex.
func (s Sex) String() string {
	if s == SexFemale {
		return "female"
	}

	return "male"
}

// BodyVariant selects the body build used by the base sheet.
type BodyVariant uint8

const (
	BodyDefault BodyVariant = iota
	BodySlim
	BodyHeavy
)

// Slot holds one customization choice: an opaque item reference plus
// slot-specific attributes. Attributes are never interpreted by the
// compositor but participate in the fingerprint.
type Slot struct {
	Item  string            `json:"item"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Empty reports whether the slot carries no item reference.
func (s *Slot) Empty() bool {
	return s == nil || s.Item == ""
}

// Tattoos groups the ten per-body-part tattoo slots.
type Tattoos struct {
	Head      *Slot `json:"head,omitempty"`
	Neck      *Slot `json:"neck,omitempty"`
	Chest     *Slot `json:"chest,omitempty"`
	Stomach   *Slot `json:"stomach,omitempty"`
	BackUpper *Slot `json:"backUpper,omitempty"`
	BackLower *Slot `json:"backLower,omitempty"`
	ArmRight  *Slot `json:"armRight,omitempty"`
	ArmLeft   *Slot `json:"armLeft,omitempty"`
	LegRight  *Slot `json:"legRight,omitempty"`
	LegLeft   *Slot `json:"legLeft,omitempty"`
}

// Customization is the full appearance record for one user. Sex, BodyVariant
// and SkinTone together select the base sheet; every other field is an
// optional equipment slot.
type Customization struct {
	Sex         Sex         `json:"sex"`
	BodyVariant BodyVariant `json:"bodyVariant"`
	SkinTone    int         `json:"skinTone"`

	// ChromaKey marks customizations whose part sprites still require the
	// historical chroma-key mask pass. The flag is part of the fingerprint so
	// the two modes never share cache entries.
	ChromaKey bool `json:"chromaKey,omitempty"`

	Makeup    *Slot `json:"makeup,omitempty"`
	Hair      *Slot `json:"hair,omitempty"`
	Beard     *Slot `json:"beard,omitempty"`
	Eyes      *Slot `json:"eyes,omitempty"`
	Eyebrows  *Slot `json:"eyebrows,omitempty"`
	Head      *Slot `json:"head,omitempty"`
	Nose      *Slot `json:"nose,omitempty"`
	Mouth     *Slot `json:"mouth,omitempty"`
	Hat       *Slot `json:"hat,omitempty"`
	Piercings *Slot `json:"piercings,omitempty"`
	EarPiece  *Slot `json:"earPiece,omitempty"`
	Glasses   *Slot `json:"glasses,omitempty"`
	Horns     *Slot `json:"horns,omitempty"`
	Top       *Slot `json:"top,omitempty"`
	Necklace  *Slot `json:"necklace,omitempty"`
	Neckwear  *Slot `json:"neckwear,omitempty"`
	Coat      *Slot `json:"coat,omitempty"`
	Belt      *Slot `json:"belt,omitempty"`
	Bottom    *Slot `json:"bottom,omitempty"`
	Socks     *Slot `json:"socks,omitempty"`
	Shoes     *Slot `json:"shoes,omitempty"`
	Bracelets *Slot `json:"bracelets,omitempty"`
	Wings     *Slot `json:"wings,omitempty"`
	Bag       *Slot `json:"bag,omitempty"`
	Gloves    *Slot `json:"gloves,omitempty"`
	Handheld  *Slot `json:"handheld,omitempty"`

	Tattoos Tattoos `json:"tattoos"`
}

// SlotNames lists every equipment slot in canonical declaration order. The
// order is load-bearing: the fingerprint serializes slots in exactly this
// sequence.
var SlotNames = []string{
	"makeup", "hair", "beard", "eyes", "eyebrows", "head", "nose", "mouth",
	"hat", "piercings", "earPiece", "glasses", "horns", "top", "necklace",
	"neckwear", "coat", "belt", "bottom", "socks", "shoes", "bracelets",
	"wings", "bag", "gloves", "handheld",
}

// TattooNames lists the tattoo sub-slots in canonical declaration order.
var TattooNames = []string{
	"head", "neck", "chest", "stomach", "backUpper", "backLower",
	"armRight", "armLeft", "legRight", "legLeft",
}

// SlotByName returns the slot value for a canonical slot name, or nil when
// the name is unknown.
func (c *Customization) SlotByName(name string) *Slot {
	switch name {
	case "makeup":
		return c.Makeup
	case "hair":
		return c.Hair
	case "beard":
		return c.Beard
	case "eyes":
		return c.Eyes
	case "eyebrows":
		return c.Eyebrows
	case "head":
		return c.Head
	case "nose":
		return c.Nose
	case "mouth":
		return c.Mouth
	case "hat":
		return c.Hat
	case "piercings":
		return c.Piercings
	case "earPiece":
		return c.EarPiece
	case "glasses":
		return c.Glasses
	case "horns":
		return c.Horns
	case "top":
		return c.Top
	case "necklace":
		return c.Necklace
	case "neckwear":
		return c.Neckwear
	case "coat":
		return c.Coat
	case "belt":
		return c.Belt
	case "bottom":
		return c.Bottom
	case "socks":
		return c.Socks
	case "shoes":
		return c.Shoes
	case "bracelets":
		return c.Bracelets
	case "wings":
		return c.Wings
	case "bag":
		return c.Bag
	case "gloves":
		return c.Gloves
	case "handheld":
		return c.Handheld
	default:
		return nil
	}
}

// TattooByName returns the tattoo slot for a canonical sub-slot name.
func (t *Tattoos) TattooByName(name string) *Slot {
	switch name {
	case "head":
		return t.Head
	case "neck":
		return t.Neck
	case "chest":
		return t.Chest
	case "stomach":
		return t.Stomach
	case "backUpper":
		return t.BackUpper
	case "backLower":
		return t.BackLower
	case "armRight":
		return t.ArmRight
	case "armLeft":
		return t.ArmLeft
	case "legRight":
		return t.LegRight
	case "legLeft":
		return t.LegLeft
	default:
		return nil
	}
}

// ItemRefs collects every non-empty item reference in the customization,
// slot names included, in canonical order. Tattoo refs come after the
// equipment slots.
func (c *Customization) ItemRefs() map[string]string {
	refs := make(map[string]string, len(SlotNames)+len(TattooNames))

	for _, name := range SlotNames {
		if s := c.SlotByName(name); !s.Empty() {
			refs[name] = s.Item
		}
	}

	for _, name := range TattooNames {
		if s := c.Tattoos.TattooByName(name); !s.Empty() {
			refs["tattoo."+name] = s.Item
		}
	}

	return refs
}
