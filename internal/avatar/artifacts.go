package avatar

// Artifacts holds the three encoded outputs of one render. All three are
// produced before any cache write happens.
type Artifacts struct {
	// Avatar is the 425x850 front frame.
	Avatar []byte
	// Sheet is the 2550x850 six-direction sprite sheet.
	Sheet []byte
	// Thumbnail is the 218x218 head crop.
	Thumbnail []byte
}
