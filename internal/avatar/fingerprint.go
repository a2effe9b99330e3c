package avatar

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// fingerprintVersion is bumped whenever the canonical serialization changes,
// invalidating every cached render.
const fingerprintVersion = "v1"

// Fingerprint derives the stable 32-bit content hash of a user's
// customization. Byte-identical canonical forms produce identical
// fingerprints; any change to an inspected field changes the canonical form.
// The hash is non-cryptographic (xxhash truncated to 32 bits).
func Fingerprint(username string, c *Customization) uint32 {
	var b strings.Builder

	b.WriteString(fingerprintVersion)
	b.WriteByte('|')
	b.WriteString(username)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(c.Sex)))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(int(c.BodyVariant)))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(c.SkinTone))
	b.WriteByte(',')

	if c.ChromaKey {
		b.WriteString("ck1")
	} else {
		b.WriteString("ck0")
	}

	for _, name := range SlotNames {
		writeCanonicalSlot(&b, name, c.SlotByName(name))
	}

	b.WriteString("|tattoos")

	for _, name := range TattooNames {
		writeCanonicalSlot(&b, name, c.Tattoos.TattooByName(name))
	}

	return uint32(xxhash.Sum64String(b.String()))
}

// writeCanonicalSlot emits one slot in canonical form: the slot name, the
// item reference (or the "-" sentinel when empty) and the attributes with
// sorted keys.
func writeCanonicalSlot(b *strings.Builder, name string, s *Slot) {
	b.WriteByte('|')
	b.WriteString(name)
	b.WriteByte('=')

	if s.Empty() {
		b.WriteByte('-')
		return
	}

	b.WriteString(s.Item)

	if len(s.Attrs) == 0 {
		return
	}

	keys := make([]string, 0, len(s.Attrs))
	for k := range s.Attrs {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		b.WriteByte(';')
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(s.Attrs[k])
	}
}
