package avatar_test

import (
	"testing"

	"github.com/fableforge/avatard/internal/avatar"
	"github.com/stretchr/testify/assert"
)

func baseCustomization() *avatar.Customization {
	return &avatar.Customization{
		Sex:      avatar.SexFemale,
		SkinTone: 3,
		Hair:     &avatar.Slot{Item: "H1"},
		Top:      &avatar.Slot{Item: "T1", Attrs: map[string]string{"color": "red", "size": "m"}},
		Tattoos: avatar.Tattoos{
			ArmLeft: &avatar.Slot{Item: "TA1"},
		},
	}
}

func TestFingerprintStable(t *testing.T) {
	t.Parallel()

	a := avatar.Fingerprint("alice", baseCustomization())
	b := avatar.Fingerprint("alice", baseCustomization())
	assert.Equal(t, a, b)
}

func TestFingerprintAttrOrderIndependent(t *testing.T) {
	t.Parallel()

	// Maps iterate in random order; the canonical form must not.
	c1 := baseCustomization()
	c1.Top.Attrs = map[string]string{"size": "m", "color": "red"}

	assert.Equal(t,
		avatar.Fingerprint("alice", baseCustomization()),
		avatar.Fingerprint("alice", c1))
}

func TestFingerprintChanges(t *testing.T) {
	t.Parallel()

	base := avatar.Fingerprint("alice", baseCustomization())

	tests := []struct {
		name   string
		mutate func(c *avatar.Customization)
	}{
		{
			name:   "slot item",
			mutate: func(c *avatar.Customization) { c.Top.Item = "T2" },
		},
		{
			name:   "slot cleared",
			mutate: func(c *avatar.Customization) { c.Hair = nil },
		},
		{
			name:   "new slot",
			mutate: func(c *avatar.Customization) { c.Shoes = &avatar.Slot{Item: "S1"} },
		},
		{
			name:   "attr value",
			mutate: func(c *avatar.Customization) { c.Top.Attrs["color"] = "blue" },
		},
		{
			name:   "tattoo sub-slot",
			mutate: func(c *avatar.Customization) { c.Tattoos.LegRight = &avatar.Slot{Item: "TA2"} },
		},
		{
			name:   "skin tone",
			mutate: func(c *avatar.Customization) { c.SkinTone = 4 },
		},
		{
			name:   "sex",
			mutate: func(c *avatar.Customization) { c.Sex = avatar.SexMale },
		},
		{
			name:   "chroma key mode",
			mutate: func(c *avatar.Customization) { c.ChromaKey = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := baseCustomization()
			tt.mutate(c)
			assert.NotEqual(t, base, avatar.Fingerprint("alice", c))
		})
	}
}

func TestFingerprintUsernameScoped(t *testing.T) {
	t.Parallel()

	c := baseCustomization()
	assert.NotEqual(t,
		avatar.Fingerprint("alice", c),
		avatar.Fingerprint("bob", c))
}

func TestFingerprintEmptyVersusMissingAttrs(t *testing.T) {
	t.Parallel()

	// nil and empty attr maps are the same canonical form.
	c1 := baseCustomization()
	c1.Hair.Attrs = nil

	c2 := baseCustomization()
	c2.Hair.Attrs = map[string]string{}

	assert.Equal(t,
		avatar.Fingerprint("alice", c1),
		avatar.Fingerprint("alice", c2))
}
