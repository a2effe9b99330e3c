package render_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/fableforge/avatard/internal/avatar"
	"github.com/fableforge/avatard/internal/cache"
	"github.com/fableforge/avatard/internal/database/types"
	"github.com/fableforge/avatard/internal/parts"
	"github.com/fableforge/avatard/internal/render"
	"github.com/jaxron/axonet/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeItems serves item records from a map.
type fakeItems struct {
	items map[string]*types.Item
	err   error
}

func (f *fakeItems) GetItems(_ context.Context, ids []string) (map[string]*types.Item, error) {
	if f.err != nil {
		return nil, f.err
	}

	result := make(map[string]*types.Item)

	for _, id := range ids {
		if item, ok := f.items[id]; ok {
			result[id] = item
		}
	}

	return result, nil
}

// newTestRenderer builds a renderer backed by a part CDN stub and a base
// sheet on disk.
func newTestRenderer(t *testing.T, items render.ItemSource) *render.Renderer {
	t.Helper()

	// Each item gets a visually distinct sprite so layer order shows up in
	// the composite.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimSuffix(path.Base(r.URL.Path), ".webp")
		if ref == "broken" {
			http.NotFound(w, r)
			return
		}

		frame := image.NewNRGBA(image.Rect(0, 0, avatar.FrameWidth, avatar.FrameHeight))
		frame.SetNRGBA(10, 10, color.NRGBA{R: ref[0], G: 20, B: 30, A: 255})

		var sprite bytes.Buffer
		if err := nativewebp.Encode(&sprite, frame, nil); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		_, _ = w.Write(sprite.Bytes())
	}))
	t.Cleanup(server.Close)

	memory, err := cache.NewMemory[string, *image.NRGBA](16, 64<<20, 0, parts.SizeOfNRGBA)
	require.NoError(t, err)

	disk, err := cache.NewDisk(filepath.Join(t.TempDir(), "cache"), time.Hour, zap.NewNop())
	require.NoError(t, err)

	basesDir := t.TempDir()

	base := image.NewNRGBA(image.Rect(0, 0, avatar.SheetWidth, avatar.SheetHeight))

	var basePNG bytes.Buffer
	require.NoError(t, png.Encode(&basePNG, base))
	require.NoError(t, os.WriteFile(filepath.Join(basesDir, "male_0.png"), basePNG.Bytes(), 0o644))

	loader := parts.NewLoader(client.NewClient(), memory, disk, basesDir, server.URL, 4, zap.NewNop())

	if items == nil {
		items = &fakeItems{}
	}

	return render.NewRenderer(items, loader, zap.NewNop())
}

func renderUser(c *avatar.Customization) *types.User {
	return &types.User{Username: "alice", Customization: c}
}

func TestRendererProducesArtifacts(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)

	artifacts, err := r.Render(t.Context(), renderUser(&avatar.Customization{
		Hair: &avatar.Slot{Item: "H1"},
		Top:  &avatar.Slot{Item: "T1"},
	}))
	require.NoError(t, err)
	assert.NotEmpty(t, artifacts.Avatar)
	assert.NotEmpty(t, artifacts.Sheet)
	assert.NotEmpty(t, artifacts.Thumbnail)
}

func TestRendererDeterministic(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)
	user := renderUser(&avatar.Customization{
		Hair: &avatar.Slot{Item: "H1"},
		Top:  &avatar.Slot{Item: "T1"},
		Tattoos: avatar.Tattoos{
			Chest: &avatar.Slot{Item: "TA1"},
		},
	})

	first, err := r.Render(t.Context(), user)
	require.NoError(t, err)

	second, err := r.Render(t.Context(), user)
	require.NoError(t, err)

	assert.Equal(t, first.Sheet, second.Sheet)
	assert.Equal(t, first.Avatar, second.Avatar)
	assert.Equal(t, first.Thumbnail, second.Thumbnail)
}

func TestRendererMissingPartIsAbsorbed(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)

	// One part 404s; the render still completes with the remaining layers.
	artifacts, err := r.Render(t.Context(), renderUser(&avatar.Customization{
		Hair: &avatar.Slot{Item: "broken"},
		Top:  &avatar.Slot{Item: "T1"},
	}))
	require.NoError(t, err)
	assert.NotEmpty(t, artifacts.Sheet)
}

func TestRendererMissingBase(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)

	_, err := r.Render(t.Context(), renderUser(&avatar.Customization{
		Sex: avatar.SexFemale,
	}))
	assert.ErrorIs(t, err, render.ErrBaseMissing)
}

func TestRendererNoCustomization(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)

	_, err := r.Render(t.Context(), &types.User{Username: "alice"})
	assert.ErrorIs(t, err, render.ErrNoCustomization)
}

func TestRendererLayoutFlagsChangeOutput(t *testing.T) {
	t.Parallel()

	flagged := newTestRenderer(t, &fakeItems{items: map[string]*types.Item{
		"B1": {ID: "B1", Description: "denim shorts !x"},
	}})
	plain := newTestRenderer(t, &fakeItems{items: map[string]*types.Item{
		"B1": {ID: "B1", Description: "denim shorts"},
	}})

	c := &avatar.Customization{
		Bottom: &avatar.Slot{Item: "B1"},
		Shoes:  &avatar.Slot{Item: "S1"},
	}

	a, err := flagged.Render(t.Context(), renderUser(c))
	require.NoError(t, err)

	b, err := plain.Render(t.Context(), renderUser(c))
	require.NoError(t, err)

	// With the flag the bottom occludes the shoes, so the sheets differ
	// even though the slots are identical.
	assert.NotEqual(t, a.Sheet, b.Sheet)
}

func TestRendererItemLookupFailureDefaultsFlags(t *testing.T) {
	t.Parallel()

	failing := newTestRenderer(t, &fakeItems{err: context.DeadlineExceeded})

	artifacts, err := failing.Render(t.Context(), renderUser(&avatar.Customization{
		Bottom: &avatar.Slot{Item: "B1"},
	}))
	require.NoError(t, err)
	assert.NotEmpty(t, artifacts.Sheet)
}
