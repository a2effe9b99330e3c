package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fableforge/avatard/internal/avatar"
	"github.com/fableforge/avatard/internal/database/types"
	"github.com/fableforge/avatard/internal/render"
	"github.com/fableforge/avatard/internal/setup/config"
	"github.com/fableforge/avatard/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// fakeUsers serves user records from a map.
type fakeUsers struct {
	users map[string]*types.User
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, username string) (*types.User, error) {
	if f.err != nil {
		return nil, f.err
	}

	if user, ok := f.users[username]; ok {
		return user, nil
	}

	return nil, types.ErrUserNotFound
}

// fakeResults returns one canned cache hit, or a miss when data is nil.
type fakeResults struct {
	data []byte
	tier string
}

func (f *fakeResults) Lookup(context.Context, string, uint32) ([]byte, string, bool) {
	if f.data == nil {
		return nil, "", false
	}

	return f.data, f.tier, true
}

// fakeObjects simulates the remote store with a set of present keys.
type fakeObjects struct {
	objects map[string]bool
	signErr error
}

func (f *fakeObjects) Head(_ context.Context, key string) (bool, error) {
	return f.objects[key], nil
}

func (f *fakeObjects) SignedURL(_ context.Context, key string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}

	return "https://store.test/" + key + "?sig=abc", nil
}

// fakeSubmitQueue rejects or records submissions without running anything.
type fakeSubmitQueue struct {
	submitErr error
	inflight  bool
	submits   int
}

func (f *fakeSubmitQueue) Submit(*types.User, uint32, render.Priority) (*render.Job, error) {
	f.submits++
	return nil, f.submitErr
}

func (f *fakeSubmitQueue) InFlight(render.Key) bool {
	return f.inflight
}

// stubRenderer backs a real coordinator for the submit-and-wait paths.
type stubRenderer struct {
	artifacts *avatar.Artifacts
	err       error
}

func (s *stubRenderer) Render(context.Context, *types.User) (*avatar.Artifacts, error) {
	return s.artifacts, s.err
}

type stubResultStore struct{}

func (stubResultStore) Store(context.Context, string, uint32, *avatar.Artifacts) error {
	return nil
}

func startQueue(t *testing.T, renderer render.JobRenderer) *render.Coordinator {
	t.Helper()

	c := render.NewCoordinator(renderer, stubResultStore{}, &config.Queue{Workers: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		c.Wait()
	})

	c.Start(ctx)

	return c
}

// renderedUser returns a user whose last render is recorded in all three
// remote keys. The stored hash is zero, so the record reads as stale.
func renderedUser() *types.User {
	return &types.User{
		Username:      "alice",
		Customization: &avatar.Customization{},
		AvatarKey:     "user-avatar/alice.webp",
		ClothingKey:   "user-clothing/alice.webp",
		ThumbnailKey:  "user-thumbnail/alice.webp",
	}
}

func serveAvatar(t *testing.T, h *AvatarHandler, target string) *httptest.ResponseRecorder {
	t.Helper()

	router := bunrouter.New()
	router.GET("/avatar/:type/:file", h.GetAvatar)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	return rec
}

func TestGetAvatarRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	h := NewAvatarHandler(&fakeUsers{}, &fakeResults{}, &fakeSubmitQueue{}, &fakeObjects{}, nil, zap.NewNop())

	for _, target := range []string{
		"/avatar/banner/alice.webp",
		"/avatar/A/alice.webp",
		"/avatar/avatar/a.b.webp",
		"/avatar/avatar/.webp",
	} {
		rec := serveAvatar(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGetAvatarUnknownUser(t *testing.T) {
	t.Parallel()

	h := NewAvatarHandler(&fakeUsers{}, &fakeResults{}, &fakeSubmitQueue{}, &fakeObjects{}, nil, zap.NewNop())

	rec := serveAvatar(t, h, "/avatar/avatar/nobody.webp")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAvatarUserLookupFailure(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{err: errors.New("connection refused")}
	h := NewAvatarHandler(users, &fakeResults{}, &fakeSubmitQueue{}, &fakeObjects{}, nil, zap.NewNop())

	rec := serveAvatar(t, h, "/avatar/avatar/alice.webp")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetAvatarFastPathServesCachedAvatar(t *testing.T) {
	t.Parallel()

	user := renderedUser()
	user.CustomizationHash = avatar.Fingerprint("alice", user.Customization)

	queue := &fakeSubmitQueue{}
	h := NewAvatarHandler(
		&fakeUsers{users: map[string]*types.User{"alice": user}},
		&fakeResults{data: []byte("front-view"), tier: "memory"},
		queue, &fakeObjects{}, nil, zap.NewNop(),
	)

	rec := serveAvatar(t, h, "/avatar/avatar/alice.webp")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "memory", rec.Header().Get("X-Cache-Tier"))
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte("front-view"), rec.Body.Bytes())
	assert.Equal(t, 0, queue.submits, "a current cached avatar never queues a render")
}

func TestGetAvatarCurrentSpriteRedirects(t *testing.T) {
	t.Parallel()

	user := renderedUser()
	user.CustomizationHash = avatar.Fingerprint("alice", user.Customization)

	h := NewAvatarHandler(
		&fakeUsers{users: map[string]*types.User{"alice": user}},
		&fakeResults{}, &fakeSubmitQueue{},
		&fakeObjects{objects: map[string]bool{"user-clothing/alice.webp": true}},
		nil, zap.NewNop(),
	)

	rec := serveAvatar(t, h, "/avatar/sprite/alice.webp")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://store.test/user-clothing/alice.webp?sig=abc", rec.Header().Get("Location"))
}

func TestGetAvatarStaleInFlightRedirectsPrevious(t *testing.T) {
	t.Parallel()

	queue := &fakeSubmitQueue{inflight: true}
	h := NewAvatarHandler(
		&fakeUsers{users: map[string]*types.User{"alice": renderedUser()}},
		&fakeResults{}, queue, &fakeObjects{}, nil, zap.NewNop(),
	)

	// The render is already in flight; the stale previous object is served
	// instead of holding the connection open.
	rec := serveAvatar(t, h, "/avatar/avatar/alice.webp")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://store.test/user-avatar/alice.webp?sig=abc", rec.Header().Get("Location"))
	assert.Equal(t, 0, queue.submits)
}

func TestGetAvatarOverloadFallsBackToPrevious(t *testing.T) {
	t.Parallel()

	queue := &fakeSubmitQueue{submitErr: render.ErrOverloaded}
	h := NewAvatarHandler(
		&fakeUsers{users: map[string]*types.User{"alice": renderedUser()}},
		&fakeResults{}, queue, &fakeObjects{}, nil, zap.NewNop(),
	)

	rec := serveAvatar(t, h, "/avatar/thumbnail/alice.webp")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://store.test/user-thumbnail/alice.webp?sig=abc", rec.Header().Get("Location"))
	assert.Equal(t, 1, queue.submits)
}

func TestGetAvatarOverloadFallsBackToDefault(t *testing.T) {
	t.Parallel()

	defaults, err := NewDefaults()
	require.NoError(t, err)

	// No previous render recorded, so the built-in placeholder is served.
	user := &types.User{Username: "alice", Customization: &avatar.Customization{}}
	h := NewAvatarHandler(
		&fakeUsers{users: map[string]*types.User{"alice": user}},
		&fakeResults{}, &fakeSubmitQueue{submitErr: render.ErrOverloaded},
		&fakeObjects{}, defaults, zap.NewNop(),
	)

	rec := serveAvatar(t, h, "/avatar/avatar/alice.webp")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DEFAULT", rec.Header().Get("X-Cache"))
	assert.Equal(t, defaults.For(KindAvatar), rec.Body.Bytes())
}

func TestGetAvatarOverloadWithoutDefault(t *testing.T) {
	t.Parallel()

	user := &types.User{Username: "alice", Customization: &avatar.Customization{}}
	h := NewAvatarHandler(
		&fakeUsers{users: map[string]*types.User{"alice": user}},
		&fakeResults{}, &fakeSubmitQueue{submitErr: render.ErrOverloaded},
		&fakeObjects{}, nil, zap.NewNop(),
	)

	rec := serveAvatar(t, h, "/avatar/avatar/alice.webp")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestGetAvatarRendersOnMiss(t *testing.T) {
	t.Parallel()

	queue := startQueue(t, &stubRenderer{artifacts: &avatar.Artifacts{
		Avatar:    []byte("fresh-avatar"),
		Sheet:     []byte("fresh-sheet"),
		Thumbnail: []byte("fresh-thumb"),
	}})

	user := &types.User{Username: "alice", Customization: &avatar.Customization{}}
	h := NewAvatarHandler(
		&fakeUsers{users: map[string]*types.User{"alice": user}},
		&fakeResults{}, queue, &fakeObjects{}, nil, zap.NewNop(),
	)

	rec := serveAvatar(t, h, "/avatar/avatar/alice.webp")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, []byte("fresh-avatar"), rec.Body.Bytes())

	rec = serveAvatar(t, h, "/avatar/sprite/alice.webp")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("fresh-sheet"), rec.Body.Bytes())
}

func TestGetAvatarRenderFailure(t *testing.T) {
	t.Parallel()

	queue := startQueue(t, &stubRenderer{err: render.ErrBaseMissing})

	user := &types.User{Username: "alice", Customization: &avatar.Customization{}}
	h := NewAvatarHandler(
		&fakeUsers{users: map[string]*types.User{"alice": user}},
		&fakeResults{}, queue, &fakeObjects{}, nil, zap.NewNop(),
	)

	rec := serveAvatar(t, h, "/avatar/avatar/alice.webp")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWriteRenderErrorMapping(t *testing.T) {
	t.Parallel()

	h := &AvatarHandler{logger: zap.NewNop()}

	tests := []struct {
		name       string
		err        error
		status     int
		retryAfter string
	}{
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, ""},
		{"store breaker open", storage.ErrDependencyOpen, http.StatusServiceUnavailable, ""},
		{"cache cleared", render.ErrCacheCleared, http.StatusServiceUnavailable, "5"},
		{"no customization", render.ErrNoCustomization, http.StatusNotFound, ""},
		{"user vanished", types.ErrUserNotFound, http.StatusNotFound, ""},
		{"render exploded", errors.New("encode failed"), http.StatusBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			h.writeRenderError(rec, "alice", tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
		})
	}
}
