// Package handler contains the HTTP handlers for the avatar and admin
// endpoints.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/fableforge/avatard/internal/avatar"
	"github.com/fableforge/avatard/internal/database/types"
	"github.com/fableforge/avatard/internal/render"
	"github.com/fableforge/avatard/internal/storage"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// UserSource resolves usernames to user records. *models.UserModel is the
// real implementation.
type UserSource interface {
	GetUser(ctx context.Context, username string) (*types.User, error)
}

// ResultSource serves cached front-view renders. *cache.Result is the real
// implementation.
type ResultSource interface {
	Lookup(ctx context.Context, username string, fp uint32) ([]byte, string, bool)
}

// RenderQueue accepts render submissions. *render.Coordinator is the real
// implementation.
type RenderQueue interface {
	Submit(user *types.User, fingerprint uint32, priority render.Priority) (*render.Job, error)
	InFlight(key render.Key) bool
}

// ObjectStore probes and signs remote artifact objects. *storage.Client is
// the real implementation.
type ObjectStore interface {
	Head(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string) (string, error)
}

// Kind is the requested artifact shape.
type Kind string

const (
	KindAvatar    Kind = "avatar"
	KindSprite    Kind = "sprite"
	KindThumbnail Kind = "thumbnail"
)

// usernamePattern is the only shape of username the handler accepts; anything
// else is rejected before it can reach a filesystem or object-store path.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// AvatarHandler serves GET /avatar/:type/:file.
type AvatarHandler struct {
	users    UserSource
	results  ResultSource
	queue    RenderQueue
	store    ObjectStore
	defaults *Defaults
	logger   *zap.Logger
}

// NewAvatarHandler creates the avatar handler.
func NewAvatarHandler(
	users UserSource, results ResultSource, queue RenderQueue,
	store ObjectStore, defaults *Defaults, logger *zap.Logger,
) *AvatarHandler {
	return &AvatarHandler{
		users:    users,
		results:  results,
		queue:    queue,
		store:    store,
		defaults: defaults,
		logger:   logger.Named("avatar_handler"),
	}
}

// normalizeKind resolves the path's type segment, accepting the single-letter
// aliases.
func normalizeKind(raw string) Kind {
	switch raw {
	case "avatar", "a":
		return KindAvatar
	case "sprite", "s":
		return KindSprite
	case "thumbnail", "t":
		return KindThumbnail
	default:
		return ""
	}
}

// priorityFor maps an artifact kind to its queue priority. Thumbnails block
// profile pages, so they go first; full sheets go last.
func priorityFor(kind Kind) render.Priority {
	switch kind {
	case KindThumbnail:
		return render.PriorityThumbnail
	case KindSprite:
		return render.PrioritySprite
	default:
		return render.PriorityAvatar
	}
}

// remoteKey returns the canonical object key for one artifact kind.
func remoteKey(username string, kind Kind) string {
	switch kind {
	case KindSprite:
		return storage.ClothingKey(username)
	case KindThumbnail:
		return storage.ThumbnailKey(username)
	default:
		return storage.AvatarKey(username)
	}
}

// previousKey returns the object key recorded by the user's last completed
// render for one artifact kind.
func previousKey(user *types.User, kind Kind) string {
	switch kind {
	case KindSprite:
		return user.ClothingKey
	case KindThumbnail:
		return user.ThumbnailKey
	default:
		return user.AvatarKey
	}
}

// GetAvatar resolves one artifact request: cache tiers first, then a render
// through the coordinator, falling back to the previous object or the
// built-in default under overload.
func (h *AvatarHandler) GetAvatar(w http.ResponseWriter, req bunrouter.Request) error {
	kind := normalizeKind(req.Param("type"))
	username := strings.TrimSuffix(req.Param("file"), ".webp")

	if kind == "" || !usernamePattern.MatchString(username) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return nil
	}

	ctx := req.Context()

	user, err := h.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, types.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return nil
		}

		h.logger.Error("Failed to look up user",
			zap.String("username", username),
			zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return nil
	}

	if user.Customization == nil {
		return h.fallback(ctx, w, req, user, kind)
	}

	fp := avatar.Fingerprint(username, user.Customization)

	// Fast path: the stored render matches the current customization.
	if user.CustomizationHash == fp && h.serveCurrent(ctx, w, req, user, kind, fp) {
		return nil
	}

	return h.renderAndServe(ctx, w, req, user, kind, fp)
}

// serveCurrent tries the cache tiers for a customization whose render is up
// to date. Returns false when nothing could be served and a render is needed.
func (h *AvatarHandler) serveCurrent(
	ctx context.Context, w http.ResponseWriter, req bunrouter.Request,
	user *types.User, kind Kind, fp uint32,
) bool {
	if kind == KindAvatar {
		if data, tier, ok := h.results.Lookup(ctx, user.Username, fp); ok {
			h.serveWebP(w, req, data, fp, kind, "HIT", tier)
			return true
		}

		return false
	}

	// Sprites and thumbnails are served straight from the object store.
	key := remoteKey(user.Username, kind)

	exists, err := h.store.Head(ctx, key)
	if err != nil {
		h.logger.Warn("Failed to check remote object",
			zap.String("key", key),
			zap.Error(err))

		return false
	}

	if !exists {
		return false
	}

	return h.redirect(ctx, w, req, key)
}

// renderAndServe submits (or attaches to) the render for the current
// fingerprint and serves its outcome.
func (h *AvatarHandler) renderAndServe(
	ctx context.Context, w http.ResponseWriter, req bunrouter.Request,
	user *types.User, kind Kind, fp uint32,
) error {
	key := render.Key{Username: user.Username, Fingerprint: fp}

	// A stale user with a render already in flight gets the previous object
	// instead of holding the connection open for the new one.
	if h.queue.InFlight(key) && user.CustomizationHash != fp && user.HasPreviousRender() {
		if h.redirect(ctx, w, req, previousKey(user, kind)) {
			return nil
		}
	}

	job, err := h.queue.Submit(user, fp, priorityFor(kind))
	if err != nil {
		if errors.Is(err, render.ErrOverloaded) || errors.Is(err, render.ErrStopped) {
			return h.fallback(ctx, w, req, user, kind)
		}

		h.logger.Error("Failed to submit render",
			zap.String("username", user.Username),
			zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return nil
	}

	artifacts, err := job.Wait(ctx)
	if err != nil {
		h.writeRenderError(w, user.Username, err)
		return nil
	}

	var data []byte

	switch kind {
	case KindSprite:
		data = artifacts.Sheet
	case KindThumbnail:
		data = artifacts.Thumbnail
	default:
		data = artifacts.Avatar
	}

	h.serveWebP(w, req, data, fp, kind, "MISS", "")

	return nil
}

// fallback handles the paths where no current render can be produced right
// now: previous object first, then the built-in default, then 503.
func (h *AvatarHandler) fallback(
	ctx context.Context, w http.ResponseWriter, req bunrouter.Request,
	user *types.User, kind Kind,
) error {
	if user.HasPreviousRender() && h.redirect(ctx, w, req, previousKey(user, kind)) {
		return nil
	}

	if h.defaults != nil {
		data := h.defaults.For(kind)

		w.Header().Set("Content-Type", "image/webp")
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Header().Set("X-Cache", "DEFAULT")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)

		return nil
	}

	w.Header().Set("Retry-After", "30")
	http.Error(w, "service overloaded", http.StatusServiceUnavailable)

	return nil
}

// redirect issues a 307 to a short-lived signed URL for one object. Returns
// false when signing failed and the caller should try another path.
func (h *AvatarHandler) redirect(
	ctx context.Context, w http.ResponseWriter, req bunrouter.Request, key string,
) bool {
	signed, err := h.store.SignedURL(ctx, key)
	if err != nil {
		h.logger.Warn("Failed to sign object URL",
			zap.String("key", key),
			zap.Error(err))

		return false
	}

	http.Redirect(w, req.Request, signed, http.StatusTemporaryRedirect)

	return true
}

// serveWebP writes one artifact with caching headers. The ETag is derived
// from the fingerprint, which identifies the bytes exactly.
func (h *AvatarHandler) serveWebP(
	w http.ResponseWriter, req bunrouter.Request,
	data []byte, fp uint32, kind Kind, status, tier string,
) {
	etag := fmt.Sprintf(`"%08x-%s"`, fp, kind)

	if req.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Cache", status)

	if tier != "" {
		w.Header().Set("X-Cache-Tier", tier)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeRenderError maps a terminal render error to its status code.
func (h *AvatarHandler) writeRenderError(w http.ResponseWriter, username string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "render timed out", http.StatusGatewayTimeout)
	case errors.Is(err, storage.ErrDependencyOpen):
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, render.ErrCacheCleared):
		w.Header().Set("Retry-After", "5")
		http.Error(w, "render cancelled", http.StatusServiceUnavailable)
	case errors.Is(err, render.ErrNoCustomization), errors.Is(err, types.ErrUserNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
	default:
		h.logger.Error("Render failed",
			zap.String("username", username),
			zap.Error(err))
		http.Error(w, "render failed", http.StatusBadGateway)
	}
}
