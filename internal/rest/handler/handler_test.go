package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fableforge/avatard/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

func TestNormalizeKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Kind
	}{
		{"avatar", KindAvatar},
		{"a", KindAvatar},
		{"sprite", KindSprite},
		{"s", KindSprite},
		{"thumbnail", KindThumbnail},
		{"t", KindThumbnail},
		{"", ""},
		{"banner", ""},
		{"A", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeKind(tt.raw), "raw %q", tt.raw)
	}
}

func TestPriorityFor(t *testing.T) {
	t.Parallel()

	assert.Greater(t, priorityFor(KindThumbnail), priorityFor(KindAvatar))
	assert.Greater(t, priorityFor(KindAvatar), priorityFor(KindSprite))
	assert.Equal(t, render.PriorityAvatar, priorityFor(KindAvatar))
}

func TestUsernamePattern(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"alice", "Bob_42", "x-y-z", "A"} {
		assert.True(t, usernamePattern.MatchString(ok), ok)
	}

	for _, bad := range []string{"", "a b", "a/b", "../etc", "ünïcode", "a.b"} {
		assert.False(t, usernamePattern.MatchString(bad), bad)
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	defaults, err := NewDefaults()
	require.NoError(t, err)

	avatarBytes := defaults.For(KindAvatar)
	sheetBytes := defaults.For(KindSprite)
	thumbBytes := defaults.For(KindThumbnail)

	assert.NotEmpty(t, avatarBytes)
	assert.NotEmpty(t, sheetBytes)
	assert.NotEmpty(t, thumbBytes)
	assert.NotEqual(t, avatarBytes, sheetBytes)
	assert.NotEqual(t, avatarBytes, thumbBytes)
}

func TestServeWebPHeadersAndETag(t *testing.T) {
	t.Parallel()

	h := &AvatarHandler{logger: zap.NewNop()}
	data := []byte("webp-bytes")

	httpReq := httptest.NewRequest(http.MethodGet, "/avatar/avatar/alice.webp", nil)
	rec := httptest.NewRecorder()

	h.serveWebP(rec, bunrouter.Request{Request: httpReq}, data, 0xabcdef01, KindAvatar, "HIT", "memory")

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/webp", res.Header.Get("Content-Type"))
	assert.Equal(t, "HIT", res.Header.Get("X-Cache"))
	assert.Equal(t, "memory", res.Header.Get("X-Cache-Tier"))

	etag := res.Header.Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, data, rec.Body.Bytes())

	// A conditional request with the same tag short-circuits to 304.
	httpReq = httptest.NewRequest(http.MethodGet, "/avatar/avatar/alice.webp", nil)
	httpReq.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()

	h.serveWebP(rec, bunrouter.Request{Request: httpReq}, data, 0xabcdef01, KindAvatar, "HIT", "memory")
	assert.Equal(t, http.StatusNotModified, rec.Result().StatusCode)
	assert.Empty(t, rec.Body.Bytes())
}

func TestRemoteAndPreviousKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "user-avatar/alice.webp", remoteKey("alice", KindAvatar))
	assert.Equal(t, "user-clothing/alice.webp", remoteKey("alice", KindSprite))
	assert.Equal(t, "user-thumbnail/alice.webp", remoteKey("alice", KindThumbnail))
}
