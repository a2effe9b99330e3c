// Package types holds the read models the rendering core consumes.
package types

import (
	"errors"
	"strings"

	"github.com/fableforge/avatard/internal/avatar"
	"github.com/uptrace/bun"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrItemNotFound = errors.New("item not found")
)

// User is the projection of a platform user used by the renderer: the stored
// customization plus the bookkeeping of the last successful render. The
// *Key fields point at the remote objects written by that render and are only
// trustworthy while CustomizationHash matches the current fingerprint.
type User struct {
	bun.BaseModel `bun:"table:users"`

	Username          string                `bun:"username,pk"`
	Customization     *avatar.Customization `bun:"customization,type:jsonb"`
	CustomizationHash uint32                `bun:"customization_hash"`
	AvatarKey         string                `bun:"avatar_key"`
	ClothingKey       string                `bun:"clothing_key"`
	ThumbnailKey      string                `bun:"thumbnail_key"`
}

// HasPreviousRender reports whether a prior render left usable remote
// objects to fall back on.
func (u *User) HasPreviousRender() bool {
	return u.AvatarKey != "" && u.ClothingKey != "" && u.ThumbnailKey != ""
}

// Item is the projection of a wardrobe item. Only two substrings of the
// free-form description are ever inspected; everything else is opaque.
type Item struct {
	bun.BaseModel `bun:"table:items"`

	ID          string `bun:"id,pk"`
	Description string `bun:"description"`
}

// ShoesBehindPants reports the "!x" flag: a bottom carrying it is drawn over
// the shoes.
func (i *Item) ShoesBehindPants() bool {
	return strings.Contains(i.Description, "!x")
}

// HairInFrontOfTop reports the "!s" flag: hair carrying it is drawn over the
// top and coat layers.
func (i *Item) HairInFrontOfTop() bool {
	return strings.Contains(i.Description, "!s")
}
