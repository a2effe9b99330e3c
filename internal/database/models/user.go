// Package models contains the repositories for the read-side lookups and the
// single post-render update the service performs.
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fableforge/avatard/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// UserModel handles database operations for user records.
type UserModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewUser creates a UserModel.
func NewUser(db *bun.DB, logger *zap.Logger) *UserModel {
	return &UserModel{
		db:     db,
		logger: logger.Named("db_user"),
	}
}

// GetUser fetches one user projection by username.
func (r *UserModel) GetUser(ctx context.Context, username string) (*types.User, error) {
	user := new(types.User)

	err := r.db.NewSelect().
		Model(user).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}

	return user, nil
}

// UpdateRenderKeys records a completed render in a single update: the new
// customization hash and the three remote object keys change together, so
// the hash never points at objects from a different render.
func (r *UserModel) UpdateRenderKeys(
	ctx context.Context, username string, hash uint32, avatarKey, clothingKey, thumbnailKey string,
) error {
	res, err := r.db.NewUpdate().
		Model((*types.User)(nil)).
		Set("customization_hash = ?", hash).
		Set("avatar_key = ?", avatarKey).
		Set("clothing_key = ?", clothingKey).
		Set("thumbnail_key = ?", thumbnailKey).
		Where("username = ?", username).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update render keys for %s: %w", username, err)
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return types.ErrUserNotFound
	}

	r.logger.Debug("Updated render keys",
		zap.String("username", username),
		zap.Uint32("hash", hash))

	return nil
}
