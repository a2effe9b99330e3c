package models

import (
	"context"
	"fmt"

	"github.com/fableforge/avatard/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ItemModel handles database operations for wardrobe items.
type ItemModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewItem creates an ItemModel.
func NewItem(db *bun.DB, logger *zap.Logger) *ItemModel {
	return &ItemModel{
		db:     db,
		logger: logger.Named("db_item"),
	}
}

// GetItems fetches the given items keyed by ID. Unknown IDs are simply
// absent from the result; callers treat missing descriptions as flag-less.
func (r *ItemModel) GetItems(ctx context.Context, ids []string) (map[string]*types.Item, error) {
	if len(ids) == 0 {
		return map[string]*types.Item{}, nil
	}

	var items []*types.Item

	err := r.db.NewSelect().
		Model(&items).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}

	result := make(map[string]*types.Item, len(items))
	for _, item := range items {
		result[item.ID] = item
	}

	return result, nil
}
