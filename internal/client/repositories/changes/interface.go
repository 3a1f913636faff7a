// Package changes persists the offline change queue. Rows keep insertion
// order through an autoincrement sequence.
package changes

import (
	"context"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
)

type Repository interface {
	// Insert appends a change and returns its sequence number.
	Insert(ctx context.Context, c *models.StoredOfflineChange) (int64, error)

	// GetAll returns every queued change, oldest first.
	GetAll(ctx context.Context) ([]*models.StoredOfflineChange, error)
	GetByChatID(ctx context.Context, chatID string) ([]*models.StoredOfflineChange, error)

	DeleteByID(ctx context.Context, changeID string) (bool, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
