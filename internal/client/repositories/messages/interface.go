// Package messages persists chat messages in their storage (encrypted) form.
package messages

import (
	"context"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
)

type Repository interface {
	// Upsert inserts a message or replaces an existing one by id.
	Upsert(ctx context.Context, msg *models.StoredMessage) error

	// GetByID returns common.ErrorNotFound when the message does not exist.
	GetByID(ctx context.Context, id string) (*models.StoredMessage, error)

	// GetByChatID returns the chat's messages oldest first.
	GetByChatID(ctx context.Context, chatID string) ([]*models.StoredMessage, error)

	UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteByChatID(ctx context.Context, chatID string) (int64, error)
	Clear(ctx context.Context) error
}
