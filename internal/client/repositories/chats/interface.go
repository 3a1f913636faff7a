package chats

import (
	"context"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
)

// Repository describes persistence operations for StoredChat rows.
type Repository interface {
	// Upsert inserts a chat or replaces every column of an existing one.
	Upsert(ctx context.Context, chat *models.StoredChat) error

	// GetByID returns common.ErrorNotFound when the chat does not exist.
	GetByID(ctx context.Context, id string) (*models.StoredChat, error)

	// GetAll returns chats ordered by last edit, newest first.
	GetAll(ctx context.Context) ([]*models.StoredChat, error)

	// DeleteByID removes a chat. Deleting a missing chat is not an error;
	// the returned flag reports whether a row was removed.
	DeleteByID(ctx context.Context, id string) (bool, error)

	// UpdateVersion sets a single version counter.
	UpdateVersion(ctx context.Context, id string, field models.VersionField, value int64) error

	Clear(ctx context.Context) error
}
