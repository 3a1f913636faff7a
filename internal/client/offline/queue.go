// Package offline keeps the queue of local mutations that still wait for
// upstream confirmation. The queue is durable and strictly FIFO; a change
// only leaves it through DeleteOfflineChange or Clear.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/client/codec"
	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/client/repositories/changes"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/google/uuid"
)

type Queue struct {
	repo  changes.Repository
	codec *codec.Codec
	log   logging.Logger
	newID func() string
	now   func() int64
}

func NewQueue(repo changes.Repository, c *codec.Codec, log logging.Logger) *Queue {
	return &Queue{
		repo:  repo,
		codec: c,
		log:   log.With("component", "offline_queue"),
		newID: uuid.NewString,
		now:   func() int64 { return time.Now().Unix() },
	}
}

// With returns a queue writing through repo, typically the changes
// repository of an open store transaction.
func (q *Queue) With(repo changes.Repository) *Queue {
	c := *q
	c.repo = repo
	return &c
}

// NewChange builds a change whose value is the JSON encoding of value.
func NewChange(chatID string, typ models.ChangeType, value any, versionBeforeEdit int64) (*models.OfflineChange, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal change value: %w", err)
	}
	return &models.OfflineChange{
		ChatID:            chatID,
		Type:              typ,
		Value:             raw,
		VersionBeforeEdit: versionBeforeEdit,
	}, nil
}

// AddOfflineChange appends change to the queue. An empty ChangeID and a
// zero CreatedAt are filled in.
func (q *Queue) AddOfflineChange(ctx context.Context, change *models.OfflineChange) error {
	if change.ChangeID == "" {
		change.ChangeID = q.newID()
	}
	if change.CreatedAt == 0 {
		change.CreatedAt = q.now()
	}

	stored, err := q.codec.EncryptChangeForStorage(ctx, change)
	if err != nil {
		return fmt.Errorf("add offline change: %w", err)
	}
	if _, err := q.repo.Insert(ctx, stored); err != nil {
		return fmt.Errorf("add offline change: %w", err)
	}
	q.log.Debug(ctx, "offline change queued",
		"change_id", change.ChangeID, "chat_id", change.ChatID, "type", string(change.Type))
	return nil
}

func (q *Queue) decryptAll(ctx context.Context, rows []*models.StoredOfflineChange) []*models.OfflineChange {
	result := make([]*models.OfflineChange, 0, len(rows))
	for _, row := range rows {
		result = append(result, q.codec.DecryptChangeFromStorage(ctx, row))
	}
	return result
}

// GetOfflineChanges returns every pending change in insertion order.
func (q *Queue) GetOfflineChanges(ctx context.Context) ([]*models.OfflineChange, error) {
	rows, err := q.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get offline changes: %w", err)
	}
	return q.decryptAll(ctx, rows), nil
}

// GetOfflineChangesForChat returns the pending changes of one chat in
// insertion order.
func (q *Queue) GetOfflineChangesForChat(ctx context.Context, chatID string) ([]*models.OfflineChange, error) {
	rows, err := q.repo.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get offline changes: %w", err)
	}
	return q.decryptAll(ctx, rows), nil
}

// DeleteOfflineChange removes a confirmed or superseded change and reports
// whether it was queued.
func (q *Queue) DeleteOfflineChange(ctx context.Context, changeID string) (bool, error) {
	removed, err := q.repo.DeleteByID(ctx, changeID)
	if err != nil {
		return false, fmt.Errorf("delete offline change: %w", err)
	}
	return removed, nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count offline changes: %w", err)
	}
	return n, nil
}

// Clear drops every queued change. Only used on logout.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear offline changes: %w", err)
	}
	q.log.Info(ctx, "offline queue cleared")
	return nil
}
