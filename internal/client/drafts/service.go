// Package drafts implements optimistic editing of chat drafts and titles.
//
// A draft version of 0 means "no draft"; numbering starts at 1 as soon as a
// draft has content and grows by one on every save that changes it. Saving
// the same content again is a no-op so redundant saves never look like
// concurrent edits.
package drafts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/google/uuid"
)

// ChatStore is the part of the local store the draft service needs.
type ChatStore interface {
	AddChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	UpdateChat(ctx context.Context, chatID string, fn func(chat *models.Chat) error) (*models.Chat, error)
	Now() int64
}

type Service struct {
	store ChatStore
	log   logging.Logger
	newID func() string
}

func NewService(store ChatStore, log logging.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With("component", "drafts"),
		newID: uuid.NewString,
	}
}

// With returns a service working on store, typically a store bound to an
// open transaction.
func (s *Service) With(store ChatStore) *Service {
	c := *s
	c.store = store
	return &c
}

// SaveCurrentUserChatDraft stores a new draft for chatID. draft_v is bumped
// only when the markdown differs from the stored draft. Returns (nil, nil)
// when the chat does not exist locally.
func (s *Service) SaveCurrentUserChatDraft(ctx context.Context, chatID, markdown, preview string) (*models.Chat, error) {
	chat, err := s.store.UpdateChat(ctx, chatID, func(chat *models.Chat) error {
		if chat.DraftMD == markdown && chat.DraftPreview == preview {
			return nil
		}
		now := s.store.Now()
		if chat.DraftMD != markdown {
			chat.DraftV++
		}
		chat.DraftMD = markdown
		chat.DraftPreview = preview
		chat.UpdatedAt = now
		chat.LastEditedOverallTimestamp = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	if chat == nil {
		s.log.Debug(ctx, "draft not saved, chat missing", "chat_id", chatID)
	}
	return chat, nil
}

// ClearCurrentUserChatDraft removes the draft and resets draft_v to 0.
// Returns (nil, nil) when the chat does not exist locally.
func (s *Service) ClearCurrentUserChatDraft(ctx context.Context, chatID string) (*models.Chat, error) {
	chat, err := s.store.UpdateChat(ctx, chatID, func(chat *models.Chat) error {
		chat.DraftMD = ""
		chat.DraftPreview = ""
		chat.DraftV = 0
		chat.UpdatedAt = s.store.Now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("clear draft: %w", err)
	}
	return chat, nil
}

// CreateNewChatWithCurrentUserDraft allocates a new chat holding the draft
// at draft_v 1.
func (s *Service) CreateNewChatWithCurrentUserDraft(ctx context.Context, markdown, preview string) (*models.Chat, error) {
	now := s.store.Now()
	chat := &models.Chat{
		ChatID:                     s.newID(),
		DraftMD:                    markdown,
		DraftPreview:               preview,
		DraftV:                     1,
		CreatedAt:                  now,
		UpdatedAt:                  now,
		LastEditedOverallTimestamp: now,
	}
	if err := s.store.AddChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// DetectConflict compares the version a queued change was based on with
// the current local version of the counter the change touches.
func (s *Service) DetectConflict(ctx context.Context, change *models.OfflineChange) error {
	field, ok := change.Type.VersionField()
	if !ok {
		return fmt.Errorf("detect conflict: %w: change type %q", common.ErrUnknownVersionField, change.Type)
	}

	chat, err := s.store.GetChat(ctx, change.ChatID)
	if err != nil {
		return fmt.Errorf("detect conflict: %w", err)
	}
	if chat == nil {
		return fmt.Errorf("detect conflict: chat %s: %w", change.ChatID, common.ErrorNotFound)
	}

	err = CompareVersion(field, change.VersionBeforeEdit, chat.Version(field))
	var ce *ConflictError
	if errors.As(err, &ce) {
		ce.ChatID = change.ChatID
		s.log.Info(ctx, "version conflict detected",
			"chat_id", change.ChatID, "field", string(field), "expected", ce.Expected, "actual", ce.Actual)
	}
	return err
}
