package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/chatkeeper/internal/client/codec"
	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
)

// loadStoredChat returns the stored chat with its key seeded into the cache,
// or (nil, nil) if the chat does not exist.
func (s *Store) loadStoredChat(ctx context.Context, r *Repositories, chatID string) (*models.StoredChat, error) {
	stored, err := r.Chats.GetByID(ctx, chatID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.codec.EnsureChatKey(ctx, chatID, stored.EncryptedChatKey); err != nil {
		return nil, err
	}
	return stored, nil
}

// putChat encrypts chat and writes it. Existing chats keep their chat key.
func (s *Store) putChat(ctx context.Context, r *Repositories, chat *models.Chat) error {
	if _, err := s.loadStoredChat(ctx, r, chat.ChatID); err != nil {
		return err
	}
	stored, err := s.codec.EncryptChatForStorage(ctx, chat)
	if err != nil {
		return err
	}
	return r.Chats.Upsert(ctx, stored)
}

func (s *Store) stamp(chat *models.Chat) {
	now := s.now()
	if chat.CreatedAt == 0 {
		chat.CreatedAt = now
	}
	if chat.UpdatedAt == 0 {
		chat.UpdatedAt = now
	}
}

// AddChat encrypts chat and inserts or replaces it. Zero CreatedAt and
// UpdatedAt are filled with the current time.
func (s *Store) AddChat(ctx context.Context, chat *models.Chat) error {
	if chat == nil || chat.ChatID == "" {
		return fmt.Errorf("add chat: empty chat id")
	}
	s.stamp(chat)
	return s.InTx(ctx, "add chat", func(ctx context.Context, r *Repositories) error {
		return s.putChat(ctx, r, chat)
	})
}

// GetChat returns the decrypted chat or (nil, nil) when it does not exist.
func (s *Store) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	stored, err := s.Repositories().Chats.GetByID(ctx, chatID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return s.codec.DecryptChatFromStorage(ctx, stored), nil
}

// GetAllChats returns every chat decrypted, most recently edited first.
func (s *Store) GetAllChats(ctx context.Context) ([]*models.Chat, error) {
	rows, err := s.Repositories().Chats.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get all chats: %w", err)
	}
	result := make([]*models.Chat, 0, len(rows))
	for _, row := range rows {
		result = append(result, s.codec.DecryptChatFromStorage(ctx, row))
	}
	return result, nil
}

// DeleteChat removes the chat together with its messages and forgets its
// key. Queued offline changes for the chat are kept. Reports whether the
// chat existed.
func (s *Store) DeleteChat(ctx context.Context, chatID string) (bool, error) {
	var removed bool
	err := s.InTx(ctx, "delete chat", func(ctx context.Context, r *Repositories) error {
		if _, err := r.Messages.DeleteByChatID(ctx, chatID); err != nil {
			return err
		}
		var err error
		removed, err = r.Chats.DeleteByID(ctx, chatID)
		return err
	})
	if err != nil {
		return false, err
	}
	s.codec.Keys().ForgetChatKey(chatID)
	return removed, nil
}

// UpdateChat is a transactional read-modify-write of one chat. fn receives
// the decrypted chat and may change it in place; returning an error aborts
// the update. A field that failed to decrypt keeps its ciphertext unless fn
// sets a new value or changes the version counter the field belongs to, so
// clearing a draft or a title still clears it.
// UpdateChat returns (nil, nil) when the chat does not exist.
func (s *Store) UpdateChat(ctx context.Context, chatID string, fn func(chat *models.Chat) error) (*models.Chat, error) {
	return s.updateChat(ctx, chatID, func(chat *models.Chat, _ codec.FailedFields) error {
		return fn(chat)
	})
}

func (s *Store) updateChat(ctx context.Context, chatID string, fn func(chat *models.Chat, failed codec.FailedFields) error) (*models.Chat, error) {
	var result *models.Chat
	err := s.InTx(ctx, "update chat", func(ctx context.Context, r *Repositories) error {
		old, err := s.loadStoredChat(ctx, r, chatID)
		if err != nil || old == nil {
			return err
		}

		chat, failed := s.codec.DecryptChat(ctx, old)
		before := *chat
		before.Mates = slices.Clone(chat.Mates)

		if err := fn(chat, failed); err != nil {
			return err
		}
		chat.ChatID = chatID

		stored, err := s.codec.EncryptChatForStorage(ctx, chat)
		if err != nil {
			return err
		}
		keepUnchanged(old, stored, failed, &before, chat)

		if err := r.Chats.Upsert(ctx, stored); err != nil {
			return err
		}
		result = chat
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// keepUnchanged copies the old ciphertext of fields the update did not
// touch. An undecryptable field counts as touched once its version moved.
func keepUnchanged(old, stored *models.StoredChat, failed codec.FailedFields, before, after *models.Chat) {
	titleKept := before.TitleV == after.TitleV
	draftKept := before.DraftV == after.DraftV

	if before.Title == after.Title && (!failed.Title || titleKept) {
		stored.EncryptedTitle = old.EncryptedTitle
	}
	if before.DraftMD == after.DraftMD && (!failed.DraftMD || draftKept) {
		stored.EncryptedDraftMD = old.EncryptedDraftMD
	}
	if before.DraftPreview == after.DraftPreview && (!failed.DraftPreview || draftKept) {
		stored.EncryptedDraftPreview = old.EncryptedDraftPreview
	}
	if slices.Equal(before.Mates, after.Mates) {
		stored.EncryptedMates = old.EncryptedMates
	}
}

// UpdateChatComponentVersion sets one version counter of a chat.
func (s *Store) UpdateChatComponentVersion(ctx context.Context, chatID string, field models.VersionField, value int64) error {
	if !field.Valid() {
		return fmt.Errorf("update chat version: %w: %q", common.ErrUnknownVersionField, field)
	}
	return s.InTx(ctx, "update chat version", func(ctx context.Context, r *Repositories) error {
		if _, err := r.Chats.GetByID(ctx, chatID); err != nil {
			return err
		}
		return r.Chats.UpdateVersion(ctx, chatID, field, value)
	})
}

// UpdateChatTitle sets the title and bumps title_v when it changed.
// Returns (nil, nil) when the chat does not exist.
func (s *Store) UpdateChatTitle(ctx context.Context, chatID, title string) (*models.Chat, error) {
	return s.updateChat(ctx, chatID, func(chat *models.Chat, failed codec.FailedFields) error {
		// an undecryptable title reads as "", so clearing it is a change
		if chat.Title == title && !failed.Title {
			return nil
		}
		now := s.now()
		chat.Title = title
		chat.TitleV++
		chat.UpdatedAt = now
		chat.LastEditedOverallTimestamp = now
		return nil
	})
}

// Now returns the store clock in unix seconds.
func (s *Store) Now() int64 {
	return s.now()
}
