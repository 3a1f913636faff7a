package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
)

// SaveMessage persists an already encrypted message as is.
func (s *Store) SaveMessage(ctx context.Context, msg *models.StoredMessage) error {
	if err := s.Repositories().Messages.Upsert(ctx, msg); err != nil {
		return classify("save message", err)
	}
	return nil
}

// GetMessagesForChat returns the storage form of a chat's messages, oldest
// first. Decrypting them is up to the caller.
func (s *Store) GetMessagesForChat(ctx context.Context, chatID string) ([]*models.StoredMessage, error) {
	rows, err := s.Repositories().Messages.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return rows, nil
}

// GetMessage returns the storage form of a message or (nil, nil).
func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.StoredMessage, error) {
	m, err := s.Repositories().Messages.GetByID(ctx, messageID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// GetDecryptedMessages loads the chat key of chatID and returns its messages
// decrypted. A chat that does not exist yields no messages.
func (s *Store) GetDecryptedMessages(ctx context.Context, chatID string) ([]*models.Message, error) {
	r := s.Repositories()

	stored, err := r.Chats.GetByID(ctx, chatID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	if err := s.codec.EnsureChatKey(ctx, chatID, stored.EncryptedChatKey); err != nil {
		// Messages still load, their sensitive fields stay empty.
		s.log.Warn(ctx, "chat key unavailable", "chat_id", chatID, "err", err)
	}

	rows, err := r.Messages.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	result := make([]*models.Message, 0, len(rows))
	for _, row := range rows {
		result = append(result, s.codec.DecryptMessageFields(ctx, row, chatID))
	}
	return result, nil
}

// touchMessages bumps messages_v and the edit timestamps of a stored chat
// without re-encrypting it.
func (s *Store) touchMessages(ctx context.Context, r *Repositories, stored *models.StoredChat) error {
	now := s.now()
	stored.MessagesV++
	stored.UpdatedAt = now
	stored.LastEditedOverallTimestamp = now
	return r.Chats.Upsert(ctx, stored)
}

// AddMessage encrypts msg with the key of its chat, stores it and bumps the
// chat's messages_v. The chat must exist.
func (s *Store) AddMessage(ctx context.Context, msg *models.Message) (*models.StoredMessage, error) {
	if msg.CreatedAt == 0 {
		msg.CreatedAt = s.now()
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusPending
	}

	var out *models.StoredMessage
	err := s.InTx(ctx, "add message", func(ctx context.Context, r *Repositories) error {
		chat, err := s.loadStoredChat(ctx, r, msg.ChatID)
		if err != nil {
			return err
		}
		if chat == nil {
			return fmt.Errorf("chat %s: %w", msg.ChatID, common.ErrorNotFound)
		}

		stored, err := s.codec.EncryptMessageFields(ctx, msg, msg.ChatID)
		if err != nil {
			return err
		}
		if err := r.Messages.Upsert(ctx, stored); err != nil {
			return err
		}
		if err := s.touchMessages(ctx, r, chat); err != nil {
			return err
		}
		out = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// latestMessage returns the newest message by (created_at, message_id).
func latestMessage(msgs []*models.StoredMessage) *models.StoredMessage {
	var latest *models.StoredMessage
	for _, m := range msgs {
		if latest == nil || m.CreatedAt > latest.CreatedAt ||
			(m.CreatedAt == latest.CreatedAt && m.MessageID > latest.MessageID) {
			latest = m
		}
	}
	return latest
}

// DeleteMessage removes the most recent message of a chat and bumps the
// chat's messages_v. Any older message is rejected with
// common.ErrNotLatestMessage. Reports whether the message existed.
func (s *Store) DeleteMessage(ctx context.Context, messageID string) (bool, error) {
	var removed bool
	err := s.InTx(ctx, "delete message", func(ctx context.Context, r *Repositories) error {
		msg, err := r.Messages.GetByID(ctx, messageID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		siblings, err := r.Messages.GetByChatID(ctx, msg.ChatID)
		if err != nil {
			return err
		}
		if latest := latestMessage(siblings); latest != nil && latest.MessageID != messageID {
			return fmt.Errorf("message %s: %w", messageID, common.ErrNotLatestMessage)
		}

		if removed, err = r.Messages.DeleteByID(ctx, messageID); err != nil {
			return err
		}

		chat, err := r.Chats.GetByID(ctx, msg.ChatID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.touchMessages(ctx, r, chat)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// PrepareMessageForProcessing encrypts msg with the stored key of its chat
// and returns it together with its plaintext. For a chat that is not stored
// yet the key is created and kept in the cache until the chat is added.
func (s *Store) PrepareMessageForProcessing(ctx context.Context, msg *models.Message) (*models.ProcessingMessage, error) {
	if _, err := s.loadStoredChat(ctx, s.Repositories(), msg.ChatID); err != nil {
		return nil, classify("prepare message", err)
	}
	pm, err := s.codec.PrepareMessageForProcessing(ctx, msg, msg.ChatID)
	if err != nil {
		return nil, fmt.Errorf("prepare message: %w", err)
	}
	return pm, nil
}

// UpdateMessageStatus returns common.ErrorNotFound for an unknown message.
func (s *Store) UpdateMessageStatus(ctx context.Context, messageID string, status models.MessageStatus) error {
	if err := s.Repositories().Messages.UpdateStatus(ctx, messageID, status); err != nil {
		return classify("update message status", err)
	}
	return nil
}
