package store

import (
	"context"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
)

// Batch is a set of writes applied in one transaction. Messages are given
// in plaintext with ChatID set and are encrypted with their chat's key.
//
// Writes are applied in this order: chats, messages, message deletes, chat
// deletes. Deleting a chat also deletes its messages.
type Batch struct {
	ChatsToUpdate      []*models.Chat
	MessagesToSave     []*models.Message
	ChatIDsToDelete    []string
	MessageIDsToDelete []string
}

// AddOrUpdateChatWithFullData writes chat and all of messages atomically.
// Messages are bound to chat regardless of their ChatID.
func (s *Store) AddOrUpdateChatWithFullData(ctx context.Context, chat *models.Chat, messages []*models.Message) error {
	s.stamp(chat)
	return s.InTx(ctx, "add chat with full data", func(ctx context.Context, r *Repositories) error {
		if err := s.putChat(ctx, r, chat); err != nil {
			return err
		}
		for _, m := range messages {
			m.ChatID = chat.ChatID
			if err := s.putMessage(ctx, r, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) putMessage(ctx context.Context, r *Repositories, m *models.Message) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = s.now()
	}
	stored, err := s.codec.EncryptMessageFields(ctx, m, m.ChatID)
	if err != nil {
		return err
	}
	return r.Messages.Upsert(ctx, stored)
}

// BatchProcessChatData applies b atomically: either every write commits or
// none does.
func (s *Store) BatchProcessChatData(ctx context.Context, b Batch) error {
	for _, c := range b.ChatsToUpdate {
		s.stamp(c)
	}

	err := s.InTx(ctx, "batch process chat data", func(ctx context.Context, r *Repositories) error {
		for _, c := range b.ChatsToUpdate {
			if err := s.putChat(ctx, r, c); err != nil {
				return err
			}
		}
		for _, m := range b.MessagesToSave {
			// Existing chats must have their key seeded before encrypting.
			if _, err := s.loadStoredChat(ctx, r, m.ChatID); err != nil {
				return err
			}
			if err := s.putMessage(ctx, r, m); err != nil {
				return err
			}
		}
		for _, id := range b.MessageIDsToDelete {
			if _, err := r.Messages.DeleteByID(ctx, id); err != nil {
				return err
			}
		}
		for _, id := range b.ChatIDsToDelete {
			if _, err := r.Messages.DeleteByChatID(ctx, id); err != nil {
				return err
			}
			if _, err := r.Chats.DeleteByID(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range b.ChatIDsToDelete {
		s.codec.Keys().ForgetChatKey(id)
	}
	s.log.Debug(ctx, "batch applied",
		"chats", len(b.ChatsToUpdate), "messages", len(b.MessagesToSave),
		"deleted_chats", len(b.ChatIDsToDelete), "deleted_messages", len(b.MessageIDsToDelete))
	return nil
}
