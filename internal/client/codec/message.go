package codec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/cryptox"
)

func (c *Codec) encryptMessage(msg *models.Message, chatID string) (*models.StoredMessage, error) {
	km := c.Keys()
	if msg.ChatID != "" && msg.ChatID != chatID {
		return nil, fmt.Errorf("%w: %s != %s", ErrChatIDMismatch, msg.ChatID, chatID)
	}

	out := &models.StoredMessage{
		MessageID: msg.MessageID,
		ChatID:    chatID,
		Role:      msg.Role,
		CreatedAt: msg.CreatedAt,
		Status:    msg.Status,
	}

	key := km.GetOrCreateChatKey(chatID)

	var err error
	if len(msg.Content) > 0 {
		if out.EncryptedContent, err = c.sealWithChatKey([]byte(msg.Content), key, "content"); err != nil {
			return nil, err
		}
	}
	if msg.SenderName != "" {
		if out.EncryptedSenderName, err = c.sealWithChatKey(msg.SenderName, key, "sender_name"); err != nil {
			return nil, err
		}
	}
	if msg.Category != "" {
		if out.EncryptedCategory, err = c.sealWithChatKey(msg.Category, key, "category"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EncryptMessageFields encrypts content, sender name and category with the
// key of chatID, generating that key if none is cached. For an existing chat
// the caller must have loaded the chat (or called EnsureChatKey) first.
func (c *Codec) EncryptMessageFields(ctx context.Context, msg *models.Message, chatID string) (*models.StoredMessage, error) {
	return c.encryptMessage(msg, chatID)
}

// PrepareMessageForProcessing returns the encrypted form together with the
// plaintext the server needs to act on the message. Only the embedded
// StoredMessage may be persisted; call Wipe on the result after hand-off.
func (c *Codec) PrepareMessageForProcessing(ctx context.Context, msg *models.Message, chatID string) (*models.ProcessingMessage, error) {
	stored, err := c.encryptMessage(msg, chatID)
	if err != nil {
		return nil, err
	}
	return &models.ProcessingMessage{
		StoredMessage: *stored,
		Content:       append(json.RawMessage(nil), msg.Content...),
		SenderName:    msg.SenderName,
		Category:      msg.Category,
	}, nil
}

// DecryptMessageFields is the inverse of EncryptMessageFields. It only uses
// a cached chat key; when none is cached all three sensitive fields stay
// empty. It never fails.
func (c *Codec) DecryptMessageFields(ctx context.Context, stored *models.StoredMessage, chatID string) *models.Message {
	km := c.Keys()
	out := &models.Message{
		MessageID: stored.MessageID,
		ChatID:    chatID,
		Role:      stored.Role,
		CreatedAt: stored.CreatedAt,
		Status:    stored.Status,
	}
	log := c.log.With("chat_id", chatID, "message_id", stored.MessageID)

	key, ok := km.GetChatKey(chatID)
	if !ok {
		if len(stored.EncryptedContent) > 0 || len(stored.EncryptedSenderName) > 0 || len(stored.EncryptedCategory) > 0 {
			log.Warn(ctx, "chat key missing, message fields left empty")
		}
		return out
	}

	if len(stored.EncryptedContent) > 0 {
		var raw []byte
		if err := cryptox.DecryptEntry(stored.EncryptedContent, key, &raw); err != nil {
			log.Warn(ctx, "field decryption failed", "field", "content", "err", err)
		} else {
			out.Content = raw
		}
	}
	if len(stored.EncryptedSenderName) > 0 {
		if err := cryptox.DecryptEntry(stored.EncryptedSenderName, key, &out.SenderName); err != nil {
			log.Warn(ctx, "field decryption failed", "field", "sender_name", "err", err)
			out.SenderName = ""
		}
	}
	if len(stored.EncryptedCategory) > 0 {
		if err := cryptox.DecryptEntry(stored.EncryptedCategory, key, &out.Category); err != nil {
			log.Warn(ctx, "field decryption failed", "field", "category", "err", err)
			out.Category = ""
		}
	}
	return out
}
