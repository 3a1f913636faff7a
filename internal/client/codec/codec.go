package codec

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dmitrijs2005/chatkeeper/internal/client/keys"
	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/cryptox"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
)

var ErrChatIDMismatch = errors.New("message belongs to a different chat")

// Codec encrypts with the key manager of the current session. Every call
// takes one snapshot of the manager, so a session switch never mixes keys
// within a single entity.
type Codec struct {
	keys atomic.Pointer[keys.Manager]
	log  logging.Logger
}

func New(km *keys.Manager, log logging.Logger) *Codec {
	c := &Codec{log: log.With("component", "codec")}
	c.keys.Store(km)
	return c
}

// Keys returns the key manager of the current session.
func (c *Codec) Keys() *keys.Manager {
	return c.keys.Load()
}

// UseKeys installs km for all later calls and returns the manager it
// replaces.
func (c *Codec) UseKeys(km *keys.Manager) *keys.Manager {
	return c.keys.Swap(km)
}

func encryptionErr(field string, err error) error {
	if errors.Is(err, common.ErrEncryptionFailure) {
		return fmt.Errorf("encrypt %s: %w", field, err)
	}
	return fmt.Errorf("encrypt %s: %w: %w", field, common.ErrEncryptionFailure, err)
}

func (c *Codec) sealWithChatKey(v any, key []byte, field string) ([]byte, error) {
	blob, err := cryptox.EncryptEntry(v, key)
	if err != nil {
		return nil, encryptionErr(field, err)
	}
	return blob, nil
}

// EnsureChatKey installs the chat key stored in wrapped, replacing whatever
// was cached for chatID. Writers call this before re-encrypting an existing
// chat or its messages so the chat key is never rotated implicitly.
func (c *Codec) EnsureChatKey(ctx context.Context, chatID string, wrapped []byte) error {
	km := c.Keys()
	if len(wrapped) == 0 {
		return nil
	}
	key, err := km.UnwrapChatKey(wrapped)
	if err != nil {
		return fmt.Errorf("unwrap chat key: %w", err)
	}
	if km.SetChatKey(chatID, key) {
		c.log.Warn(ctx, "cached chat key replaced by stored key", "chat_id", chatID)
	}
	return nil
}

// EncryptChatForStorage produces the storage form of chat. The chat key is
// always wrapped into the result, even when no chat-key field is populated,
// so later fields have a key available.
func (c *Codec) EncryptChatForStorage(ctx context.Context, chat *models.Chat) (*models.StoredChat, error) {
	km := c.Keys()
	out := &models.StoredChat{
		ChatID:                     chat.ChatID,
		MessagesV:                  chat.MessagesV,
		TitleV:                     chat.TitleV,
		DraftV:                     chat.DraftV,
		UnreadCount:                chat.UnreadCount,
		LastEditedOverallTimestamp: chat.LastEditedOverallTimestamp,
		CreatedAt:                  chat.CreatedAt,
		UpdatedAt:                  chat.UpdatedAt,
	}

	var err error
	if chat.Title != "" {
		if out.EncryptedTitle, err = km.EncryptWithMasterKey(chat.Title); err != nil {
			return nil, encryptionErr("title", err)
		}
	}
	if chat.DraftMD != "" {
		if out.EncryptedDraftMD, err = km.EncryptWithMasterKey(chat.DraftMD); err != nil {
			return nil, encryptionErr("draft", err)
		}
	}
	if chat.DraftPreview != "" {
		if out.EncryptedDraftPreview, err = km.EncryptWithMasterKey(chat.DraftPreview); err != nil {
			return nil, encryptionErr("draft preview", err)
		}
	}

	chatKey := km.GetOrCreateChatKey(chat.ChatID)
	if out.EncryptedChatKey, err = km.WrapChatKey(chatKey); err != nil {
		return nil, encryptionErr("chat key", err)
	}

	if len(chat.Mates) > 0 {
		if out.EncryptedMates, err = c.sealWithChatKey(chat.Mates, chatKey, "mates"); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// FailedFields marks the chat fields that were stored but could not be
// decrypted.
type FailedFields struct {
	Title        bool
	DraftMD      bool
	DraftPreview bool
	Mates        bool
}

// DecryptChatFromStorage is the inverse of EncryptChatForStorage. It never
// fails; undecryptable fields are left empty and logged.
func (c *Codec) DecryptChatFromStorage(ctx context.Context, stored *models.StoredChat) *models.Chat {
	chat, _ := c.DecryptChat(ctx, stored)
	return chat
}

// DecryptChat is DecryptChatFromStorage that also reports which fields
// failed to decrypt.
func (c *Codec) DecryptChat(ctx context.Context, stored *models.StoredChat) (*models.Chat, FailedFields) {
	km := c.Keys()
	var failed FailedFields
	out := &models.Chat{
		ChatID:                     stored.ChatID,
		MessagesV:                  stored.MessagesV,
		TitleV:                     stored.TitleV,
		DraftV:                     stored.DraftV,
		UnreadCount:                stored.UnreadCount,
		LastEditedOverallTimestamp: stored.LastEditedOverallTimestamp,
		CreatedAt:                  stored.CreatedAt,
		UpdatedAt:                  stored.UpdatedAt,
	}
	log := c.log.With("chat_id", stored.ChatID)

	if len(stored.EncryptedChatKey) > 0 {
		key, err := km.UnwrapChatKey(stored.EncryptedChatKey)
		if err != nil {
			log.Warn(ctx, "chat key unwrap failed", "err", err)
		} else {
			km.SetChatKey(stored.ChatID, key)
		}
	}

	if len(stored.EncryptedTitle) > 0 {
		if err := km.DecryptWithMasterKey(stored.EncryptedTitle, &out.Title); err != nil {
			log.Warn(ctx, "field decryption failed", "field", "title", "err", err)
			out.Title = ""
			failed.Title = true
		}
	}
	if len(stored.EncryptedDraftMD) > 0 {
		if err := km.DecryptWithMasterKey(stored.EncryptedDraftMD, &out.DraftMD); err != nil {
			log.Warn(ctx, "field decryption failed", "field", "draft", "err", err)
			out.DraftMD = ""
			failed.DraftMD = true
		}
	}
	if len(stored.EncryptedDraftPreview) > 0 {
		if err := km.DecryptWithMasterKey(stored.EncryptedDraftPreview, &out.DraftPreview); err != nil {
			log.Warn(ctx, "field decryption failed", "field", "draft_preview", "err", err)
			out.DraftPreview = ""
			failed.DraftPreview = true
		}
	}

	if len(stored.EncryptedMates) > 0 {
		key, ok := km.GetChatKey(stored.ChatID)
		if !ok {
			log.Warn(ctx, "field decryption failed", "field", "mates", "err", common.ErrKeyUnavailable)
			failed.Mates = true
		} else if err := cryptox.DecryptEntry(stored.EncryptedMates, key, &out.Mates); err != nil {
			log.Warn(ctx, "field decryption failed", "field", "mates", "err", err)
			out.Mates = nil
			failed.Mates = true
		}
	}

	return out, failed
}
