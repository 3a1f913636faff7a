package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/client/offline"
	"github.com/dmitrijs2005/chatkeeper/internal/client/store"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/google/uuid"
)

var errChatNotFound = errors.New("chat not found")

// messageContent is the document the CLI stores as message content.
type messageContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// enqueue records a local mutation in the offline queue inside tx, so the
// mutation and its queue entry commit together.
func (a *App) enqueue(ctx context.Context, tx *store.Store, chatID string, typ models.ChangeType, value any, versionBefore int64) error {
	change, err := offline.NewChange(chatID, typ, value, versionBefore)
	if err != nil {
		return err
	}
	return a.queue.With(tx.Repositories().Changes).AddOfflineChange(ctx, change)
}

func (a *App) requireChat(ctx context.Context, chatID string) (*models.Chat, error) {
	return findChat(ctx, a.store, chatID)
}

func findChat(ctx context.Context, st *store.Store, chatID string) (*models.Chat, error) {
	chat, err := st.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, fmt.Errorf("%w: %s", errChatNotFound, chatID)
	}
	return chat, nil
}

// NewChat starts a chat from a draft.
func (a *App) NewChat(ctx context.Context) error {
	text, err := GetMultiline(a.reader, "Draft for the new chat", a.out)
	if err != nil {
		return err
	}
	var chat *models.Chat
	err = a.store.WithinTx(ctx, "new chat", func(ctx context.Context, tx *store.Store) error {
		var err error
		if chat, err = a.drafts.With(tx).CreateNewChatWithCurrentUserDraft(ctx, text, previewOf(text)); err != nil {
			return err
		}
		draft := models.Draft{Markdown: chat.DraftMD, Preview: chat.DraftPreview}
		return a.enqueue(ctx, tx, chat.ChatID, models.ChangeDraft, draft, 0)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created chat %s\n", chat.ChatID)
	return nil
}

func (a *App) List(ctx context.Context) error {
	chats, err := a.store.GetAllChats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Fprintln(a.out, "No chats.")
		return nil
	}
	for _, c := range chats {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		line := fmt.Sprintf("%s  %s", c.ChatID, title)
		if c.DraftPreview != "" {
			line += "  [draft: " + c.DraftPreview + "]"
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func (a *App) Show(ctx context.Context, chatID string) error {
	chat, err := a.requireChat(ctx, chatID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Chat:    %s\nTitle:   %s (v%d)\nMates:   %v\nDraft:   %q (v%d)\nUpdated: %s\n",
		chat.ChatID, chat.Title, chat.TitleV, chat.Mates, chat.DraftMD, chat.DraftV,
		time.Unix(chat.UpdatedAt, 0).Format(time.DateTime))

	msgs, err := a.store.GetDecryptedMessages(ctx, chatID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Messages (v%d):\n", chat.MessagesV)
	for _, m := range msgs {
		fmt.Fprintf(a.out, "  [%s] %s %s: %s\n", m.MessageID, m.Role, m.SenderName, renderContent(m.Content))
	}
	return nil
}

func renderContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "(unavailable)"
	}
	var c messageContent
	if err := json.Unmarshal(raw, &c); err == nil && c.Text != "" {
		return c.Text
	}
	return string(raw)
}

// Title renames a chat and queues the change when the title differs.
func (a *App) Title(ctx context.Context, chatID string) error {
	if _, err := a.requireChat(ctx, chatID); err != nil {
		return err
	}
	title, err := getSimpleText(a.reader, "New title", a.out)
	if err != nil {
		return err
	}

	var base, updated *models.Chat
	err = a.store.WithinTx(ctx, "rename chat", func(ctx context.Context, tx *store.Store) error {
		var err error
		if base, err = findChat(ctx, tx, chatID); err != nil {
			return err
		}
		if updated, err = tx.UpdateChatTitle(ctx, chatID, title); err != nil {
			return err
		}
		if updated.TitleV == base.TitleV {
			return nil
		}
		return a.enqueue(ctx, tx, chatID, models.ChangeTitle, title, base.TitleV)
	})
	if err != nil {
		return err
	}
	if updated.TitleV == base.TitleV {
		fmt.Fprintln(a.out, "Title unchanged.")
		return nil
	}
	fmt.Fprintf(a.out, "Title saved (v%d).\n", updated.TitleV)
	return nil
}

// Draft replaces the draft of a chat.
func (a *App) Draft(ctx context.Context, chatID string) error {
	if _, err := a.requireChat(ctx, chatID); err != nil {
		return err
	}
	text, err := GetMultiline(a.reader, "Draft", a.out)
	if err != nil {
		return err
	}

	var base, updated *models.Chat
	err = a.store.WithinTx(ctx, "save draft", func(ctx context.Context, tx *store.Store) error {
		var err error
		if base, err = findChat(ctx, tx, chatID); err != nil {
			return err
		}
		if updated, err = a.drafts.With(tx).SaveCurrentUserChatDraft(ctx, chatID, text, previewOf(text)); err != nil {
			return err
		}
		if updated.DraftV == base.DraftV {
			return nil
		}
		draft := models.Draft{Markdown: updated.DraftMD, Preview: updated.DraftPreview}
		return a.enqueue(ctx, tx, chatID, models.ChangeDraft, draft, base.DraftV)
	})
	if err != nil {
		return err
	}
	if updated.DraftV == base.DraftV {
		fmt.Fprintln(a.out, "Draft unchanged.")
		return nil
	}
	fmt.Fprintf(a.out, "Draft saved (v%d).\n", updated.DraftV)
	return nil
}

func (a *App) ClearDraft(ctx context.Context, chatID string) error {
	err := a.store.WithinTx(ctx, "clear draft", func(ctx context.Context, tx *store.Store) error {
		base, err := findChat(ctx, tx, chatID)
		if err != nil {
			return err
		}
		if _, err := a.drafts.With(tx).ClearCurrentUserChatDraft(ctx, chatID); err != nil {
			return err
		}
		return a.enqueue(ctx, tx, chatID, models.ChangeDraft, models.Draft{}, base.DraftV)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Draft cleared.")
	return nil
}

// Send appends a user message to a chat.
func (a *App) Send(ctx context.Context, chatID string) error {
	if _, err := a.requireChat(ctx, chatID); err != nil {
		return err
	}
	text, err := GetMultiline(a.reader, "Message", a.out)
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Fprintln(a.out, "Nothing to send.")
		return nil
	}

	content, err := json.Marshal(messageContent{Type: "markdown", Text: text})
	if err != nil {
		return err
	}
	msg := &models.Message{
		MessageID:  uuid.NewString(),
		ChatID:     chatID,
		Role:       "user",
		SenderName: a.userName,
		Content:    content,
		Status:     models.MessageStatusPending,
	}
	if _, err := a.store.AddMessage(ctx, msg); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Message %s stored.\n", msg.MessageID)
	return nil
}

// DeleteMessage removes the latest message of a chat and queues the
// deletion.
func (a *App) DeleteMessage(ctx context.Context, messageID string) error {
	err := a.store.WithinTx(ctx, "delete message", func(ctx context.Context, tx *store.Store) error {
		stored, err := tx.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("message %s: %w", messageID, common.ErrorNotFound)
		}
		base, err := findChat(ctx, tx, stored.ChatID)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteMessage(ctx, messageID); err != nil {
			return err
		}
		return a.enqueue(ctx, tx, base.ChatID, models.ChangeMessageDelete, messageID, base.MessagesV)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Message deleted.")
	return nil
}

// Delete removes a chat with all its messages.
func (a *App) Delete(ctx context.Context, chatID string) error {
	removed, err := a.store.DeleteChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", errChatNotFound, chatID)
	}
	fmt.Fprintln(a.out, "Chat deleted.")
	return nil
}

// Queue prints pending offline changes in replay order with the local
// version of the counter each one touches.
func (a *App) Queue(ctx context.Context) error {
	changes, err := a.queue.GetOfflineChanges(ctx)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(a.out, "Offline queue is empty.")
		return nil
	}
	for _, c := range changes {
		local := "chat gone"
		chat, err := a.store.GetChat(ctx, c.ChatID)
		if err != nil {
			return err
		}
		if field, ok := c.Type.VersionField(); ok && chat != nil {
			local = fmt.Sprintf("local v%d", chat.Version(field))
		}
		fmt.Fprintf(a.out, "%s  %s  %-14s base v%d  %s\n", c.ChangeID, c.ChatID, c.Type, c.VersionBeforeEdit, local)
	}
	return nil
}

// Ack drops a queued change once it is known to be applied upstream.
func (a *App) Ack(ctx context.Context, changeID string) error {
	removed, err := a.queue.DeleteOfflineChange(ctx, changeID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("change %s: %w", changeID, common.ErrorNotFound)
	}
	fmt.Fprintln(a.out, "Change removed from queue.")
	return nil
}
