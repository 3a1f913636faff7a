package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/chatkeeper/internal/client/keys"
	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/cryptox"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) (*Codec, *bytes.Buffer) {
	t.Helper()
	km := keys.NewManager()
	require.NoError(t, km.Unlock(cryptox.GenerateKey()))
	var buf bytes.Buffer
	return New(km, logging.New(&buf, "debug")), &buf
}

func TestChat_RoundTrip(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()

	in := &models.Chat{
		ChatID:       "chat-1",
		Title:        "Trip to Lisbon",
		Mates:        []string{"travel", "finance"},
		DraftMD:      "book **flights**",
		DraftPreview: "book flights",
		MessagesV:    4,
		TitleV:       2,
		DraftV:       1,
		UnreadCount:  3,
		CreatedAt:    100,
		UpdatedAt:    200,
	}

	stored, err := c.EncryptChatForStorage(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, stored.EncryptedTitle)
	require.NotEmpty(t, stored.EncryptedMates)
	require.NotEmpty(t, stored.EncryptedChatKey)
	assert.NotContains(t, string(stored.EncryptedTitle), "Lisbon")

	out := c.DecryptChatFromStorage(ctx, stored)
	assert.Equal(t, in, out)
}

func TestEncryptChat_EmptyTitleStaysAbsent(t *testing.T) {
	c, _ := newCodec(t)

	stored, err := c.EncryptChatForStorage(context.Background(), &models.Chat{ChatID: "c"})
	require.NoError(t, err)
	assert.Nil(t, stored.EncryptedTitle)
	assert.Nil(t, stored.EncryptedMates)
	assert.Nil(t, stored.EncryptedDraftMD)
	assert.NotEmpty(t, stored.EncryptedChatKey, "chat key is wrapped even with no encrypted field")
}

func TestEncryptChat_LockedFailsEvenWithoutTitle(t *testing.T) {
	c, _ := newCodec(t)
	c.Keys().Lock()

	// no title, but the chat key still needs the master key
	_, err := c.EncryptChatForStorage(context.Background(), &models.Chat{ChatID: "c"})
	require.ErrorIs(t, err, common.ErrEncryptionFailure)
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
}

func TestEncryptChat_LockedTitleFails(t *testing.T) {
	c, _ := newCodec(t)
	c.Keys().Lock()

	stored, err := c.EncryptChatForStorage(context.Background(), &models.Chat{ChatID: "c", Title: "t"})
	require.Nil(t, stored)
	require.ErrorIs(t, err, common.ErrEncryptionFailure)
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
}

func TestEncryptChat_ReusesCachedChatKey(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()

	a, err := c.EncryptChatForStorage(ctx, &models.Chat{ChatID: "c"})
	require.NoError(t, err)
	b, err := c.EncryptChatForStorage(ctx, &models.Chat{ChatID: "c", Title: "x"})
	require.NoError(t, err)

	ka, err := c.Keys().UnwrapChatKey(a.EncryptedChatKey)
	require.NoError(t, err)
	kb, err := c.Keys().UnwrapChatKey(b.EncryptedChatKey)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}

func TestDecryptChat_SeedsKeyCache(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()

	stored, err := c.EncryptChatForStorage(ctx, &models.Chat{ChatID: "c", Mates: []string{"m"}})
	require.NoError(t, err)
	orig, _ := c.Keys().GetChatKey("c")
	orig = append([]byte(nil), orig...)

	c.Keys().ClearAllChatKeys()
	out := c.DecryptChatFromStorage(ctx, stored)

	assert.Equal(t, []string{"m"}, out.Mates)
	got, ok := c.Keys().GetChatKey("c")
	require.True(t, ok)
	assert.Equal(t, orig, got)
}

func TestDecryptChat_CorruptTitleIsNonFatal(t *testing.T) {
	c, logs := newCodec(t)
	ctx := context.Background()

	stored, err := c.EncryptChatForStorage(ctx, &models.Chat{ChatID: "c", Title: "secret", UnreadCount: 9})
	require.NoError(t, err)
	stored.EncryptedTitle[len(stored.EncryptedTitle)-1] ^= 0xff

	out := c.DecryptChatFromStorage(ctx, stored)
	assert.Empty(t, out.Title)
	assert.EqualValues(t, 9, out.UnreadCount)
	assert.Contains(t, logs.String(), "field=title")
	assert.NotContains(t, logs.String(), "secret")
}

func TestDecryptChat_WrongMasterKeyLeavesFieldsEmpty(t *testing.T) {
	a, _ := newCodec(t)
	b, _ := newCodec(t)
	ctx := context.Background()

	stored, err := a.EncryptChatForStorage(ctx, &models.Chat{ChatID: "c", Title: "t", Mates: []string{"x"}, CreatedAt: 5})
	require.NoError(t, err)

	out := b.DecryptChatFromStorage(ctx, stored)
	assert.Empty(t, out.Title)
	assert.Nil(t, out.Mates)
	assert.EqualValues(t, 5, out.CreatedAt)
}

func TestMessage_RoundTrip(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()

	in := &models.Message{
		MessageID:  "m1",
		ChatID:     "chat-1",
		Role:       "user",
		CreatedAt:  10,
		Status:     models.MessageStatusPending,
		Content:    json.RawMessage(`{"type": "doc", "content": [ {"text": "hi"} ]}`),
		SenderName: "alice",
		Category:   "general",
	}

	stored, err := c.EncryptMessageFields(ctx, in, "chat-1")
	require.NoError(t, err)
	assert.NotContains(t, string(stored.EncryptedContent), "hi")

	out := c.DecryptMessageFields(ctx, stored, "chat-1")
	assert.Equal(t, in, out, "content is returned verbatim")
}

func TestMessage_UsesChatKeyNotMasterKey(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()

	stored, err := c.EncryptMessageFields(ctx, &models.Message{MessageID: "m", SenderName: "bob"}, "chat-1")
	require.NoError(t, err)

	var s string
	require.Error(t, c.Keys().DecryptWithMasterKey(stored.EncryptedSenderName, &s))

	key, ok := c.Keys().GetChatKey("chat-1")
	require.True(t, ok)
	require.NoError(t, cryptox.DecryptEntry(stored.EncryptedSenderName, key, &s))
	assert.Equal(t, "bob", s)

	// another chat's key cannot open it
	other := c.Keys().GetOrCreateChatKey("chat-2")
	require.Error(t, cryptox.DecryptEntry(stored.EncryptedSenderName, other, &s))
}

func TestDecryptMessage_MissingChatKey(t *testing.T) {
	c, logs := newCodec(t)
	ctx := context.Background()

	stored, err := c.EncryptMessageFields(ctx, &models.Message{
		MessageID:  "m",
		Content:    json.RawMessage(`{"a":1}`),
		SenderName: "s",
		Category:   "k",
		Role:       "assistant",
	}, "chat-1")
	require.NoError(t, err)

	var out *models.Message
	require.NotPanics(t, func() {
		out = c.DecryptMessageFields(ctx, stored, "never-cached")
	})
	assert.Nil(t, out.Content)
	assert.Empty(t, out.SenderName)
	assert.Empty(t, out.Category)
	assert.Equal(t, "assistant", out.Role)
	assert.Contains(t, logs.String(), "chat key missing")
}

func TestEncryptMessage_ChatMismatch(t *testing.T) {
	c, _ := newCodec(t)
	_, err := c.EncryptMessageFields(context.Background(), &models.Message{MessageID: "m", ChatID: "a"}, "b")
	require.ErrorIs(t, err, ErrChatIDMismatch)
}

func TestPrepareMessageForProcessing(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()
	content := json.RawMessage(`{"text":"summarise this"}`)

	pm, err := c.PrepareMessageForProcessing(ctx, &models.Message{MessageID: "m", Content: content, Category: "general"}, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, content, pm.Content)
	assert.NotEmpty(t, pm.EncryptedContent)

	pm.Wipe()
	assert.Nil(t, pm.Content)
	assert.Equal(t, `{"text":"summarise this"}`, string(content), "caller's buffer is untouched")

	out := c.DecryptMessageFields(ctx, &pm.StoredMessage, "chat-1")
	assert.JSONEq(t, string(content), string(out.Content))
}

func TestEnsureChatKey(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()

	stored, err := c.EncryptChatForStorage(ctx, &models.Chat{ChatID: "c"})
	require.NoError(t, err)
	orig, _ := c.Keys().GetChatKey("c")
	orig = append([]byte(nil), orig...)
	c.Keys().ClearAllChatKeys()

	require.NoError(t, c.EnsureChatKey(ctx, "c", stored.EncryptedChatKey))
	got, ok := c.Keys().GetChatKey("c")
	require.True(t, ok)
	assert.Equal(t, orig, got)

	require.NoError(t, c.EnsureChatKey(ctx, "new", nil))
	_, ok = c.Keys().GetChatKey("new")
	assert.False(t, ok)

	c.Keys().ClearAllChatKeys()
	require.ErrorIs(t, c.EnsureChatKey(ctx, "c", []byte("garbage-garbage-garbage-garbage")), common.ErrDecryptionFailure)
}

func TestEnsureChatKey_StoredKeyWinsOverCachedKey(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()

	stored, err := c.EncryptChatForStorage(ctx, &models.Chat{ChatID: "c"})
	require.NoError(t, err)
	orig, _ := c.Keys().GetChatKey("c")
	orig = append([]byte(nil), orig...)

	// a fresh key was cached before the stored chat was seen
	c.Keys().ClearAllChatKeys()
	c.Keys().GetOrCreateChatKey("c")

	require.NoError(t, c.EnsureChatKey(ctx, "c", stored.EncryptedChatKey))
	got, ok := c.Keys().GetChatKey("c")
	require.True(t, ok)
	assert.Equal(t, orig, got)
}

func TestDecryptChat_ReportsFailedFields(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()

	stored, err := c.EncryptChatForStorage(ctx, &models.Chat{ChatID: "c", Title: "t", DraftMD: "d", Mates: []string{"m"}})
	require.NoError(t, err)
	foreign, err := cryptox.EncryptEntry("x", cryptox.GenerateKey())
	require.NoError(t, err)
	stored.EncryptedDraftMD = foreign
	stored.EncryptedDraftPreview = foreign

	out, failed := c.DecryptChat(ctx, stored)
	assert.Equal(t, "t", out.Title)
	assert.Equal(t, []string{"m"}, out.Mates)
	assert.Equal(t, FailedFields{DraftMD: true, DraftPreview: true}, failed)
}

func TestUseKeys_SwitchesManager(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()
	first := c.Keys()

	stored, err := c.EncryptChatForStorage(ctx, &models.Chat{ChatID: "c", Title: "mine"})
	require.NoError(t, err)

	next := keys.NewManager()
	require.NoError(t, next.Unlock(cryptox.GenerateKey()))
	assert.Same(t, first, c.UseKeys(next))
	assert.Same(t, next, c.Keys())

	out, failed := c.DecryptChat(ctx, stored)
	assert.Empty(t, out.Title)
	assert.True(t, failed.Title)
}

func TestOfflineChange_RoundTrip(t *testing.T) {
	c, _ := newCodec(t)
	ctx := context.Background()

	in := &models.OfflineChange{
		ChangeID:          "ch1",
		ChatID:            "c",
		Type:              models.ChangeTitle,
		Value:             json.RawMessage(`"New title"`),
		VersionBeforeEdit: 3,
		CreatedAt:         77,
	}
	stored, err := c.EncryptChangeForStorage(ctx, in)
	require.NoError(t, err)
	assert.NotContains(t, string(stored.EncryptedValue), "New title")

	assert.Equal(t, in, c.DecryptChangeFromStorage(ctx, stored))

	c.Keys().Lock()
	out := c.DecryptChangeFromStorage(ctx, stored)
	assert.Nil(t, out.Value)
	assert.Equal(t, "ch1", out.ChangeID)
}
