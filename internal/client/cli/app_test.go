package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/chatkeeper/internal/client/config"
	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		DatabasePath: filepath.Join(t.TempDir(), "cli.db"),
		LogLevel:     "error",
		KDF:          config.KDFConfig{Time: 1, MemoryKiB: 1024, Threads: 1},
	}
	app, err := NewApp(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	var out bytes.Buffer
	app.out = &out
	return app, &out
}

func feed(app *App, lines ...string) {
	app.reader = bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func stubCredentials(t *testing.T, user, password string) {
	t.Helper()
	origText, origPass := getSimpleText, getPassword
	getSimpleText = func(r *bufio.Reader, prompt string, w io.Writer) (string, error) {
		if strings.HasPrefix(prompt, "Enter user name") {
			return user, nil
		}
		return origText(r, prompt, w)
	}
	getPassword = func(w io.Writer) ([]byte, error) { return []byte(password), nil }
	t.Cleanup(func() { getSimpleText, getPassword = origText, origPass })
}

func onlyChat(t *testing.T, app *App) *models.Chat {
	t.Helper()
	chats, err := app.store.GetAllChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	return chats[0]
}

func TestApp_RegisterLockUnlock(t *testing.T) {
	app, _ := newTestApp(t)
	ctx := context.Background()

	stubCredentials(t, "alice", "pw")
	require.NoError(t, app.Register(ctx))
	assert.True(t, app.isUnlocked())
	assert.Equal(t, "(alice)", app.getStatus())

	require.NoError(t, app.Lock(ctx))
	assert.Equal(t, "(locked)", app.getStatus())

	stubCredentials(t, "alice", "wrong")
	require.Error(t, app.Unlock(ctx))

	stubCredentials(t, "alice", "pw")
	require.NoError(t, app.Unlock(ctx))
	assert.True(t, app.isUnlocked())
}

func TestApp_UnlockWithoutAccount(t *testing.T) {
	app, _ := newTestApp(t)
	stubCredentials(t, "bob", "pw")

	err := app.Unlock(context.Background())
	require.ErrorContains(t, err, "register first")
}

func TestApp_ChatWorkflowQueuesChanges(t *testing.T) {
	app, out := newTestApp(t)
	ctx := context.Background()
	stubCredentials(t, "alice", "pw")
	require.NoError(t, app.Register(ctx))

	feed(app, "# Groceries", "- milk", "")
	require.NoError(t, app.NewChat(ctx))
	chat := onlyChat(t, app)
	assert.EqualValues(t, 1, chat.DraftV)
	assert.Equal(t, "Groceries", chat.DraftPreview)

	feed(app, "Weekly shopping")
	require.NoError(t, app.Title(ctx, chat.ChatID))

	feed(app, "# Groceries", "- milk", "- eggs", "")
	require.NoError(t, app.Draft(ctx, chat.ChatID))

	feed(app, "# Groceries", "- milk", "- eggs", "")
	require.NoError(t, app.Draft(ctx, chat.ChatID))
	assert.Contains(t, out.String(), "Draft unchanged.")

	feed(app, "remember the eggs", "")
	require.NoError(t, app.Send(ctx, chat.ChatID))

	chat = onlyChat(t, app)
	assert.Equal(t, "Weekly shopping", chat.Title)
	assert.EqualValues(t, 1, chat.TitleV)
	assert.EqualValues(t, 2, chat.DraftV)
	assert.EqualValues(t, 1, chat.MessagesV)

	changes, err := app.queue.GetOfflineChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, models.ChangeDraft, changes[0].Type)
	assert.Equal(t, models.ChangeTitle, changes[1].Type)
	assert.JSONEq(t, `"Weekly shopping"`, string(changes[1].Value))
	assert.EqualValues(t, 0, changes[1].VersionBeforeEdit)
	assert.EqualValues(t, 1, changes[2].VersionBeforeEdit)

	out.Reset()
	require.NoError(t, app.Show(ctx, chat.ChatID))
	assert.Contains(t, out.String(), "remember the eggs")
	assert.Contains(t, out.String(), "Weekly shopping")

	out.Reset()
	require.NoError(t, app.Queue(ctx))
	assert.Equal(t, 3, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "local v2")

	require.NoError(t, app.Ack(ctx, changes[0].ChangeID))
	require.Error(t, app.Ack(ctx, changes[0].ChangeID))

	require.NoError(t, app.ClearDraft(ctx, chat.ChatID))
	chat = onlyChat(t, app)
	assert.EqualValues(t, 0, chat.DraftV)
	assert.Empty(t, chat.DraftMD)
}

func TestApp_DeleteMessageAndChat(t *testing.T) {
	app, out := newTestApp(t)
	ctx := context.Background()
	stubCredentials(t, "alice", "pw")
	require.NoError(t, app.Register(ctx))

	feed(app, "draft", "")
	require.NoError(t, app.NewChat(ctx))
	chat := onlyChat(t, app)

	feed(app, "hello", "")
	require.NoError(t, app.Send(ctx, chat.ChatID))
	msgs, err := app.store.GetMessagesForChat(ctx, chat.ChatID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, app.DeleteMessage(ctx, msgs[0].MessageID))
	require.Error(t, app.DeleteMessage(ctx, msgs[0].MessageID))

	changes, err := app.queue.GetOfflineChangesForChat(ctx, chat.ChatID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, models.ChangeMessageDelete, changes[1].Type)
	assert.EqualValues(t, 1, changes[1].VersionBeforeEdit)

	require.NoError(t, app.Delete(ctx, chat.ChatID))
	require.ErrorIs(t, app.Delete(ctx, chat.ChatID), errChatNotFound)
	require.ErrorIs(t, app.Show(ctx, chat.ChatID), errChatNotFound)

	out.Reset()
	require.NoError(t, app.List(ctx))
	assert.Contains(t, out.String(), "No chats.")

	out.Reset()
	require.NoError(t, app.Queue(ctx))
	assert.Contains(t, out.String(), "chat gone")
}

func TestApp_Logout(t *testing.T) {
	app, _ := newTestApp(t)
	ctx := context.Background()
	stubCredentials(t, "alice", "pw")
	require.NoError(t, app.Register(ctx))

	feed(app, "x", "")
	require.NoError(t, app.NewChat(ctx))

	feed(app, "no")
	require.NoError(t, app.Logout(ctx))
	assert.True(t, app.isUnlocked())

	feed(app, "yes")
	require.NoError(t, app.Logout(ctx))
	assert.False(t, app.isUnlocked())

	registered, err := app.session.IsRegistered(ctx)
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestApp_EditNotAppliedWhenQueueWriteFails(t *testing.T) {
	app, _ := newTestApp(t)
	ctx := context.Background()
	stubCredentials(t, "alice", "pw")
	require.NoError(t, app.Register(ctx))

	feed(app, "first draft", "")
	require.NoError(t, app.NewChat(ctx))
	chat := onlyChat(t, app)

	_, err := app.store.DB().ExecContext(ctx, `DROP TABLE offline_changes`)
	require.NoError(t, err)

	feed(app, "Renamed")
	require.Error(t, app.Title(ctx, chat.ChatID))

	feed(app, "second draft", "")
	require.Error(t, app.Draft(ctx, chat.ChatID))

	require.Error(t, app.ClearDraft(ctx, chat.ChatID))

	got := onlyChat(t, app)
	assert.Empty(t, got.Title)
	assert.EqualValues(t, 0, got.TitleV)
	assert.Equal(t, "first draft", got.DraftMD)
	assert.EqualValues(t, 1, got.DraftV)
}

func TestApp_DeleteMessageOnlyLatest(t *testing.T) {
	app, _ := newTestApp(t)
	ctx := context.Background()
	stubCredentials(t, "alice", "pw")
	require.NoError(t, app.Register(ctx))

	feed(app, "draft", "")
	require.NoError(t, app.NewChat(ctx))
	chat := onlyChat(t, app)

	for _, id := range []string{"m1", "m2"} {
		_, err := app.store.AddMessage(ctx, &models.Message{MessageID: id, ChatID: chat.ChatID, Role: "user"})
		require.NoError(t, err)
	}

	// m2 is newer, or ties on the second and wins on id
	require.ErrorIs(t, app.DeleteMessage(ctx, "m1"), common.ErrNotLatestMessage)
	require.NoError(t, app.DeleteMessage(ctx, "m2"))

	changes, err := app.queue.GetOfflineChangesForChat(ctx, chat.ChatID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, models.ChangeMessageDelete, changes[1].Type)
	assert.JSONEq(t, `"m2"`, string(changes[1].Value))
}
