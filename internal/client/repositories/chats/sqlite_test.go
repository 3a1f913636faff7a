package chats

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/chatkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "chats.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func TestUpsert_InsertAndUpdate(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	c := &models.StoredChat{
		ChatID:           "c1",
		EncryptedTitle:   []byte("t1"),
		EncryptedChatKey: []byte("k1"),
		DraftV:           1,
		CreatedAt:        10,
	}
	require.NoError(t, r.Upsert(ctx, c))

	got, err := r.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c, got)

	c2 := &models.StoredChat{
		ChatID:           "c1",
		EncryptedChatKey: []byte("k1"),
		DraftV:           2,
		TitleV:           5,
		UpdatedAt:        20,
	}
	require.NoError(t, r.Upsert(ctx, c2))

	got, err = r.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got.EncryptedTitle, "title cleared by upsert")
	assert.EqualValues(t, 2, got.DraftV)
	assert.EqualValues(t, 5, got.TitleV)
}

func TestGetByID_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetAll_OrderedByLastEdit(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &models.StoredChat{ChatID: "old", LastEditedOverallTimestamp: 1}))
	require.NoError(t, r.Upsert(ctx, &models.StoredChat{ChatID: "new", LastEditedOverallTimestamp: 3}))
	require.NoError(t, r.Upsert(ctx, &models.StoredChat{ChatID: "mid", LastEditedOverallTimestamp: 2}))

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.ChatID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
}

func TestDeleteByID(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Upsert(ctx, &models.StoredChat{ChatID: "x"}))

	removed, err := r.DeleteByID(ctx, "x")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = r.DeleteByID(ctx, "x")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestUpdateVersion(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Upsert(ctx, &models.StoredChat{ChatID: "c", MessagesV: 1}))

	require.NoError(t, r.UpdateVersion(ctx, "c", models.MessagesVersion, 7))
	got, err := r.GetByID(ctx, "c")
	require.NoError(t, err)
	assert.EqualValues(t, 7, got.MessagesV)

	require.ErrorIs(t, r.UpdateVersion(ctx, "missing", models.MessagesVersion, 1), common.ErrorNotFound)
	require.ErrorIs(t, r.UpdateVersion(ctx, "c", models.VersionField("unread_count"), 1), common.ErrUnknownVersionField)
}

func TestClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Upsert(ctx, &models.StoredChat{ChatID: "a"}))
	require.NoError(t, r.Upsert(ctx, &models.StoredChat{ChatID: "b"}))

	require.NoError(t, r.Clear(ctx))
	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpsert_RejectsEmptyID(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	require.Error(t, r.Upsert(context.Background(), &models.StoredChat{}))
}

func TestDBErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.GetAll(ctx)
	require.ErrorContains(t, err, "failed to select chats")

	err = r.Upsert(ctx, &models.StoredChat{ChatID: "c"})
	require.ErrorContains(t, err, "failed to upsert chat")
}
