package chats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/dbx"
)

const columns = `chat_id, encrypted_title, encrypted_mates, encrypted_draft_md, encrypted_draft_preview,
	encrypted_chat_key, messages_v, title_v, draft_v, unread_count, last_edited_overall_timestamp,
	created_at, updated_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (*models.StoredChat, error) {
	c := &models.StoredChat{}
	err := s.Scan(&c.ChatID, &c.EncryptedTitle, &c.EncryptedMates, &c.EncryptedDraftMD, &c.EncryptedDraftPreview,
		&c.EncryptedChatKey, &c.MessagesV, &c.TitleV, &c.DraftV, &c.UnreadCount, &c.LastEditedOverallTimestamp,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, c *models.StoredChat) error {
	query := `INSERT INTO chats (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			encrypted_title = excluded.encrypted_title,
			encrypted_mates = excluded.encrypted_mates,
			encrypted_draft_md = excluded.encrypted_draft_md,
			encrypted_draft_preview = excluded.encrypted_draft_preview,
			encrypted_chat_key = excluded.encrypted_chat_key,
			messages_v = excluded.messages_v,
			title_v = excluded.title_v,
			draft_v = excluded.draft_v,
			unread_count = excluded.unread_count,
			last_edited_overall_timestamp = excluded.last_edited_overall_timestamp,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		c.ChatID, c.EncryptedTitle, c.EncryptedMates, c.EncryptedDraftMD, c.EncryptedDraftPreview,
		c.EncryptedChatKey, c.MessagesV, c.TitleV, c.DraftV, c.UnreadCount, c.LastEditedOverallTimestamp,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.StoredChat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM chats WHERE chat_id = ?`, id)
	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat[%s]: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.StoredChat, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM chats
		ORDER BY last_edited_overall_timestamp DESC, created_at DESC, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select chats: %w", err)
	}
	defer rows.Close()

	var result []*models.StoredChat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete chat: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

func (r *SQLiteRepository) UpdateVersion(ctx context.Context, id string, field models.VersionField, value int64) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownVersionField, field)
	}
	// field is whitelisted above
	query := fmt.Sprintf(`UPDATE chats SET %s = ? WHERE chat_id = ?`, field)
	res, err := r.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", field, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chats`); err != nil {
		return fmt.Errorf("failed to clear chats: %w", err)
	}
	return nil
}
