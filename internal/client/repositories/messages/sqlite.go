package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/dbx"
)

const columns = `message_id, chat_id, role, encrypted_content, encrypted_sender_name, encrypted_category,
	created_at, status`

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

func scanMessage(s scanner) (*models.StoredMessage, error) {
	m := &models.StoredMessage{}
	var status string
	err := s.Scan(&m.MessageID, &m.ChatID, &m.Role, &m.EncryptedContent, &m.EncryptedSenderName,
		&m.EncryptedCategory, &m.CreatedAt, &status)
	if err != nil {
		return nil, err
	}
	m.Status = models.MessageStatus(status)
	return m, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, m *models.StoredMessage) error {
	status := m.Status
	if status == "" {
		status = models.MessageStatusPending
	}

	query := `INSERT INTO messages (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			role = excluded.role,
			encrypted_content = excluded.encrypted_content,
			encrypted_sender_name = excluded.encrypted_sender_name,
			encrypted_category = excluded.encrypted_category,
			created_at = excluded.created_at,
			status = excluded.status`

	_, err := r.db.ExecContext(ctx, query, m.MessageID, m.ChatID, m.Role, m.EncryptedContent,
		m.EncryptedSenderName, m.EncryptedCategory, m.CreatedAt, string(status))
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.StoredMessage, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM messages WHERE message_id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message[%s]: %w", id, err)
	}
	return m, nil
}

func (r *SQLiteRepository) GetByChatID(ctx context.Context, chatID string) ([]*models.StoredMessage, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM messages WHERE chat_id = ?
		ORDER BY created_at, rowid`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []*models.StoredMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET status = ? WHERE message_id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
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

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE message_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete message: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

func (r *SQLiteRepository) DeleteByChatID(ctx context.Context, chatID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}
