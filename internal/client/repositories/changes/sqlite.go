package changes

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/dbx"
)

const columns = `seq, change_id, chat_id, type, encrypted_value, version_before_edit, created_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, c *models.StoredOfflineChange) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO offline_changes
		(change_id, chat_id, type, encrypted_value, version_before_edit, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ChangeID, c.ChatID, string(c.Type), c.EncryptedValue, c.VersionBeforeEdit, c.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert offline change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get offline change seq: %w", err)
	}
	c.Seq = seq
	return seq, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.StoredOfflineChange, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM offline_changes `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select offline changes: %w", err)
	}
	defer rows.Close()

	var result []*models.StoredOfflineChange
	for rows.Next() {
		c := &models.StoredOfflineChange{}
		var typ string
		if err := rows.Scan(&c.Seq, &c.ChangeID, &c.ChatID, &typ, &c.EncryptedValue,
			&c.VersionBeforeEdit, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan offline change row: %w", err)
		}
		c.Type = models.ChangeType(typ)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate offline change rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.StoredOfflineChange, error) {
	return r.query(ctx, "")
}

func (r *SQLiteRepository) GetByChatID(ctx context.Context, chatID string) ([]*models.StoredOfflineChange, error) {
	return r.query(ctx, "WHERE chat_id = ?", chatID)
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, changeID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offline_changes WHERE change_id = ?`, changeID)
	if err != nil {
		return false, fmt.Errorf("failed to delete offline change: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count offline changes: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM offline_changes`); err != nil {
		return fmt.Errorf("failed to clear offline changes: %w", err)
	}
	return nil
}
