package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/dbx"
)

const upsertRecord = `
	INSERT INTO metadata (key, value) VALUES %s
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`

// SQLiteRepository stores the auth record as key/value rows of the metadata
// table. It accepts a DBTX so registration and logout can run inside the
// store's transactions.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(upsertRecord, "(?, ?)"), key, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth record: %w", err)
	}
	defer rows.Close()

	record := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to read auth record: %w", err)
		}
		record[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read auth record: %w", err)
	}
	return record, nil
}

func (r *SQLiteRepository) SaveCredentials(ctx context.Context, c *Credentials) error {
	if !c.Complete() {
		return errors.New("failed to save credentials: salt and verifier are required")
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(upsertRecord, "(?, ?), (?, ?), (?, ?), (?, ?)"),
		KeyUsername, []byte(c.Username),
		KeySalt, c.Salt,
		KeyVerifier, c.Verifier,
		KeyKDF, c.KDF,
	)
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadCredentials(ctx context.Context) (*Credentials, error) {
	record, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	c := &Credentials{
		Username: string(record[KeyUsername]),
		Salt:     record[KeySalt],
		Verifier: record[KeyVerifier],
		KDF:      record[KeyKDF],
	}
	if !c.Complete() {
		return nil, nil
	}
	return c, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM metadata`); err != nil {
		return fmt.Errorf("failed to clear auth record: %w", err)
	}
	return nil
}
