package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/chatkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/chatkeeper/internal/filex"

	_ "modernc.org/sqlite"
)

// InitDatabase opens the SQLite database at dsn and applies migrations.
//
// The pool is limited to one connection: SQLite serializes writers anyway and
// a single connection gives every transaction a consistent view.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	if err := filex.EnsureParentDir(dsn); err != nil {
		return nil, fmt.Errorf("failed to prepare database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// removeDatabaseFiles deletes the database file and its journal siblings.
// Missing files are not an error.
func removeDatabaseFiles(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
