package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/client/codec"
	"github.com/dmitrijs2005/chatkeeper/internal/client/repositories/changes"
	"github.com/dmitrijs2005/chatkeeper/internal/client/repositories/chats"
	"github.com/dmitrijs2005/chatkeeper/internal/client/repositories/messages"
	"github.com/dmitrijs2005/chatkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/dbx"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
)

// Repositories groups the repositories bound to one handle, either the
// database itself or an open transaction.
type Repositories struct {
	Chats    chats.Repository
	Messages messages.Repository
	Changes  changes.Repository
	Metadata metadata.Repository
}

func newRepositories(db dbx.DBTX) *Repositories {
	return &Repositories{
		Chats:    chats.NewSQLiteRepository(db),
		Messages: messages.NewSQLiteRepository(db),
		Changes:  changes.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}
}

type Store struct {
	db    *sql.DB
	path  string
	codec *codec.Codec
	log   logging.Logger
	now   func() int64
	// tx is set on the copy handed out by WithinTx.
	tx *Repositories
}

// New wraps an already migrated database. path is only used by
// DeleteDatabase and may be empty.
func New(db *sql.DB, path string, c *codec.Codec, log logging.Logger) *Store {
	return &Store{
		db:    db,
		path:  path,
		codec: c,
		log:   log.With("component", "store"),
		now:   func() int64 { return time.Now().Unix() },
	}
}

// Open initializes the database at path and returns a Store on top of it.
func Open(ctx context.Context, path string, c *codec.Codec, log logging.Logger) (*Store, error) {
	db, err := InitDatabase(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(db, path, c, log), nil
}

// DB returns the underlying handle. Do not use it inside InTx.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Codec() *codec.Codec {
	return s.codec
}

// Repositories returns repositories bound to the database, or to the open
// transaction inside WithinTx.
func (s *Store) Repositories() *Repositories {
	if s.tx != nil {
		return s.tx
	}
	return newRepositories(s.db)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in one transaction with repositories bound to it. Any error
// rolls everything back; storage errors come back classified as
// common.ErrTransactionFailure.
func (s *Store) InTx(ctx context.Context, op string, fn func(ctx context.Context, r *Repositories) error) error {
	if s.tx != nil {
		return classify(op, fn(ctx, s.tx))
	}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, newRepositories(tx))
	})
	return classify(op, err)
}

// WithinTx runs fn with a copy of the store whose operations all join one
// transaction, so several store calls and writes through tx.Repositories()
// commit or roll back together. Cache cleanup a call does after its own
// commit (forgetting a deleted chat's key) happens when that call returns.
func (s *Store) WithinTx(ctx context.Context, op string, fn func(ctx context.Context, tx *Store) error) error {
	return s.InTx(ctx, op, func(ctx context.Context, r *Repositories) error {
		bound := *s
		bound.tx = r
		return fn(ctx, &bound)
	})
}

// classify keeps key, crypto and lookup errors as they are and tags
// everything else as a transaction failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range []error{
		common.ErrKeyUnavailable,
		common.ErrEncryptionFailure,
		common.ErrDecryptionFailure,
		common.ErrorNotFound,
		common.ErrUnknownVersionField,
		common.ErrVersionConflict,
		common.ErrNotLatestMessage,
		codec.ErrChatIDMismatch,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if errors.Is(err, common.ErrTransactionFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrTransactionFailure, err)
}

// ClearAllChatData removes every chat, message and queued offline change and
// drops all cached chat keys. Auth metadata is left alone.
func (s *Store) ClearAllChatData(ctx context.Context) error {
	err := s.InTx(ctx, "clear chat data", func(ctx context.Context, r *Repositories) error {
		if err := r.Messages.Clear(ctx); err != nil {
			return err
		}
		if err := r.Chats.Clear(ctx); err != nil {
			return err
		}
		return r.Changes.Clear(ctx)
	})
	if err != nil {
		return err
	}
	s.codec.Keys().ClearAllChatKeys()
	s.log.Info(ctx, "local chat data cleared")
	return nil
}

// DeleteDatabase closes the store and removes the database files. The store
// must not be used afterwards.
func (s *Store) DeleteDatabase(ctx context.Context) error {
	s.codec.Keys().ClearAllChatKeys()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	if s.path == "" {
		return nil
	}
	if err := removeDatabaseFiles(s.path); err != nil {
		return fmt.Errorf("failed to remove database files: %w", err)
	}
	s.log.Info(ctx, "local database deleted", "path", s.path)
	return nil
}
