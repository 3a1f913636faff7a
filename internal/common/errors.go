// Package common defines shared sentinel errors and small helpers used across
// the chatkeeper client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Key material errors. The master key is not unlocked (before login or
	// after lock); callers must prompt re-authentication instead of retrying.
	ErrKeyUnavailable = errors.New("master key unavailable")

	// Crypto errors. Encryption failures are fatal for the write; decryption
	// failures are contained per field by the codec.
	ErrEncryptionFailure = errors.New("encryption failure")
	ErrDecryptionFailure = errors.New("decryption failure")

	// Storage errors. Nothing was committed, the caller may retry.
	ErrTransactionFailure = errors.New("transaction failure")

	// Messages are append-only; only the newest message of a chat may be
	// deleted.
	ErrNotLatestMessage = errors.New("message is not the latest in its chat")

	// Optimistic concurrency.
	ErrVersionConflict     = errors.New("version conflict")
	ErrUnknownVersionField = errors.New("unknown version field")

	// Session errors.
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)
