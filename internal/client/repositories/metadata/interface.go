// Package metadata keeps the local authentication record: the user name, the
// password salt, the verifier of the derived master key and the KDF
// parameters. None of it is secret on its own; the master key is never
// stored.
package metadata

import (
	"context"
)

// Record keys.
const (
	KeyUsername = "username"
	KeySalt     = "salt"
	KeyVerifier = "verifier"
	KeyKDF      = "kdf_params"
)

// Credentials is the auth record written on registration and read back on
// every unlock.
type Credentials struct {
	Username string
	Salt     []byte
	Verifier []byte
	// KDF holds the JSON encoded key derivation parameters. Empty for
	// records written before parameters were stored.
	KDF []byte
}

// Complete reports whether c carries enough to verify a password.
func (c *Credentials) Complete() bool {
	return c != nil && len(c.Salt) > 0 && len(c.Verifier) > 0
}

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	List(ctx context.Context) (map[string][]byte, error)

	// SaveCredentials writes the whole auth record in one statement.
	SaveCredentials(ctx context.Context, c *Credentials) error
	// LoadCredentials returns (nil, nil) when nobody registered on this
	// device yet.
	LoadCredentials(ctx context.Context) (*Credentials, error)

	// Clear forgets the account. Used on logout.
	Clear(ctx context.Context) error
}
