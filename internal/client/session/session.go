// Package session adapts the authentication collaborator to the local store:
// it turns a password into the master key, gives the store a new key manager
// unlocked with it and wipes that manager on lock or logout.
//
// Only a salt, a verifier and the KDF parameters are kept on disk. The master
// key itself never leaves memory.
package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/client/codec"
	"github.com/dmitrijs2005/chatkeeper/internal/client/keys"
	"github.com/dmitrijs2005/chatkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/chatkeeper/internal/client/store"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/cryptox"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
)

const saltSize = 32

var ErrAlreadyRegistered = errors.New("local account already exists")

type Session struct {
	store  *store.Store
	codec  *codec.Codec
	params cryptox.KDFParams
	log    logging.Logger
}

// New binds a session to the store. params are used for new registrations;
// existing ones keep the parameters they were created with.
func New(st *store.Store, params cryptox.KDFParams, log logging.Logger) *Session {
	return &Session{
		store:  st,
		codec:  st.Codec(),
		params: params,
		log:    log.With("component", "session"),
	}
}

// begin gives the store a new key manager unlocked with masterKey and wipes
// the one of the previous session.
func (s *Session) begin(masterKey []byte) error {
	km := keys.NewManager()
	if err := km.Unlock(masterKey); err != nil {
		return err
	}
	s.codec.UseKeys(km).Lock()
	return nil
}

// end replaces the current key manager with an empty locked one and wipes
// the old one.
func (s *Session) end() {
	s.codec.UseKeys(keys.NewManager()).Lock()
}

func (s *Session) metadataRepo() metadata.Repository {
	return s.store.Repositories().Metadata
}

// IsRegistered reports whether local credentials exist.
func (s *Session) IsRegistered(ctx context.Context) (bool, error) {
	salt, err := s.metadataRepo().Get(ctx, metadata.KeySalt)
	if err != nil {
		return false, err
	}
	return salt != nil, nil
}

// Register creates local credentials for username and unlocks the session.
func (s *Session) Register(ctx context.Context, username string, password []byte) error {
	registered, err := s.IsRegistered(ctx)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if registered {
		return ErrAlreadyRegistered
	}

	salt := common.GenerateRandByteArray(saltSize)
	key := cryptox.DeriveMasterKeyWithParams(password, salt, s.params)
	defer common.WipeByteArray(key)
	verifier := cryptox.MakeVerifier(key)

	params, err := json.Marshal(s.params)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	err = s.store.InTx(ctx, "register", func(ctx context.Context, r *store.Repositories) error {
		return r.Metadata.SaveCredentials(ctx, &metadata.Credentials{
			Username: username,
			Salt:     salt,
			Verifier: verifier,
			KDF:      params,
		})
	})
	if err != nil {
		return err
	}

	if err := s.begin(key); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	s.log.Info(ctx, "local account created", "username", username)
	return nil
}

// Unlock derives the master key from password and unlocks the key manager.
// It returns common.ErrLocalDataNotAvailable before Register and
// common.ErrUnauthorized for a wrong username or password.
func (s *Session) Unlock(ctx context.Context, username string, password []byte) error {
	creds, err := s.metadataRepo().LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	if creds == nil {
		return common.ErrLocalDataNotAvailable
	}
	if creds.Username != username {
		return common.ErrUnauthorized
	}

	params := cryptox.DefaultKDFParams
	if len(creds.KDF) > 0 {
		if err := json.Unmarshal(creds.KDF, &params); err != nil {
			return fmt.Errorf("unlock: bad kdf parameters: %w", err)
		}
	}

	key := cryptox.DeriveMasterKeyWithParams(password, creds.Salt, params)
	defer common.WipeByteArray(key)

	if subtle.ConstantTimeCompare(creds.Verifier, cryptox.MakeVerifier(key)) == 0 {
		s.log.Warn(ctx, "unlock rejected", "username", username)
		return common.ErrUnauthorized
	}
	if err := s.begin(key); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	s.log.Info(ctx, "session unlocked", "username", username)
	return nil
}

// Username returns the registered username or "".
func (s *Session) Username(ctx context.Context) (string, error) {
	v, err := s.metadataRepo().Get(ctx, metadata.KeyUsername)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *Session) IsUnlocked() bool {
	return s.codec.Keys().IsUnlocked()
}

// Lock ends the session: the master key and all cached chat keys are wiped.
func (s *Session) Lock(ctx context.Context) {
	s.end()
	s.log.Info(ctx, "session locked")
}

// Logout wipes all local chat data, the offline queue and the credentials
// in one transaction. The key manager is locked even when the wipe fails.
func (s *Session) Logout(ctx context.Context) error {
	defer s.end()

	err := s.store.InTx(ctx, "logout", func(ctx context.Context, r *store.Repositories) error {
		if err := r.Messages.Clear(ctx); err != nil {
			return err
		}
		if err := r.Chats.Clear(ctx); err != nil {
			return err
		}
		if err := r.Changes.Clear(ctx); err != nil {
			return err
		}
		return r.Metadata.Clear(ctx)
	})
	if err != nil {
		s.log.Error(ctx, "logout wipe failed", "err", err)
		return err
	}
	s.log.Info(ctx, "logged out, local data wiped")
	return nil
}
