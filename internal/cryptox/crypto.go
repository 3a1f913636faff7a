// Package cryptox holds the symmetric primitives used by the chat store:
// AES-256-GCM sealing of JSON payloads and argon2id master key derivation.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the length of every symmetric key handled by the store (AES-256).
const KeySize = 32

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// KDFParams are the argon2id cost parameters.
type KDFParams struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
}

// DefaultKDFParams match the parameters the vault has always used.
var DefaultKDFParams = KDFParams{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}

func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

func DeriveMasterKey(password []byte, salt []byte) []byte {
	return DeriveMasterKeyWithParams(password, salt, DefaultKDFParams)
}

func DeriveMasterKeyWithParams(password, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, KeySize)
}

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with AES-GCM under key. A new random nonce is
// generated for each call and prepended to the ciphertext, so the result is
// a single self-contained blob suitable for one storage column.
func Seal(plaintext, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())

	out := make([]byte, 0, len(nonce)+len(plaintext)+aesgcm.Overhead())
	out = append(out, nonce...)
	return aesgcm.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func Open(blob, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ns := aesgcm.NonceSize()
	if len(blob) < ns+aesgcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	return aesgcm.Open(nil, blob[:ns], blob[ns:], nil)
}

// EncryptEntry serializes the given value to JSON and encrypts it using
// AES-GCM.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). The returned
// blob is nonce || ciphertext, see Seal.
//
// Example:
//
//	key := cryptox.GenerateKey()
//	blob, err := cryptox.EncryptEntry("Trip to Lisbon", key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var title string
//	_ = cryptox.DecryptEntry(blob, key, &title)
func EncryptEntry(entry any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	return Seal(plaintext, key)
}

// DecryptEntry decrypts a blob produced by EncryptEntry and unmarshals the
// resulting JSON into v, which must be a pointer.
func DecryptEntry(blob, key []byte, v any) error {
	plaintext, err := Open(blob, key)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}
