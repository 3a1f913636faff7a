// Package codec converts chat store entities between their in-memory form
// (plaintext sensitive fields) and their storage form (encrypted blobs only).
//
// # Key usage
//
//   - Chat title, draft markdown and draft preview: master key. The title must
//     stay readable before any chat key exists.
//   - Chat mates and every sensitive message field (content, sender name,
//     category): the owning chat's key, never the master key and never
//     another chat's key.
//   - Chat key: wrapped under the master key into encrypted_chat_key.
//   - Offline change values: master key.
//
// # Failure semantics
//
// Encryption failures are returned and the caller must not persist the
// entity. Decryption failures are contained per field: the field is left
// empty, a warning is logged and the rest of the entity still loads.
//
// The Codec holds no state of its own; the key cache lives in keys.Manager.
package codec
