// Package models defines the chat store entities in two shapes: the
// in-memory form with plaintext sensitive fields, and the storage form where
// those fields only exist as encrypted blobs. The codec is the only place
// that converts between them.
package models

import "encoding/json"

// VersionField names one of the per-chat optimistic concurrency counters.
type VersionField string

const (
	DraftVersion    VersionField = "draft_v"
	MessagesVersion VersionField = "messages_v"
	TitleVersion    VersionField = "title_v"
)

// Valid reports whether f is a known counter. Column names are interpolated
// into SQL, so callers must check this first.
func (f VersionField) Valid() bool {
	switch f {
	case DraftVersion, MessagesVersion, TitleVersion:
		return true
	}
	return false
}

// Chat is a conversation container as seen by the application.
// Empty strings and nil slices mean the field is absent.
type Chat struct {
	ChatID string

	Title        string
	Mates        []string
	DraftMD      string
	DraftPreview string

	MessagesV int64
	TitleV    int64
	DraftV    int64

	UnreadCount                int64
	LastEditedOverallTimestamp int64
	CreatedAt                  int64
	UpdatedAt                  int64
}

// Version returns the counter named by f.
func (c *Chat) Version(f VersionField) int64 {
	switch f {
	case DraftVersion:
		return c.DraftV
	case MessagesVersion:
		return c.MessagesV
	case TitleVersion:
		return c.TitleV
	}
	return 0
}

// SetVersion updates the counter named by f. Unknown fields are ignored.
func (c *Chat) SetVersion(f VersionField, v int64) {
	switch f {
	case DraftVersion:
		c.DraftV = v
	case MessagesVersion:
		c.MessagesV = v
	case TitleVersion:
		c.TitleV = v
	}
}

// StoredChat is the at-rest representation. There are no plaintext columns
// for sensitive fields.
type StoredChat struct {
	ChatID string

	EncryptedTitle        []byte
	EncryptedMates        []byte
	EncryptedDraftMD      []byte
	EncryptedDraftPreview []byte
	EncryptedChatKey      []byte

	MessagesV int64
	TitleV    int64
	DraftV    int64

	UnreadCount                int64
	LastEditedOverallTimestamp int64
	CreatedAt                  int64
	UpdatedAt                  int64
}

// MessageStatus is the lifecycle tag of a message.
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSynced  MessageStatus = "synced"
	MessageStatusFailed  MessageStatus = "failed"
)

// Message is one turn in a chat. Content is an opaque structured document
// produced by the message parser; it is stored and returned verbatim.
type Message struct {
	MessageID string
	ChatID    string
	Role      string
	CreatedAt int64
	Status    MessageStatus

	Content    json.RawMessage
	SenderName string
	Category   string
}

// StoredMessage is the at-rest representation of a Message.
type StoredMessage struct {
	MessageID string
	ChatID    string
	Role      string
	CreatedAt int64
	Status    MessageStatus

	EncryptedContent    []byte
	EncryptedSenderName []byte
	EncryptedCategory   []byte
}

// ProcessingMessage carries both forms of a message: the encrypted fields
// that get persisted and the plaintext the server needs to act on it.
// Call Wipe once the request has been handed off.
type ProcessingMessage struct {
	StoredMessage

	Content    json.RawMessage
	SenderName string
	Category   string
}

// Wipe zeroes the plaintext content buffer and drops the plaintext fields.
func (m *ProcessingMessage) Wipe() {
	for i := range m.Content {
		m.Content[i] = 0
	}
	m.Content = nil
	m.SenderName = ""
	m.Category = ""
}
