package models

import "encoding/json"

// ChangeType classifies an offline mutation.
type ChangeType string

const (
	ChangeTitle         ChangeType = "title"
	ChangeDraft         ChangeType = "draft"
	ChangeMessageDelete ChangeType = "message_delete"
)

// VersionField returns the counter a change of this type was based on.
func (t ChangeType) VersionField() (VersionField, bool) {
	switch t {
	case ChangeTitle:
		return TitleVersion, true
	case ChangeDraft:
		return DraftVersion, true
	case ChangeMessageDelete:
		return MessagesVersion, true
	}
	return "", false
}

// OfflineChange is a locally applied mutation waiting for upstream
// confirmation.
type OfflineChange struct {
	ChangeID          string
	ChatID            string
	Type              ChangeType
	Value             json.RawMessage
	VersionBeforeEdit int64
	CreatedAt         int64
}

// StoredOfflineChange is the at-rest form; Value is encrypted because it may
// carry a title or draft.
type StoredOfflineChange struct {
	Seq               int64
	ChangeID          string
	ChatID            string
	Type              ChangeType
	EncryptedValue    []byte
	VersionBeforeEdit int64
	CreatedAt         int64
}

// Draft is the payload of a ChangeDraft offline change.
type Draft struct {
	Markdown string `json:"markdown"`
	Preview  string `json:"preview"`
}
