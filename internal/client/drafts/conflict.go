package drafts

import (
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
)

// ConflictError reports that the version an edit was based on is no longer
// the current one. It matches common.ErrVersionConflict with errors.Is.
type ConflictError struct {
	ChatID   string
	Field    models.VersionField
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	if e.ChatID == "" {
		return fmt.Sprintf("version conflict on %s: expected %d, found %d", e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("version conflict on %s of chat %s: expected %d, found %d", e.Field, e.ChatID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return common.ErrVersionConflict
}

// CompareVersion returns a *ConflictError when expected and actual differ.
// It only reports; resolving the conflict is up to the caller.
func CompareVersion(field models.VersionField, expected, actual int64) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownVersionField, field)
	}
	if expected != actual {
		return &ConflictError{Field: field, Expected: expected, Actual: actual}
	}
	return nil
}
