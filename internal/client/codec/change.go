package codec

import (
	"context"

	"github.com/dmitrijs2005/chatkeeper/internal/client/models"
)

// EncryptChangeForStorage encrypts the change value with the master key.
func (c *Codec) EncryptChangeForStorage(ctx context.Context, change *models.OfflineChange) (*models.StoredOfflineChange, error) {
	km := c.Keys()
	out := &models.StoredOfflineChange{
		ChangeID:          change.ChangeID,
		ChatID:            change.ChatID,
		Type:              change.Type,
		VersionBeforeEdit: change.VersionBeforeEdit,
		CreatedAt:         change.CreatedAt,
	}
	if len(change.Value) > 0 {
		blob, err := km.EncryptWithMasterKey([]byte(change.Value))
		if err != nil {
			return nil, encryptionErr("change value", err)
		}
		out.EncryptedValue = blob
	}
	return out, nil
}

// DecryptChangeFromStorage never fails; an undecryptable value is left nil
// and the change itself is still returned so it is never dropped.
func (c *Codec) DecryptChangeFromStorage(ctx context.Context, stored *models.StoredOfflineChange) *models.OfflineChange {
	km := c.Keys()
	out := &models.OfflineChange{
		ChangeID:          stored.ChangeID,
		ChatID:            stored.ChatID,
		Type:              stored.Type,
		VersionBeforeEdit: stored.VersionBeforeEdit,
		CreatedAt:         stored.CreatedAt,
	}
	if len(stored.EncryptedValue) > 0 {
		var v []byte
		if err := km.DecryptWithMasterKey(stored.EncryptedValue, &v); err != nil {
			c.log.Warn(ctx, "field decryption failed", "change_id", stored.ChangeID, "field", "value", "err", err)
		} else {
			out.Value = v
		}
	}
	return out
}
