package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atlasmedia/adboard-backend/pkg/enums"
)

// PlatformConnection links a client to one external platform account. The
// secret bundle lives only in EncryptedCredentials; IdentifierID is the
// non-secret account reference (customer id, ad-account id, property id) and
// is stored in plaintext beside the blob.
type PlatformConnection struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID             uuid.UUID      `gorm:"column:client_id;type:uuid;not null;index:idx_client_platform,unique"`
	Platform             enums.Platform `gorm:"column:platform;not null;index:idx_client_platform,unique"`
	IdentifierID         string         `gorm:"column:identifier_id;not null"`
	Connected            bool           `gorm:"column:connected;not null;default:false"`
	LastSyncedAt         *time.Time     `gorm:"column:last_synced_at"`
	EncryptedCredentials string         `gorm:"column:encrypted_credentials;not null;default:''"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasCredentials reports whether a secret bundle is stored for this connection.
func (pc *PlatformConnection) HasCredentials() bool {
	return pc != nil && pc.EncryptedCredentials != ""
}

// BeforeSave enforces that a connection is never marked connected without a
// stored secret bundle.
func (pc *PlatformConnection) BeforeSave(_ *gorm.DB) error {
	if pc.Connected && pc.EncryptedCredentials == "" {
		return fmt.Errorf("platform connection %s/%s: connected without credentials", pc.ClientID, pc.Platform)
	}
	return nil
}
