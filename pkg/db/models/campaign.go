package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlasmedia/adboard-backend/pkg/enums"
)

// Campaign is a locally persisted campaign record. These rows are written by
// the sync/import path and feed consolidation alongside the live platform
// numbers.
type Campaign struct {
	ID          uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID    uuid.UUID            `gorm:"column:client_id;type:uuid;not null;index"`
	Platform    enums.Platform       `gorm:"column:platform;not null"`
	ExternalID  string               `gorm:"column:external_id;not null"`
	Name        string               `gorm:"column:name;not null"`
	Status      enums.CampaignStatus `gorm:"column:status;not null;default:'paused'"`
	Impressions int64                `gorm:"column:impressions;not null;default:0"`
	Clicks      int64                `gorm:"column:clicks;not null;default:0"`
	Cost        decimal.Decimal      `gorm:"column:cost;type:numeric(12,2);not null;default:0"`
	Conversions int64                `gorm:"column:conversions;not null;default:0"`
	StartedAt   *time.Time           `gorm:"column:started_at"`
	EndedAt     *time.Time           `gorm:"column:ended_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
