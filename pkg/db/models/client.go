package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlasmedia/adboard-backend/pkg/enums"
)

// Client represents one agency tenant.
type Client struct {
	ID            uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Slug          string             `gorm:"column:slug;not null;unique"`
	Name          string             `gorm:"column:name;not null"`
	Status        enums.ClientStatus `gorm:"column:status;not null;default:'active'"`
	MonthlyBudget decimal.Decimal    `gorm:"column:monthly_budget;type:numeric(12,2);not null;default:0"`

	Connections []PlatformConnection `gorm:"foreignKey:ClientID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Connection returns the stored connection row for the given platform, if any.
func (c *Client) Connection(platform enums.Platform) *PlatformConnection {
	for i := range c.Connections {
		if c.Connections[i].Platform == platform {
			return &c.Connections[i]
		}
	}
	return nil
}
