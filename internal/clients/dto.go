package clients

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlasmedia/adboard-backend/pkg/db/models"
)

// ClientDTO is the outward shape of a client. Connections carry no secret
// material.
type ClientDTO struct {
	ID            uuid.UUID       `json:"id"`
	Slug          string          `json:"slug"`
	Name          string          `json:"name"`
	Status        string          `json:"status"`
	MonthlyBudget decimal.Decimal `json:"monthlyBudget"`
	Connections   []ConnectionDTO `json:"connections"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ConnectionDTO is the outward shape of one platform connection. The
// encrypted blob never leaves the service.
type ConnectionDTO struct {
	Platform     string     `json:"platform"`
	IdentifierID string     `json:"identifierId"`
	Connected    bool       `json:"connected"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	ProbeError   string     `json:"probeError,omitempty"`
}

// ToClientDTO maps a model row into its outward shape.
func ToClientDTO(client *models.Client) *ClientDTO {
	connections := make([]ConnectionDTO, 0, len(client.Connections))
	for i := range client.Connections {
		connections = append(connections, ToConnectionDTO(&client.Connections[i]))
	}
	return &ClientDTO{
		ID:            client.ID,
		Slug:          client.Slug,
		Name:          client.Name,
		Status:        client.Status.String(),
		MonthlyBudget: client.MonthlyBudget,
		Connections:   connections,
		CreatedAt:     client.CreatedAt,
	}
}

// ToConnectionDTO maps a connection row into its outward shape.
func ToConnectionDTO(conn *models.PlatformConnection) ConnectionDTO {
	return ConnectionDTO{
		Platform:     conn.Platform.String(),
		IdentifierID: conn.IdentifierID,
		Connected:    conn.Connected,
		LastSyncedAt: conn.LastSyncedAt,
	}
}
