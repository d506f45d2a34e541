package clients

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
)

// Repository handles client and connection persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to client operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// List returns all non-archived clients with their connections preloaded.
func (r *Repository) List(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	if err := r.db.WithContext(ctx).
		Preload("Connections").
		Where("status <> ?", enums.ClientStatusArchived).
		Order("name asc").
		Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// Create persists a new client row.
func (r *Repository) Create(ctx context.Context, client *models.Client) error {
	return r.db.WithContext(ctx).Create(client).Error
}

// FindBySlug loads a client and its connections by slug. Returns
// gorm.ErrRecordNotFound when the slug is unknown.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Client, error) {
	var client models.Client
	if err := r.db.WithContext(ctx).
		Preload("Connections").
		Where("slug = ?", slug).
		First(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

// SlugExists reports whether a client already claims the slug.
func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Client{}).
		Where("slug = ?", slug).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpsertConnection inserts or updates the (client, platform) connection row.
func (r *Repository) UpsertConnection(ctx context.Context, conn *models.PlatformConnection) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "client_id"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"identifier_id", "connected", "last_synced_at", "encrypted_credentials", "updated_at",
			}),
		}).
		Create(conn).Error
}

// FindRecentCampaigns returns the client's locally persisted campaigns
// updated within the window.
func (r *Repository) FindRecentCampaigns(ctx context.Context, clientID uuid.UUID, window time.Duration) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	cutoff := time.Now().Add(-window)
	if err := r.db.WithContext(ctx).
		Where("client_id = ? AND updated_at >= ?", clientID, cutoff).
		Order("updated_at desc").
		Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

// IsNotFound reports whether err is the record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
