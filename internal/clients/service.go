// Package clients owns the tenant roster and the credential lifecycle for
// their platform connections.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type clientRepository interface {
	List(ctx context.Context) ([]models.Client, error)
	Create(ctx context.Context, client *models.Client) error
	FindBySlug(ctx context.Context, slug string) (*models.Client, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpsertConnection(ctx context.Context, conn *models.PlatformConnection) error
	FindRecentCampaigns(ctx context.Context, clientID uuid.UUID, window time.Duration) ([]models.Campaign, error)
}

type credentialSealer interface {
	Encrypt(value any) (string, error)
}

type connectionProber interface {
	Probe(ctx context.Context, platform enums.Platform, identifierID string, bundle json.RawMessage) error
	Forget(clientID uuid.UUID, platform enums.Platform)
}

type cacheInvalidator interface {
	InvalidateClient(clientID string) int
}

// Service exposes client roster and credential operations.
type Service interface {
	List(ctx context.Context) ([]ClientDTO, error)
	ListActive(ctx context.Context) ([]models.Client, error)
	Create(ctx context.Context, input CreateClientInput) (*ClientDTO, error)
	GetBySlug(ctx context.Context, slug string) (*models.Client, error)
	SaveCredentials(ctx context.Context, slug string, input CredentialsInput) (*ConnectionDTO, error)
	TestCredentials(ctx context.Context, slug string, input CredentialsInput) error
	FindRecentCampaigns(ctx context.Context, clientID uuid.UUID, window time.Duration) ([]models.Campaign, error)
}

type service struct {
	repo   clientRepository
	sealer credentialSealer
	prober connectionProber
	cache  cacheInvalidator
	now    func() time.Time
}

// NewService wires the client service.
func NewService(repo clientRepository, sealer credentialSealer, prober connectionProber, cache cacheInvalidator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("client repository required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("credential sealer required")
	}
	if prober == nil {
		return nil, fmt.Errorf("connection prober required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache invalidator required")
	}
	return &service{
		repo:   repo,
		sealer: sealer,
		prober: prober,
		cache:  cache,
		now:    time.Now,
	}, nil
}

// CreateClientInput captures the fields for a new client.
type CreateClientInput struct {
	Slug          string          `json:"slug" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=128"`
	MonthlyBudget decimal.Decimal `json:"monthlyBudget"`
}

// CredentialsInput carries one platform's secret bundle through the
// save/test flow. The bundle is opaque JSON decoded by the matching adapter;
// it is never logged and only persisted encrypted.
type CredentialsInput struct {
	Platform     enums.Platform  `json:"platform"`
	IdentifierID string          `json:"identifierId" validate:"required,max=128"`
	Bundle       json.RawMessage `json:"credentials" validate:"required"`
}

func (s *service) List(ctx context.Context) ([]ClientDTO, error) {
	clients, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list clients")
	}
	dtos := make([]ClientDTO, 0, len(clients))
	for i := range clients {
		dtos = append(dtos, *ToClientDTO(&clients[i]))
	}
	return dtos, nil
}

// ListActive returns model rows for every active client, connections
// included, for the agency-wide roll-up.
func (s *service) ListActive(ctx context.Context) ([]models.Client, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list clients")
	}
	active := make([]models.Client, 0, len(all))
	for _, client := range all {
		if client.Status == enums.ClientStatusActive {
			active = append(active, client)
		}
	}
	return active, nil
}

func (s *service) Create(ctx context.Context, input CreateClientInput) (*ClientDTO, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must be lowercase letters, digits and hyphens")
	}
	if input.MonthlyBudget.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "monthly budget cannot be negative")
	}

	exists, err := s.repo.SlugExists(ctx, slug)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check slug")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("slug %q is taken", slug))
	}

	client := &models.Client{
		Slug:          slug,
		Name:          strings.TrimSpace(input.Name),
		Status:        enums.ClientStatusActive,
		MonthlyBudget: input.MonthlyBudget,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create client")
	}
	return ToClientDTO(client), nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*models.Client, error) {
	client, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeClientNotFound, fmt.Sprintf("client %q not found", slug))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load client")
	}
	return client, nil
}

// SaveCredentials encrypts and stores the bundle for one platform. The
// connection is marked connected only if a live probe with the new bundle
// succeeds; a failed probe still stores the credentials, disconnected, and
// reports the reason in the DTO.
func (s *service) SaveCredentials(ctx context.Context, slug string, input CredentialsInput) (*ConnectionDTO, error) {
	if err := validateCredentialsInput(input); err != nil {
		return nil, err
	}
	client, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	blob, err := s.sealer.Encrypt(input.Bundle)
	if err != nil {
		return nil, err
	}

	probeErr := s.prober.Probe(ctx, input.Platform, input.IdentifierID, input.Bundle)

	conn := &models.PlatformConnection{
		ClientID:             client.ID,
		Platform:             input.Platform,
		IdentifierID:         input.IdentifierID,
		Connected:            probeErr == nil,
		EncryptedCredentials: blob,
	}
	if probeErr == nil {
		syncedAt := s.now()
		conn.LastSyncedAt = &syncedAt
	}
	if err := s.repo.UpsertConnection(ctx, conn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store connection")
	}

	// Stale tokens and cached dashboards both refer to the old secret.
	// Cache keys are derived from the slug, so invalidation matches on it.
	s.prober.Forget(client.ID, input.Platform)
	s.cache.InvalidateClient(client.Slug)

	dto := ToConnectionDTO(conn)
	if probeErr != nil {
		dto.ProbeError = publicProbeReason(probeErr)
	}
	return &dto, nil
}

// TestCredentials probes a bundle without persisting anything.
func (s *service) TestCredentials(ctx context.Context, slug string, input CredentialsInput) error {
	if err := validateCredentialsInput(input); err != nil {
		return err
	}
	if _, err := s.GetBySlug(ctx, slug); err != nil {
		return err
	}
	return s.prober.Probe(ctx, input.Platform, input.IdentifierID, input.Bundle)
}

func (s *service) FindRecentCampaigns(ctx context.Context, clientID uuid.UUID, window time.Duration) ([]models.Campaign, error) {
	campaigns, err := s.repo.FindRecentCampaigns(ctx, clientID, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load local campaigns")
	}
	return campaigns, nil
}

func validateCredentialsInput(input CredentialsInput) error {
	if !input.Platform.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown platform %q", input.Platform))
	}
	if strings.TrimSpace(input.IdentifierID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "identifier ID is required")
	}
	if len(input.Bundle) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "credential bundle is required")
	}
	return nil
}

// publicProbeReason keeps upstream bodies out of responses; only the code's
// public phrasing is exposed.
func publicProbeReason(err error) string {
	code := pkgerrors.CodeOf(err)
	meta := pkgerrors.MetadataFor(code)
	if meta.PublicMessage != "" {
		return meta.PublicMessage
	}
	return string(code)
}
