// Package dashboard orchestrates per-client metric fetches: cache check,
// concurrent platform fan-out tolerant of partial failure, consolidation,
// cache store.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atlasmedia/adboard-backend/internal/consolidation"
	"github.com/atlasmedia/adboard-backend/pkg/cache"
	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
	"github.com/atlasmedia/adboard-backend/pkg/metrics"
	"github.com/atlasmedia/adboard-backend/pkg/platforms"
)

// localCampaignWindow bounds which locally persisted campaigns feed
// consolidation alongside the live numbers.
const localCampaignWindow = 30 * 24 * time.Hour

// adPlatforms are the platforms fanned out per dashboard request. Analytics
// is queried independently through its own endpoint.
var adPlatforms = []enums.Platform{enums.PlatformSearchAds, enums.PlatformSocialAds}

type clientService interface {
	GetBySlug(ctx context.Context, slug string) (*models.Client, error)
	ListActive(ctx context.Context) ([]models.Client, error)
	FindRecentCampaigns(ctx context.Context, clientID uuid.UUID, window time.Duration) ([]models.Campaign, error)
}

type adapterFactory interface {
	ForConnection(clientID uuid.UUID, conn *models.PlatformConnection) (platforms.Adapter, error)
}

// Service is the dashboard orchestrator.
type Service struct {
	clients clientService
	factory adapterFactory
	cache   *cache.Service
	met     *metrics.PlatformMetrics
	now     func() time.Time
}

// Option configures optional service behavior.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics wires prometheus observation of platform calls.
func WithMetrics(met *metrics.PlatformMetrics) Option {
	return func(s *Service) { s.met = met }
}

// NewService wires the orchestrator.
func NewService(clientSvc clientService, factory adapterFactory, cacheSvc *cache.Service, opts ...Option) (*Service, error) {
	if clientSvc == nil {
		return nil, fmt.Errorf("client service required")
	}
	if factory == nil {
		return nil, fmt.Errorf("adapter factory required")
	}
	if cacheSvc == nil {
		return nil, fmt.Errorf("cache service required")
	}
	svc := &Service{
		clients: clientSvc,
		factory: factory,
		cache:   cacheSvc,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// DashboardResponse is the consolidated per-client view for one window.
type DashboardResponse struct {
	ClientID   uuid.UUID             `json:"clientId"`
	Slug       string                `json:"slug"`
	From       string                `json:"from"`
	To         string                `json:"to"`
	Summary    consolidation.Summary `json:"summary"`
	CampaignCt int                   `json:"campaignCount"`
}

// CampaignsResponse lists live platform campaigns merged with local records.
type CampaignsResponse struct {
	ClientID  uuid.UUID                `json:"clientId"`
	Slug      string                   `json:"slug"`
	From      string                   `json:"from"`
	To        string                   `json:"to"`
	Campaigns []platforms.Campaign     `json:"campaigns"`
	Sources   consolidation.DataSource `json:"dataSource"`
}

// AnalyticsResponse is the web-analytics view for one client and window.
type AnalyticsResponse struct {
	ClientID  uuid.UUID            `json:"clientId"`
	Slug      string               `json:"slug"`
	From      string               `json:"from"`
	To        string               `json:"to"`
	Metrics   platforms.Metrics    `json:"metrics"`
	Campaigns []platforms.Campaign `json:"campaigns"`
}

// HistoricalPoint is one month's consolidated summary.
type HistoricalPoint struct {
	Month   string                `json:"month"`
	Summary consolidation.Summary `json:"summary"`
}

// HistoricalResponse is the month-by-month trail for one client.
type HistoricalResponse struct {
	ClientID uuid.UUID         `json:"clientId"`
	Slug     string            `json:"slug"`
	Months   []HistoricalPoint `json:"months"`
}

// OverviewEntry is one client's line in the agency-wide roll-up.
type OverviewEntry struct {
	ClientID uuid.UUID             `json:"clientId"`
	Slug     string                `json:"slug"`
	Name     string                `json:"name"`
	Summary  consolidation.Summary `json:"summary"`
}

// OverviewResponse is the all-active-client roll-up.
type OverviewResponse struct {
	From    string                `json:"from"`
	To      string                `json:"to"`
	Clients []OverviewEntry       `json:"clients"`
	Totals  consolidation.Summary `json:"totals"`
}

// GetDashboard returns the consolidated summary for the client and window,
// cache-first. Unknown slugs and vault failures propagate; per-platform
// failures degrade.
func (s *Service) GetDashboard(ctx context.Context, slug string, rng platforms.DateRange) (*DashboardResponse, error) {
	key := s.cache.Key(cache.DomainClient, slug, map[string]string{
		"from": rng.FromString(),
		"to":   rng.ToString(),
	})
	return cache.WithCache(ctx, s.cache, cache.DomainClient, key, 0, func(ctx context.Context) (*DashboardResponse, error) {
		return s.buildDashboard(ctx, slug, rng)
	})
}

func (s *Service) buildDashboard(ctx context.Context, slug string, rng platforms.DateRange) (*DashboardResponse, error) {
	client, err := s.clients.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	sources, err := s.fetchSources(ctx, client, rng)
	if err != nil {
		return nil, err
	}

	local, err := s.clients.FindRecentCampaigns(ctx, client.ID, localCampaignWindow)
	if err != nil {
		return nil, err
	}

	summary := consolidation.Consolidate(sources, local)
	return &DashboardResponse{
		ClientID:   client.ID,
		Slug:       client.Slug,
		From:       rng.FromString(),
		To:         rng.ToString(),
		Summary:    summary,
		CampaignCt: len(local),
	}, nil
}

// fetchSources fans out to the connected ad platforms concurrently. Each
// platform writes into its own fixed slot, so the output order is stable
// regardless of completion order.
func (s *Service) fetchSources(ctx context.Context, client *models.Client, rng platforms.DateRange) ([]consolidation.Source, error) {
	sources := make([]consolidation.Source, len(adPlatforms))

	var wg sync.WaitGroup
	for i, platform := range adPlatforms {
		adapter, err := s.adapterFor(client, platform)
		if err != nil {
			// Vault failures are fatal; everything else degrades below.
			if pkgerrors.HasCode(err, pkgerrors.CodeCrypto) {
				return nil, err
			}
			sources[i] = degrade(platform, err)
			continue
		}

		wg.Add(1)
		go func(i int, platform enums.Platform, adapter platforms.Adapter) {
			defer wg.Done()
			started := s.now()
			summary, err := adapter.SummaryMetrics(ctx, rng)
			s.observe(platform, "summary", started, err)
			if err != nil {
				sources[i] = degrade(platform, err)
				return
			}
			sources[i] = consolidation.OK(platform, summary)
		}(i, platform, adapter)
	}
	wg.Wait()

	return sources, nil
}

// adapterFor resolves the client's connection for the platform into an
// adapter. A missing connection surfaces as CREDENTIAL_MISSING, which the
// callers degrade to a skipped source.
func (s *Service) adapterFor(client *models.Client, platform enums.Platform) (platforms.Adapter, error) {
	conn := client.Connection(platform)
	if conn == nil || !conn.Connected {
		return nil, pkgerrors.New(pkgerrors.CodeCredentialMissing,
			fmt.Sprintf("client %s has no %s connection", client.Slug, platform))
	}
	return s.factory.ForConnection(client.ID, conn)
}

// degrade maps an adapter-level failure to its source outcome: missing
// credentials mean unconnected, anything else is a failed call.
func degrade(platform enums.Platform, err error) consolidation.Source {
	if pkgerrors.HasCode(err, pkgerrors.CodeCredentialMissing) {
		return consolidation.Skipped(platform)
	}
	return consolidation.Failed(platform, publicReason(err))
}

// GetCampaigns returns live campaign listings merged across connected
// platforms plus local records, cache-first.
func (s *Service) GetCampaigns(ctx context.Context, slug string, rng platforms.DateRange) (*CampaignsResponse, error) {
	key := s.cache.Key(cache.DomainCampaign, slug, map[string]string{
		"from": rng.FromString(),
		"to":   rng.ToString(),
	})
	return cache.WithCache(ctx, s.cache, cache.DomainCampaign, key, 0, func(ctx context.Context) (*CampaignsResponse, error) {
		return s.buildCampaigns(ctx, slug, rng)
	})
}

func (s *Service) buildCampaigns(ctx context.Context, slug string, rng platforms.DateRange) (*CampaignsResponse, error) {
	client, err := s.clients.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	type slot struct {
		campaigns []platforms.Campaign
		err       error
	}
	slots := make([]slot, len(adPlatforms))

	var wg sync.WaitGroup
	for i, platform := range adPlatforms {
		adapter, err := s.adapterFor(client, platform)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeCrypto) {
				return nil, err
			}
			slots[i] = slot{err: err}
			continue
		}

		wg.Add(1)
		go func(i int, platform enums.Platform, adapter platforms.Adapter) {
			defer wg.Done()
			started := s.now()
			listed, err := adapter.Campaigns(ctx, rng)
			s.observe(platform, "campaigns", started, err)
			slots[i] = slot{campaigns: listed, err: err}
		}(i, platform, adapter)
	}
	wg.Wait()

	var merged []platforms.Campaign
	var data consolidation.DataSource
	for i, platform := range adPlatforms {
		if slots[i].err != nil {
			continue
		}
		merged = append(merged, slots[i].campaigns...)
		switch platform {
		case enums.PlatformSearchAds:
			data.SearchAds = true
		case enums.PlatformSocialAds:
			data.SocialAds = true
		}
	}

	local, err := s.clients.FindRecentCampaigns(ctx, client.ID, localCampaignWindow)
	if err != nil {
		return nil, err
	}
	for _, row := range local {
		merged = append(merged, platforms.Campaign{
			ID:     row.ExternalID,
			Name:   row.Name,
			Status: row.Status,
			Metrics: platforms.Metrics{
				Impressions: float64(row.Impressions),
				Clicks:      float64(row.Clicks),
				Cost:        row.Cost.InexactFloat64(),
				Conversions: float64(row.Conversions),
			}.WithDerived(),
		})
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].Metrics.Cost > merged[b].Metrics.Cost
	})

	return &CampaignsResponse{
		ClientID:  client.ID,
		Slug:      client.Slug,
		From:      rng.FromString(),
		To:        rng.ToString(),
		Campaigns: merged,
		Sources:   data,
	}, nil
}

// GetAnalytics returns the web-analytics view for the client and window,
// cache-first. Analytics never joins the ad fan-out, so a missing or failing
// connection surfaces directly instead of degrading.
func (s *Service) GetAnalytics(ctx context.Context, slug string, rng platforms.DateRange) (*AnalyticsResponse, error) {
	key := s.cache.Key(cache.DomainClient, slug, map[string]string{
		"from": rng.FromString(),
		"to":   rng.ToString(),
		"view": "analytics",
	})
	return cache.WithCache(ctx, s.cache, cache.DomainClient, key, 0, func(ctx context.Context) (*AnalyticsResponse, error) {
		return s.buildAnalytics(ctx, slug, rng)
	})
}

func (s *Service) buildAnalytics(ctx context.Context, slug string, rng platforms.DateRange) (*AnalyticsResponse, error) {
	client, err := s.clients.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	adapter, err := s.adapterFor(client, enums.PlatformAnalytics)
	if err != nil {
		return nil, err
	}

	started := s.now()
	summary, err := adapter.SummaryMetrics(ctx, rng)
	s.observe(enums.PlatformAnalytics, "summary", started, err)
	if err != nil {
		return nil, err
	}

	started = s.now()
	campaigns, err := adapter.Campaigns(ctx, rng)
	s.observe(enums.PlatformAnalytics, "campaigns", started, err)
	if err != nil {
		return nil, err
	}

	return &AnalyticsResponse{
		ClientID:  client.ID,
		Slug:      client.Slug,
		From:      rng.FromString(),
		To:        rng.ToString(),
		Metrics:   summary,
		Campaigns: campaigns,
	}, nil
}

// GetHistorical returns month-by-month consolidated summaries for the last
// n calendar months, newest first, cache-first.
func (s *Service) GetHistorical(ctx context.Context, slug string, months int) (*HistoricalResponse, error) {
	if months < 1 || months > 24 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "months must be between 1 and 24")
	}

	key := s.cache.Key(cache.DomainHistorical, slug, map[string]string{
		"months": fmt.Sprintf("%d", months),
	})
	return cache.WithCache(ctx, s.cache, cache.DomainHistorical, key, 0, func(ctx context.Context) (*HistoricalResponse, error) {
		return s.buildHistorical(ctx, slug, months)
	})
}

func (s *Service) buildHistorical(ctx context.Context, slug string, months int) (*HistoricalResponse, error) {
	client, err := s.clients.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	points := make([]HistoricalPoint, 0, months)
	for offset := 0; offset < months; offset++ {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -offset, 0)
		last := first.AddDate(0, 1, -1)
		if last.After(now) {
			last = now
		}
		rng := platforms.NewDateRange(first, last)

		sources, err := s.fetchSources(ctx, client, rng)
		if err != nil {
			return nil, err
		}
		points = append(points, HistoricalPoint{
			Month:   first.Format("2006-01"),
			Summary: consolidation.Consolidate(sources, nil),
		})
	}

	return &HistoricalResponse{ClientID: client.ID, Slug: client.Slug, Months: points}, nil
}

// GetOverview returns the agency-wide roll-up across all active clients for
// the current calendar month, cache-first.
func (s *Service) GetOverview(ctx context.Context) (*OverviewResponse, error) {
	key := s.cache.Key(cache.DomainOverview, "all", nil)
	return cache.WithCache(ctx, s.cache, cache.DomainOverview, key, 0, func(ctx context.Context) (*OverviewResponse, error) {
		return s.buildOverview(ctx)
	})
}

func (s *Service) buildOverview(ctx context.Context) (*OverviewResponse, error) {
	active, err := s.clients.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	rng := platforms.NewDateRange(first, now)

	entries := make([]OverviewEntry, 0, len(active))
	var allSources []consolidation.Source
	for i := range active {
		client := &active[i]
		sources, err := s.fetchSources(ctx, client, rng)
		if err != nil {
			return nil, err
		}
		entries = append(entries, OverviewEntry{
			ClientID: client.ID,
			Slug:     client.Slug,
			Name:     client.Name,
			Summary:  consolidation.Consolidate(sources, nil),
		})
		allSources = append(allSources, sources...)
	}

	return &OverviewResponse{
		From:    rng.FromString(),
		To:      rng.ToString(),
		Clients: entries,
		Totals:  consolidation.Consolidate(allSources, nil),
	}, nil
}

func (s *Service) observe(platform enums.Platform, operation string, started time.Time, err error) {
	if s.met == nil {
		return
	}
	s.met.ObserveCall(platform.String(), operation, s.now().Sub(started), err)
}

func publicReason(err error) string {
	code := pkgerrors.CodeOf(err)
	meta := pkgerrors.MetadataFor(code)
	if meta.PublicMessage != "" {
		return meta.PublicMessage
	}
	return string(code)
}
