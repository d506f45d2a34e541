package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atlasmedia/adboard-backend/pkg/cache"
	"github.com/atlasmedia/adboard-backend/pkg/config"
	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
	"github.com/atlasmedia/adboard-backend/pkg/platforms"
)

type stubAdapter struct {
	platform  enums.Platform
	metrics   platforms.Metrics
	campaigns []platforms.Campaign
	err       error
	calls     int
	mu        sync.Mutex
}

func (a *stubAdapter) Platform() enums.Platform             { return a.platform }
func (a *stubAdapter) TestConnection(context.Context) error { return a.err }

func (a *stubAdapter) SummaryMetrics(context.Context, platforms.DateRange) (platforms.Metrics, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.err != nil {
		return platforms.Metrics{}, a.err
	}
	return a.metrics.WithDerived(), nil
}

func (a *stubAdapter) Campaigns(context.Context, platforms.DateRange) ([]platforms.Campaign, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.campaigns, nil
}

type stubClients struct {
	clients   map[string]*models.Client
	campaigns []models.Campaign
	lookupErr error
	slugCalls int
}

func (c *stubClients) GetBySlug(_ context.Context, slug string) (*models.Client, error) {
	c.slugCalls++
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	client, ok := c.clients[slug]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeClientNotFound, "client not found")
	}
	return client, nil
}

func (c *stubClients) ListActive(context.Context) ([]models.Client, error) {
	out := make([]models.Client, 0, len(c.clients))
	for _, client := range c.clients {
		out = append(out, *client)
	}
	return out, nil
}

func (c *stubClients) FindRecentCampaigns(context.Context, uuid.UUID, time.Duration) ([]models.Campaign, error) {
	return c.campaigns, nil
}

type stubFactory struct {
	adapters map[enums.Platform]platforms.Adapter
	errs     map[enums.Platform]error
}

func (f *stubFactory) ForConnection(_ uuid.UUID, conn *models.PlatformConnection) (platforms.Adapter, error) {
	if err, ok := f.errs[conn.Platform]; ok {
		return nil, err
	}
	adapter, ok := f.adapters[conn.Platform]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeCredentialMissing, "no adapter")
	}
	return adapter, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func connectedClient(slug string, connected ...enums.Platform) *models.Client {
	client := &models.Client{
		ID:     uuid.New(),
		Slug:   slug,
		Name:   "Acme",
		Status: enums.ClientStatusActive,
	}
	for _, platform := range connected {
		client.Connections = append(client.Connections, models.PlatformConnection{
			ClientID:             client.ID,
			Platform:             platform,
			IdentifierID:         "id-" + platform.String(),
			Connected:            true,
			EncryptedCredentials: "v1:blob",
		})
	}
	return client
}

func defaultCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		CampaignTTL: 15 * time.Minute, CampaignMaxEntries: 512,
		HistoricalTTL: 60 * time.Minute, HistoricalMaxEntries: 256,
		ClientTTL: 5 * time.Minute, ClientMaxEntries: 1024,
		OverviewTTL: 10 * time.Minute, OverviewMaxEntries: 64,
	}
}

func newTestService(t *testing.T, clientSvc clientService, factory adapterFactory, clock *fakeClock) (*Service, *cache.Service) {
	t.Helper()
	cacheSvc := cache.NewService(defaultCacheConfig(), cache.WithClock(clock.Now))
	svc, err := NewService(clientSvc, factory, cacheSvc, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, cacheSvc
}

func testRange() platforms.DateRange {
	return platforms.NewDateRange(
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	)
}

func TestGetDashboardSingleConnectedPlatform(t *testing.T) {
	client := connectedClient("acme", enums.PlatformSearchAds)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": client}}
	factory := &stubFactory{adapters: map[enums.Platform]platforms.Adapter{
		enums.PlatformSearchAds: &stubAdapter{
			platform: enums.PlatformSearchAds,
			metrics:  platforms.Metrics{Impressions: 10000, Clicks: 200, Cost: 500, Conversions: 10},
		},
	}}
	clock := &fakeClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	resp, err := svc.GetDashboard(context.Background(), "acme", testRange())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	summary := resp.Summary
	if summary.TotalImpressions != 10000 || summary.TotalClicks != 200 ||
		summary.TotalCost != 500 || summary.TotalConversions != 10 {
		t.Fatalf("unexpected totals: %+v", summary)
	}
	if summary.AvgCTR != 2.0 || summary.AvgCPC != 2.5 || summary.AvgROAS != 0.02 {
		t.Fatalf("unexpected ratios: %+v", summary)
	}
	if !summary.DataSource.SearchAds {
		t.Fatal("searchAds flag should be set")
	}
	if summary.DataSource.SocialAds {
		t.Fatal("socialAds must be false for an unconnected platform")
	}
	if summary.Failures != nil {
		t.Fatalf("unconnected platform is skipped, not failed: %+v", summary.Failures)
	}
}

func TestGetDashboardIsCachedWithinTTL(t *testing.T) {
	client := connectedClient("acme", enums.PlatformSearchAds)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": client}}
	adapter := &stubAdapter{platform: enums.PlatformSearchAds, metrics: platforms.Metrics{Impressions: 100}}
	factory := &stubFactory{adapters: map[enums.Platform]platforms.Adapter{enums.PlatformSearchAds: adapter}}
	clock := &fakeClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	for i := 0; i < 3; i++ {
		if _, err := svc.GetDashboard(context.Background(), "acme", testRange()); err != nil {
			t.Fatalf("dashboard: %v", err)
		}
	}
	if adapter.calls != 1 {
		t.Fatalf("expected one upstream fetch within TTL, got %d", adapter.calls)
	}
	if clientSvc.slugCalls != 1 {
		t.Fatalf("expected one client lookup within TTL, got %d", clientSvc.slugCalls)
	}
}

func TestGetDashboardRefetchesAfterClientTTL(t *testing.T) {
	client := connectedClient("acme", enums.PlatformSearchAds)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": client}}
	adapter := &stubAdapter{platform: enums.PlatformSearchAds, metrics: platforms.Metrics{Impressions: 100}}
	factory := &stubFactory{adapters: map[enums.Platform]platforms.Adapter{enums.PlatformSearchAds: adapter}}
	clock := &fakeClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	if _, err := svc.GetDashboard(context.Background(), "acme", testRange()); err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	// 301s later, just past the 5m client-domain window, the entry is stale
	// and the producer runs again.
	clock.Advance(301 * time.Second)
	if _, err := svc.GetDashboard(context.Background(), "acme", testRange()); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if adapter.calls != 2 {
		t.Fatalf("expected refetch after TTL expiry, got %d calls", adapter.calls)
	}
}

func TestGetDashboardDegradesFailedPlatform(t *testing.T) {
	client := connectedClient("acme", enums.PlatformSearchAds, enums.PlatformSocialAds)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": client}}
	factory := &stubFactory{adapters: map[enums.Platform]platforms.Adapter{
		enums.PlatformSearchAds: &stubAdapter{
			platform: enums.PlatformSearchAds,
			metrics:  platforms.Metrics{Impressions: 1000, Clicks: 50, Cost: 80, Conversions: 2},
		},
		enums.PlatformSocialAds: &stubAdapter{
			platform: enums.PlatformSocialAds,
			err:      pkgerrors.New(pkgerrors.CodeAPI, "upstream rejected the request"),
		},
	}}
	clock := &fakeClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	resp, err := svc.GetDashboard(context.Background(), "acme", testRange())
	if err != nil {
		t.Fatalf("one failed platform must not fail the request: %v", err)
	}
	if resp.Summary.TotalImpressions != 1000 {
		t.Fatalf("failed platform leaked into totals: %+v", resp.Summary)
	}
	if resp.Summary.DataSource.SocialAds {
		t.Fatal("socialAds flag must be false for a failed platform")
	}
	if _, ok := resp.Summary.Failures["social_ads"]; !ok {
		t.Fatalf("expected failure recorded, got %+v", resp.Summary.Failures)
	}
}

func TestGetDashboardUnknownSlugPropagates(t *testing.T) {
	clientSvc := &stubClients{clients: map[string]*models.Client{}}
	clock := &fakeClock{now: time.Now()}
	svc, _ := newTestService(t, clientSvc, &stubFactory{}, clock)

	_, err := svc.GetDashboard(context.Background(), "ghost", testRange())
	if !pkgerrors.HasCode(err, pkgerrors.CodeClientNotFound) {
		t.Fatalf("expected CLIENT_NOT_FOUND, got %v", err)
	}
}

func TestGetDashboardVaultErrorPropagates(t *testing.T) {
	client := connectedClient("acme", enums.PlatformSearchAds)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": client}}
	factory := &stubFactory{errs: map[enums.Platform]error{
		enums.PlatformSearchAds: pkgerrors.New(pkgerrors.CodeCrypto, "open credential blob"),
	}}
	clock := &fakeClock{now: time.Now()}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	_, err := svc.GetDashboard(context.Background(), "acme", testRange())
	if !pkgerrors.HasCode(err, pkgerrors.CodeCrypto) {
		t.Fatalf("vault failures are fatal, got %v", err)
	}
}

func TestGetDashboardIncludesLocalCampaigns(t *testing.T) {
	client := connectedClient("acme")
	clientSvc := &stubClients{
		clients: map[string]*models.Client{"acme": client},
		campaigns: []models.Campaign{
			{Impressions: 400, Clicks: 40, Conversions: 4},
		},
	}
	clock := &fakeClock{now: time.Now()}
	svc, _ := newTestService(t, clientSvc, &stubFactory{}, clock)

	resp, err := svc.GetDashboard(context.Background(), "acme", testRange())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if resp.Summary.TotalImpressions != 400 || resp.CampaignCt != 1 {
		t.Fatalf("local campaigns not merged: %+v", resp)
	}
}

func TestGetCampaignsMergesPlatformsAndLocal(t *testing.T) {
	client := connectedClient("acme", enums.PlatformSearchAds)
	clientSvc := &stubClients{
		clients: map[string]*models.Client{"acme": client},
		campaigns: []models.Campaign{
			{ExternalID: "local-1", Name: "Legacy push", Status: enums.CampaignStatusPaused, Impressions: 10},
		},
	}
	factory := &stubFactory{adapters: map[enums.Platform]platforms.Adapter{
		enums.PlatformSearchAds: &stubAdapter{
			platform: enums.PlatformSearchAds,
			campaigns: []platforms.Campaign{
				{ID: "g-1", Name: "Brand", Status: enums.CampaignStatusActive, Metrics: platforms.Metrics{Cost: 10}},
			},
		},
	}}
	clock := &fakeClock{now: time.Now()}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	resp, err := svc.GetCampaigns(context.Background(), "acme", testRange())
	if err != nil {
		t.Fatalf("campaigns: %v", err)
	}
	if len(resp.Campaigns) != 2 {
		t.Fatalf("expected platform + local campaigns, got %d", len(resp.Campaigns))
	}
	if !resp.Sources.SearchAds || resp.Sources.SocialAds {
		t.Fatalf("unexpected data source flags: %+v", resp.Sources)
	}
	// Sorted by spend descending: the platform campaign leads.
	if resp.Campaigns[0].ID != "g-1" {
		t.Fatalf("expected spend-descending order, got %+v", resp.Campaigns)
	}
}

func TestGetHistoricalValidatesMonths(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	svc, _ := newTestService(t, &stubClients{clients: map[string]*models.Client{}}, &stubFactory{}, clock)

	for _, months := range []int{0, -1, 25} {
		if _, err := svc.GetHistorical(context.Background(), "acme", months); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Errorf("months=%d: expected VALIDATION_ERROR, got %v", months, err)
		}
	}
}

func TestGetHistoricalBuildsMonthlyPoints(t *testing.T) {
	client := connectedClient("acme", enums.PlatformSearchAds)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": client}}
	adapter := &stubAdapter{platform: enums.PlatformSearchAds, metrics: platforms.Metrics{Impressions: 100, Clicks: 10}}
	factory := &stubFactory{adapters: map[enums.Platform]platforms.Adapter{enums.PlatformSearchAds: adapter}}
	clock := &fakeClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	resp, err := svc.GetHistorical(context.Background(), "acme", 3)
	if err != nil {
		t.Fatalf("historical: %v", err)
	}
	if len(resp.Months) != 3 {
		t.Fatalf("expected 3 points, got %d", len(resp.Months))
	}
	want := []string{"2025-03", "2025-02", "2025-01"}
	for i, point := range resp.Months {
		if point.Month != want[i] {
			t.Errorf("point %d: expected month %s, got %s", i, want[i], point.Month)
		}
		if point.Summary.TotalImpressions != 100 {
			t.Errorf("point %d: unexpected summary %+v", i, point.Summary)
		}
	}
}

func TestGetOverviewRollsUpActiveClients(t *testing.T) {
	acme := connectedClient("acme", enums.PlatformSearchAds)
	globex := connectedClient("globex", enums.PlatformSearchAds)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": acme, "globex": globex}}
	adapter := &stubAdapter{platform: enums.PlatformSearchAds, metrics: platforms.Metrics{Impressions: 100, Clicks: 10, Cost: 5, Conversions: 1}}
	factory := &stubFactory{adapters: map[enums.Platform]platforms.Adapter{enums.PlatformSearchAds: adapter}}
	clock := &fakeClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	resp, err := svc.GetOverview(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(resp.Clients) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Clients))
	}
	if resp.Totals.TotalImpressions != 200 || resp.Totals.TotalClicks != 20 {
		t.Fatalf("unexpected roll-up totals: %+v", resp.Totals)
	}
	if resp.From != "2025-03-01" {
		t.Fatalf("expected month-to-date window, got from=%s", resp.From)
	}
}

func TestGetAnalyticsReturnsTrafficView(t *testing.T) {
	client := connectedClient("acme", enums.PlatformAnalytics)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": client}}
	adapter := &stubAdapter{
		platform:  enums.PlatformAnalytics,
		metrics:   platforms.Metrics{Impressions: 5000, Clicks: 2000, Conversions: 80},
		campaigns: []platforms.Campaign{{ID: "spring-sale", Name: "spring-sale"}},
	}
	factory := &stubFactory{adapters: map[enums.Platform]platforms.Adapter{enums.PlatformAnalytics: adapter}}
	clock := &fakeClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	resp, err := svc.GetAnalytics(context.Background(), "acme", testRange())
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if resp.Slug != "acme" || resp.From != "2025-01-01" || resp.To != "2025-01-31" {
		t.Fatalf("unexpected response shape: %+v", resp)
	}
	if resp.Metrics.Impressions != 5000 || resp.Metrics.Clicks != 2000 {
		t.Fatalf("unexpected metrics: %+v", resp.Metrics)
	}
	if len(resp.Campaigns) != 1 || resp.Campaigns[0].ID != "spring-sale" {
		t.Fatalf("unexpected campaigns: %+v", resp.Campaigns)
	}

	if _, err := svc.GetAnalytics(context.Background(), "acme", testRange()); err != nil {
		t.Fatalf("second analytics call: %v", err)
	}
	if adapter.calls != 1 {
		t.Fatalf("expected cached second read, adapter called %d times", adapter.calls)
	}
}

func TestGetAnalyticsMissingConnectionSurfaces(t *testing.T) {
	client := connectedClient("acme", enums.PlatformSearchAds)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": client}}
	factory := &stubFactory{}
	clock := &fakeClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	_, err := svc.GetAnalytics(context.Background(), "acme", testRange())
	if !pkgerrors.HasCode(err, pkgerrors.CodeCredentialMissing) {
		t.Fatalf("expected CREDENTIAL_MISSING, got %v", err)
	}
}

func TestGetAnalyticsFailurePropagates(t *testing.T) {
	client := connectedClient("acme", enums.PlatformAnalytics)
	clientSvc := &stubClients{clients: map[string]*models.Client{"acme": client}}
	adapter := &stubAdapter{platform: enums.PlatformAnalytics, err: pkgerrors.New(pkgerrors.CodeAuth, "token exchange failed")}
	factory := &stubFactory{adapters: map[enums.Platform]platforms.Adapter{enums.PlatformAnalytics: adapter}}
	clock := &fakeClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clientSvc, factory, clock)

	_, err := svc.GetAnalytics(context.Background(), "acme", testRange())
	if !pkgerrors.HasCode(err, pkgerrors.CodeAuth) {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
}
