// Package googleads implements the search-ads platform adapter on top of the
// Google Ads REST API.
package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
	"github.com/atlasmedia/adboard-backend/pkg/platforms"
)

const (
	defaultBaseURL  = "https://googleads.googleapis.com/v17"
	defaultTokenURL = "https://oauth2.googleapis.com/token"

	summaryQuery = "SELECT metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions FROM campaign WHERE segments.date BETWEEN '%s' AND '%s'"

	campaignsQuery = "SELECT campaign.id, campaign.name, campaign.status, metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions FROM campaign WHERE segments.date BETWEEN '%s' AND '%s'"
)

var (
	errCustomerIDRequired = errors.New("google ads customer ID is required")
	errCredentialsMissing = errors.New("google ads oauth credentials are required")
)

// Credentials is the long-lived secret bundle for one client's Google Ads
// account. The refresh token is exchanged per call batch, never sent to the
// reporting endpoint itself.
type Credentials struct {
	DeveloperToken string `json:"developerToken"`
	ClientID       string `json:"clientId"`
	ClientSecret   string `json:"clientSecret"`
	RefreshToken   string `json:"refreshToken"`
}

// Adapter talks to the Google Ads reporting API for a single customer.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	tokenURL   string
	customerID string
	creds      Credentials
	tokens     *platforms.TokenSource
}

// Option configures optional adapter behavior.
type Option func(*Adapter)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithBaseURL overrides the Google Ads API base URL.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			a.baseURL = trimmed
		}
	}
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(a *Adapter) {
		trimmed := strings.TrimSpace(tokenURL)
		if trimmed != "" {
			a.tokenURL = trimmed
		}
	}
}

// WithTokenSource shares a token source across adapters for the same
// connection, so concurrent dashboard calls reuse one access token.
func WithTokenSource(src *platforms.TokenSource) Option {
	return func(a *Adapter) {
		if src != nil {
			a.tokens = src
		}
	}
}

// New builds an adapter scoped to one customer account.
func New(customerID string, creds Credentials, opts ...Option) (*Adapter, error) {
	trimmedID := strings.TrimSpace(customerID)
	if trimmedID == "" {
		return nil, errCustomerIDRequired
	}
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		return nil, errCredentialsMissing
	}

	adapter := &Adapter{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    defaultBaseURL,
		tokenURL:   defaultTokenURL,
		customerID: trimmedID,
		creds:      creds,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	if adapter.tokens == nil {
		adapter.tokens = platforms.NewTokenSource(adapter.exchangeToken)
	}
	return adapter, nil
}

// TokenFunc exposes the refresh-token exchange so a shared source can be
// built around this adapter's credentials.
func (a *Adapter) TokenFunc() platforms.TokenFunc {
	return a.exchangeToken
}

// Platform reports the platform this adapter serves.
func (a *Adapter) Platform() enums.Platform {
	return enums.PlatformSearchAds
}

// TestConnection exchanges the refresh token and runs a minimal query to
// prove both auth and account access.
func (a *Adapter) TestConnection(ctx context.Context) error {
	query := "SELECT customer.id FROM customer LIMIT 1"
	_, err := a.search(ctx, query)
	return err
}

// SummaryMetrics returns account-level totals for the range.
func (a *Adapter) SummaryMetrics(ctx context.Context, rng platforms.DateRange) (platforms.Metrics, error) {
	rows, err := a.search(ctx, fmt.Sprintf(summaryQuery, rng.FromString(), rng.ToString()))
	if err != nil {
		return platforms.Metrics{}, err
	}

	metrics := make([]platforms.Metrics, 0, len(rows))
	for _, row := range rows {
		metrics = append(metrics, row.Metrics.normalized())
	}
	return platforms.Sum(metrics), nil
}

// Campaigns returns per-campaign rows for the range.
func (a *Adapter) Campaigns(ctx context.Context, rng platforms.DateRange) ([]platforms.Campaign, error) {
	rows, err := a.search(ctx, fmt.Sprintf(campaignsQuery, rng.FromString(), rng.ToString()))
	if err != nil {
		return nil, err
	}

	campaigns := make([]platforms.Campaign, 0, len(rows))
	for _, row := range rows {
		campaigns = append(campaigns, platforms.Campaign{
			ID:      row.Campaign.ID,
			Name:    row.Campaign.Name,
			Status:  mapStatus(row.Campaign.Status),
			Metrics: row.Metrics.normalized().WithDerived(),
		})
	}
	return campaigns, nil
}

type searchRow struct {
	Campaign struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"campaign"`
	Metrics apiMetrics `json:"metrics"`
}

type apiMetrics struct {
	Impressions float64 `json:"impressions,string"`
	Clicks      float64 `json:"clicks,string"`
	CostMicros  float64 `json:"costMicros,string"`
	Conversions float64 `json:"conversions"`
}

// normalized converts API units into the shared shape; cost arrives in
// micros.
func (m apiMetrics) normalized() platforms.Metrics {
	return platforms.Metrics{
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Cost:        m.CostMicros / 1e6,
		Conversions: m.Conversions,
	}
}

func (a *Adapter) search(ctx context.Context, query string) ([]searchRow, error) {
	rows, err := a.searchOnce(ctx, query)
	if pkgerrors.HasCode(err, pkgerrors.CodeAPI) && isUnauthorized(err) {
		// The cached token may have been revoked upstream; re-acquire once.
		a.tokens.Invalidate()
		rows, err = a.searchOnce(ctx, query)
	}
	return rows, err
}

func (a *Adapter) searchOnce(ctx context.Context, query string) ([]searchRow, error) {
	accessToken, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAPI, err, "marshal search request")
	}

	endpoint := fmt.Sprintf("%s/customers/%s/googleAds:search", strings.TrimRight(a.baseURL, "/"), url.PathEscape(a.customerID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAPI, err, "build search request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("developer-token", a.creds.DeveloperToken)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, platforms.TransportError(a.Platform(), err, "search")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, platforms.APIError(a.Platform(), resp)
	}

	var apiResp struct {
		Results []searchRow `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAPI, err, "decode search response")
	}
	return apiResp.Results, nil
}

func (a *Adapter) exchangeToken(ctx context.Context) (platforms.Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {a.creds.ClientID},
		"client_secret": {a.creds.ClientSecret},
		"refresh_token": {a.creds.RefreshToken},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return platforms.Token{}, fmt.Errorf("build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return platforms.Token{}, fmt.Errorf("execute token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return platforms.Token{}, fmt.Errorf("token endpoint status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return platforms.Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return platforms.Token{}, errors.New("token response missing access_token")
	}

	return platforms.Token{
		Value:    tokenResp.AccessToken,
		Lifetime: time.Duration(tokenResp.ExpiresIn) * time.Second,
	}, nil
}

func mapStatus(status string) enums.CampaignStatus {
	switch status {
	case "ENABLED":
		return enums.CampaignStatusActive
	case "PAUSED":
		return enums.CampaignStatusPaused
	case "REMOVED", "ENDED":
		return enums.CampaignStatusCompleted
	default:
		return enums.CampaignStatusPaused
	}
}

func isUnauthorized(err error) bool {
	apiErr := pkgerrors.As(err)
	if apiErr == nil {
		return false
	}
	details, ok := apiErr.Details().(map[string]any)
	if !ok {
		return false
	}
	status, ok := details["status"].(int)
	return ok && status == http.StatusUnauthorized
}
