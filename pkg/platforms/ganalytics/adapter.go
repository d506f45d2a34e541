// Package ganalytics implements the analytics platform adapter on top of the
// GA4 Data API with a service-account JWT-bearer grant.
package ganalytics

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
	"github.com/atlasmedia/adboard-backend/pkg/platforms"
)

const (
	defaultBaseURL  = "https://analyticsdata.googleapis.com/v1beta"
	defaultTokenURL = "https://oauth2.googleapis.com/token"

	readonlyScope  = "https://www.googleapis.com/auth/analytics.readonly"
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	assertionLifetime = time.Hour
)

var (
	errPropertyIDRequired = errors.New("analytics property ID is required")
	errServiceAccountKey  = errors.New("analytics service account email and private key are required")
)

// Credentials is the service-account bundle for one client's GA4 property.
type Credentials struct {
	ClientEmail string `json:"clientEmail"`
	PrivateKey  string `json:"privateKey"`
}

// TrafficSummary is the native GA4 shape before normalization.
type TrafficSummary struct {
	Sessions    float64 `json:"sessions"`
	TotalUsers  float64 `json:"totalUsers"`
	PageViews   float64 `json:"pageViews"`
	Conversions float64 `json:"conversions"`
}

// Adapter talks to the GA4 Data API for a single property.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	tokenURL   string
	propertyID string
	creds      Credentials
	signingKey *rsa.PrivateKey
	tokens     *platforms.TokenSource
	now        func() time.Time
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

// WithBaseURL overrides the GA4 Data API base URL.
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
// connection.
func WithTokenSource(src *platforms.TokenSource) Option {
	return func(a *Adapter) {
		if src != nil {
			a.tokens = src
		}
	}
}

// WithClock overrides the time source used for assertion claims, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// New builds an adapter scoped to one GA4 property. The private key is parsed
// once here so a malformed bundle fails at construction, not per request.
func New(propertyID string, creds Credentials, opts ...Option) (*Adapter, error) {
	trimmedID := strings.TrimSpace(propertyID)
	if trimmedID == "" {
		return nil, errPropertyIDRequired
	}
	if strings.TrimSpace(creds.ClientEmail) == "" || strings.TrimSpace(creds.PrivateKey) == "" {
		return nil, errServiceAccountKey
	}

	signingKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	adapter := &Adapter{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    defaultBaseURL,
		tokenURL:   defaultTokenURL,
		propertyID: trimmedID,
		creds:      creds,
		signingKey: signingKey,
		now:        time.Now,
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

// TokenFunc exposes the JWT-bearer exchange so a shared source can be built
// around this adapter's credentials.
func (a *Adapter) TokenFunc() platforms.TokenFunc {
	return a.exchangeToken
}

// Platform reports the platform this adapter serves.
func (a *Adapter) Platform() enums.Platform {
	return enums.PlatformAnalytics
}

// TestConnection runs a one-day report to prove both the grant and property
// access.
func (a *Adapter) TestConnection(ctx context.Context) error {
	today := a.now().UTC().Format("2006-01-02")
	_, err := a.runReport(ctx, reportRequest{
		DateRanges: []reportDateRange{{StartDate: today, EndDate: today}},
		Metrics:    []reportMetric{{Name: "sessions"}},
		Limit:      "1",
	})
	return err
}

// TrafficSummary returns the native GA4 aggregate for the range.
func (a *Adapter) TrafficSummary(ctx context.Context, rng platforms.DateRange) (TrafficSummary, error) {
	resp, err := a.runReport(ctx, summaryRequest(rng))
	if err != nil {
		return TrafficSummary{}, err
	}

	var summary TrafficSummary
	for _, row := range resp.Rows {
		if len(row.MetricValues) < 4 {
			continue
		}
		sessions, err := metricValue(row.MetricValues[0])
		if err != nil {
			return TrafficSummary{}, err
		}
		users, err := metricValue(row.MetricValues[1])
		if err != nil {
			return TrafficSummary{}, err
		}
		pageViews, err := metricValue(row.MetricValues[2])
		if err != nil {
			return TrafficSummary{}, err
		}
		conversions, err := metricValue(row.MetricValues[3])
		if err != nil {
			return TrafficSummary{}, err
		}
		summary.Sessions += sessions
		summary.TotalUsers += users
		summary.PageViews += pageViews
		summary.Conversions += conversions
	}
	return summary, nil
}

// SummaryMetrics maps the traffic summary into the shared shape: page views
// count as impressions, sessions as clicks; analytics carries no spend.
func (a *Adapter) SummaryMetrics(ctx context.Context, rng platforms.DateRange) (platforms.Metrics, error) {
	summary, err := a.TrafficSummary(ctx, rng)
	if err != nil {
		return platforms.Metrics{}, err
	}
	return platforms.Metrics{
		Impressions: summary.PageViews,
		Clicks:      summary.Sessions,
		Conversions: summary.Conversions,
	}.WithDerived(), nil
}

// Campaigns breaks the report down by session campaign name. GA4 campaigns
// have no native status; rows with traffic in range count as active.
func (a *Adapter) Campaigns(ctx context.Context, rng platforms.DateRange) ([]platforms.Campaign, error) {
	req := summaryRequest(rng)
	req.Dimensions = []reportDimension{{Name: "sessionCampaignName"}}

	resp, err := a.runReport(ctx, req)
	if err != nil {
		return nil, err
	}

	campaigns := make([]platforms.Campaign, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row.DimensionValues) == 0 || len(row.MetricValues) < 4 {
			continue
		}
		name := row.DimensionValues[0].Value
		if name == "" || name == "(not set)" || name == "(direct)" {
			continue
		}
		sessions, err := metricValue(row.MetricValues[0])
		if err != nil {
			return nil, err
		}
		pageViews, err := metricValue(row.MetricValues[2])
		if err != nil {
			return nil, err
		}
		conversions, err := metricValue(row.MetricValues[3])
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, platforms.Campaign{
			ID:     name,
			Name:   name,
			Status: enums.CampaignStatusActive,
			Metrics: platforms.Metrics{
				Impressions: pageViews,
				Clicks:      sessions,
				Conversions: conversions,
			}.WithDerived(),
		})
	}
	return campaigns, nil
}

type reportRequest struct {
	DateRanges []reportDateRange `json:"dateRanges"`
	Metrics    []reportMetric    `json:"metrics"`
	Dimensions []reportDimension `json:"dimensions,omitempty"`
	Limit      string            `json:"limit,omitempty"`
}

type reportDateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type reportMetric struct {
	Name string `json:"name"`
}

type reportDimension struct {
	Name string `json:"name"`
}

type reportCell struct {
	Value string `json:"value"`
}

type reportResponse struct {
	Rows []struct {
		DimensionValues []reportCell `json:"dimensionValues"`
		MetricValues    []reportCell `json:"metricValues"`
	} `json:"rows"`
}

func summaryRequest(rng platforms.DateRange) reportRequest {
	return reportRequest{
		DateRanges: []reportDateRange{{StartDate: rng.FromString(), EndDate: rng.ToString()}},
		Metrics: []reportMetric{
			{Name: "sessions"},
			{Name: "totalUsers"},
			{Name: "screenPageViews"},
			{Name: "conversions"},
		},
	}
}

func (a *Adapter) runReport(ctx context.Context, req reportRequest) (*reportResponse, error) {
	accessToken, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAPI, err, "marshal report request")
	}

	endpoint := fmt.Sprintf("%s/properties/%s:runReport", strings.TrimRight(a.baseURL, "/"), url.PathEscape(a.propertyID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAPI, err, "build report request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, platforms.TransportError(a.Platform(), err, "runReport")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, platforms.APIError(a.Platform(), resp)
	}

	var report reportResponse
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAPI, err, "decode report response")
	}
	return &report, nil
}

func (a *Adapter) exchangeToken(ctx context.Context) (platforms.Token, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iss":   a.creds.ClientEmail,
		"scope": readonlyScope,
		"aud":   a.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.signingKey)
	if err != nil {
		return platforms.Token{}, fmt.Errorf("sign assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
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

func metricValue(v reportCell) (float64, error) {
	if strings.TrimSpace(v.Value) == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeAPI, err, "parse metric value")
	}
	return parsed, nil
}
