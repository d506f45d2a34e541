// Package metaads implements the social-ads platform adapter on top of the
// Meta Marketing API.
package metaads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
	"github.com/atlasmedia/adboard-backend/pkg/platforms"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v19.0"

	insightsFields = "impressions,clicks,spend,actions"
	campaignFields = "id,name,effective_status,insights.fields(impressions,clicks,spend,actions)"
)

var (
	errAccountIDRequired = errors.New("meta ad account ID is required")
	errTokenRequired     = errors.New("meta access token is required")
)

// defaultConversionActions are the graph action types counted as
// conversions when no custom set is configured.
var defaultConversionActions = []string{
	"offsite_conversion",
	"purchase",
	"lead",
	"complete_registration",
}

// Credentials is the long-lived secret bundle for one client's Meta ad
// account. Meta long-lived tokens are used directly, no exchange step.
type Credentials struct {
	AccessToken string `json:"accessToken"`
	AppSecret   string `json:"appSecret,omitempty"`
}

// Adapter talks to the Meta graph insights API for a single ad account.
type Adapter struct {
	httpClient        *http.Client
	baseURL           string
	accountID         string
	creds             Credentials
	conversionActions map[string]struct{}
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

// WithBaseURL overrides the graph API base URL.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			a.baseURL = trimmed
		}
	}
}

// WithConversionActions overrides which graph action types count toward
// the conversions metric. Empty entries are dropped; an empty list keeps
// the default set.
func WithConversionActions(actionTypes []string) Option {
	return func(a *Adapter) {
		if set := actionSet(actionTypes); len(set) > 0 {
			a.conversionActions = set
		}
	}
}

func actionSet(actionTypes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(actionTypes))
	for _, actionType := range actionTypes {
		trimmed := strings.TrimSpace(actionType)
		if trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return set
}

// New builds an adapter scoped to one ad account. The account ID is stored
// without the act_ prefix and prefixed on request.
func New(accountID string, creds Credentials, opts ...Option) (*Adapter, error) {
	trimmedID := strings.TrimPrefix(strings.TrimSpace(accountID), "act_")
	if trimmedID == "" {
		return nil, errAccountIDRequired
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		return nil, errTokenRequired
	}

	adapter := &Adapter{
		httpClient:        &http.Client{Timeout: 20 * time.Second},
		baseURL:           defaultBaseURL,
		accountID:         trimmedID,
		creds:             creds,
		conversionActions: actionSet(defaultConversionActions),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter, nil
}

// Platform reports the platform this adapter serves.
func (a *Adapter) Platform() enums.Platform {
	return enums.PlatformSocialAds
}

// TestConnection fetches the ad account node to prove the token grants
// access.
func (a *Adapter) TestConnection(ctx context.Context) error {
	params := url.Values{"fields": {"id,account_status"}}
	var node struct {
		ID string `json:"id"`
	}
	return a.get(ctx, "act_"+a.accountID, params, &node)
}

// SummaryMetrics returns account-level insights for the range.
func (a *Adapter) SummaryMetrics(ctx context.Context, rng platforms.DateRange) (platforms.Metrics, error) {
	params := url.Values{
		"fields":     {insightsFields},
		"time_range": {timeRange(rng)},
		"level":      {"account"},
	}

	var payload struct {
		Data []insightsRow `json:"data"`
	}
	if err := a.get(ctx, "act_"+a.accountID+"/insights", params, &payload); err != nil {
		return platforms.Metrics{}, err
	}

	rows := make([]platforms.Metrics, 0, len(payload.Data))
	for _, row := range payload.Data {
		m, err := row.normalized(a.conversionActions)
		if err != nil {
			return platforms.Metrics{}, err
		}
		rows = append(rows, m)
	}
	return platforms.Sum(rows), nil
}

// Campaigns returns per-campaign rows with nested insights for the range.
func (a *Adapter) Campaigns(ctx context.Context, rng platforms.DateRange) ([]platforms.Campaign, error) {
	params := url.Values{
		"fields":     {campaignFields},
		"time_range": {timeRange(rng)},
		"limit":      {"100"},
	}

	var payload struct {
		Data []struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			EffectiveStatus string `json:"effective_status"`
			Insights        struct {
				Data []insightsRow `json:"data"`
			} `json:"insights"`
		} `json:"data"`
	}
	if err := a.get(ctx, "act_"+a.accountID+"/campaigns", params, &payload); err != nil {
		return nil, err
	}

	campaigns := make([]platforms.Campaign, 0, len(payload.Data))
	for _, row := range payload.Data {
		rows := make([]platforms.Metrics, 0, len(row.Insights.Data))
		for _, insight := range row.Insights.Data {
			m, err := insight.normalized(a.conversionActions)
			if err != nil {
				return nil, err
			}
			rows = append(rows, m)
		}
		campaigns = append(campaigns, platforms.Campaign{
			ID:      row.ID,
			Name:    row.Name,
			Status:  mapStatus(row.EffectiveStatus),
			Metrics: platforms.Sum(rows),
		})
	}
	return campaigns, nil
}

// insightsRow mirrors one graph insights record. Meta serializes every
// numeric field as a string.
type insightsRow struct {
	Impressions string `json:"impressions"`
	Clicks      string `json:"clicks"`
	Spend       string `json:"spend"`
	Actions     []struct {
		ActionType string `json:"action_type"`
		Value      string `json:"value"`
	} `json:"actions"`
}

func (r insightsRow) normalized(conversionActions map[string]struct{}) (platforms.Metrics, error) {
	impressions, err := parseNumber(r.Impressions, "impressions")
	if err != nil {
		return platforms.Metrics{}, err
	}
	clicks, err := parseNumber(r.Clicks, "clicks")
	if err != nil {
		return platforms.Metrics{}, err
	}
	spend, err := parseNumber(r.Spend, "spend")
	if err != nil {
		return platforms.Metrics{}, err
	}

	var conversions float64
	for _, action := range r.Actions {
		if _, ok := conversionActions[action.ActionType]; !ok {
			continue
		}
		v, err := parseNumber(action.Value, "action "+action.ActionType)
		if err != nil {
			return platforms.Metrics{}, err
		}
		conversions += v
	}

	return platforms.Metrics{
		Impressions: impressions,
		Clicks:      clicks,
		Cost:        spend,
		Conversions: conversions,
	}, nil
}

func (a *Adapter) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("access_token", a.creds.AccessToken)
	endpoint := fmt.Sprintf("%s/%s?%s", strings.TrimRight(a.baseURL, "/"), strings.TrimLeft(path, "/"), params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeAPI, err, "build graph request")
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return platforms.TransportError(a.Platform(), err, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// A rejected long-lived token cannot be refreshed server-side; the
		// client must reconnect with a new one.
		return pkgerrors.New(pkgerrors.CodeAuth, fmt.Sprintf("%s access token rejected", a.Platform())).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
	if resp.StatusCode != http.StatusOK {
		return platforms.APIError(a.Platform(), resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeAPI, err, "decode graph response")
	}
	return nil
}

func parseNumber(raw, field string) (float64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeAPI, err, fmt.Sprintf("parse %s value", field))
	}
	return v, nil
}

func timeRange(rng platforms.DateRange) string {
	return fmt.Sprintf(`{"since":"%s","until":"%s"}`, rng.FromString(), rng.ToString())
}

func mapStatus(status string) enums.CampaignStatus {
	switch status {
	case "ACTIVE":
		return enums.CampaignStatusActive
	case "PAUSED", "CAMPAIGN_PAUSED", "ADSET_PAUSED":
		return enums.CampaignStatusPaused
	case "ARCHIVED", "DELETED":
		return enums.CampaignStatusCompleted
	default:
		return enums.CampaignStatusPaused
	}
}
