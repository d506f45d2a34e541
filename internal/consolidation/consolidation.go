// Package consolidation merges heterogeneous platform outputs and local
// campaign records into one dashboard summary with weighted-average
// semantics.
package consolidation

import (
	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
	"github.com/atlasmedia/adboard-backend/pkg/platforms"
)

// Outcome classifies one platform's contribution to a summary.
type Outcome string

const (
	// OutcomeOK means the platform returned metrics that were merged in.
	OutcomeOK Outcome = "ok"
	// OutcomeFailed means the call failed (timeout, auth, upstream
	// rejection) and contributed nothing.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the platform is not connected for the client.
	OutcomeSkipped Outcome = "skipped"
)

// Source is one platform's result, consumed uniformly regardless of outcome.
type Source struct {
	Platform enums.Platform
	Outcome  Outcome
	Metrics  platforms.Metrics
	Reason   string
}

// OK wraps a successful platform fetch.
func OK(platform enums.Platform, metrics platforms.Metrics) Source {
	return Source{Platform: platform, Outcome: OutcomeOK, Metrics: metrics}
}

// Failed marks a platform whose call failed, with the reason kept for the
// response.
func Failed(platform enums.Platform, reason string) Source {
	return Source{Platform: platform, Outcome: OutcomeFailed, Reason: reason}
}

// Skipped marks a platform the client has not connected.
func Skipped(platform enums.Platform) Source {
	return Source{Platform: platform, Outcome: OutcomeSkipped}
}

// DataSource flags which platforms successfully contributed to a summary.
type DataSource struct {
	SearchAds bool `json:"searchAds"`
	SocialAds bool `json:"socialAds"`
	Analytics bool `json:"analytics"`
}

// Summary is the canonical consolidated shape. The total*/avg* fields are a
// compatibility view for older consumers; they are computed from the same
// sums as Metrics and always agree with it.
type Summary struct {
	Metrics platforms.Metrics `json:"metrics"`

	TotalImpressions  float64 `json:"totalImpressions"`
	TotalClicks       float64 `json:"totalClicks"`
	TotalCost         float64 `json:"totalCost"`
	TotalConversions  float64 `json:"totalConversions"`
	AvgCTR            float64 `json:"avgCtr"`
	AvgCPC            float64 `json:"avgCpc"`
	AvgCPM            float64 `json:"avgCpm"`
	AvgConversionRate float64 `json:"avgConversionRate"`
	AvgROAS           float64 `json:"avgRoas"`

	DataSource DataSource        `json:"dataSource"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// Consolidate sums countable fields across every available source plus the
// local records, then re-derives all ratios from the sums. The result is
// independent of source order.
func Consolidate(sources []Source, local []models.Campaign) Summary {
	var total platforms.Metrics
	var data DataSource
	var failures map[string]string

	for _, src := range sources {
		switch src.Outcome {
		case OutcomeOK:
			total.Impressions += src.Metrics.Impressions
			total.Clicks += src.Metrics.Clicks
			total.Cost += src.Metrics.Cost
			total.Conversions += src.Metrics.Conversions
			setFlag(&data, src.Platform)
		case OutcomeFailed:
			if failures == nil {
				failures = make(map[string]string)
			}
			failures[src.Platform.String()] = src.Reason
		}
	}

	for _, campaign := range local {
		total.Impressions += float64(campaign.Impressions)
		total.Clicks += float64(campaign.Clicks)
		total.Cost += campaign.Cost.InexactFloat64()
		total.Conversions += float64(campaign.Conversions)
	}

	total = total.WithDerived()
	return Summary{
		Metrics:           total,
		TotalImpressions:  total.Impressions,
		TotalClicks:       total.Clicks,
		TotalCost:         total.Cost,
		TotalConversions:  total.Conversions,
		AvgCTR:            total.CTR,
		AvgCPC:            total.CPC,
		AvgCPM:            total.CPM,
		AvgConversionRate: total.ConversionRate,
		AvgROAS:           total.ROAS,
		DataSource:        data,
		Failures:          failures,
	}
}

func setFlag(data *DataSource, platform enums.Platform) {
	switch platform {
	case enums.PlatformSearchAds:
		data.SearchAds = true
	case enums.PlatformSocialAds:
		data.SocialAds = true
	case enums.PlatformAnalytics:
		data.Analytics = true
	}
}
