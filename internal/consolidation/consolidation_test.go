package consolidation

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
	"github.com/atlasmedia/adboard-backend/pkg/platforms"
)

func TestConsolidateSingleSourceScenario(t *testing.T) {
	// One connected platform, the other not: totals equal the connected
	// platform's numbers exactly.
	sources := []Source{
		OK(enums.PlatformSearchAds, platforms.Metrics{
			Impressions: 10000, Clicks: 200, Cost: 500, Conversions: 10,
		}),
		Skipped(enums.PlatformSocialAds),
	}

	summary := Consolidate(sources, nil)

	if summary.TotalImpressions != 10000 || summary.TotalClicks != 200 ||
		summary.TotalCost != 500 || summary.TotalConversions != 10 {
		t.Fatalf("unexpected totals: %+v", summary)
	}
	if summary.AvgCTR != 2.0 {
		t.Fatalf("ctr: expected 2.0, got %v", summary.AvgCTR)
	}
	if summary.AvgCPC != 2.5 {
		t.Fatalf("cpc: expected 2.5, got %v", summary.AvgCPC)
	}
	if summary.AvgROAS != 0.02 {
		t.Fatalf("roas: expected 0.02, got %v", summary.AvgROAS)
	}
	if !summary.DataSource.SearchAds {
		t.Fatal("searchAds flag should be set")
	}
	if summary.DataSource.SocialAds {
		t.Fatal("socialAds flag should not be set for a skipped source")
	}
	if summary.Failures != nil {
		t.Fatalf("skipped source must not register a failure: %+v", summary.Failures)
	}
}

func TestConsolidateIsCommutative(t *testing.T) {
	search := OK(enums.PlatformSearchAds, platforms.Metrics{
		Impressions: 6000, Clicks: 150, Cost: 320.5, Conversions: 7,
	})
	social := OK(enums.PlatformSocialAds, platforms.Metrics{
		Impressions: 4000, Clicks: 50, Cost: 179.5, Conversions: 3,
	})

	forward := Consolidate([]Source{search, social}, nil)
	reversed := Consolidate([]Source{social, search}, nil)

	if !reflect.DeepEqual(forward, reversed) {
		t.Fatalf("order changed the summary:\n%+v\n%+v", forward, reversed)
	}
	if forward.TotalImpressions != 10000 || forward.TotalCost != 500 {
		t.Fatalf("unexpected totals: %+v", forward)
	}
}

func TestConsolidateRatiosAreWeightedNotAveraged(t *testing.T) {
	// Per-source CTRs are 10% and 1%; the consolidated CTR must come from
	// the summed countables, not the mean of the per-source ratios.
	sources := []Source{
		OK(enums.PlatformSearchAds, platforms.Metrics{Impressions: 1000, Clicks: 100}.WithDerived()),
		OK(enums.PlatformSocialAds, platforms.Metrics{Impressions: 10000, Clicks: 100}.WithDerived()),
	}

	summary := Consolidate(sources, nil)
	want := 200.0 / 11000.0 * 100
	if summary.AvgCTR != want {
		t.Fatalf("ctr: expected %v, got %v", want, summary.AvgCTR)
	}
}

func TestConsolidateIncludesLocalRecords(t *testing.T) {
	sources := []Source{
		OK(enums.PlatformSearchAds, platforms.Metrics{Impressions: 500, Clicks: 50, Cost: 25, Conversions: 5}),
	}
	local := []models.Campaign{
		{Impressions: 300, Clicks: 30, Cost: decimal.NewFromFloat(15), Conversions: 3},
		{Impressions: 200, Clicks: 20, Cost: decimal.NewFromFloat(10), Conversions: 2},
	}

	summary := Consolidate(sources, local)
	if summary.TotalImpressions != 1000 || summary.TotalClicks != 100 ||
		summary.TotalCost != 50 || summary.TotalConversions != 10 {
		t.Fatalf("local records not merged: %+v", summary)
	}
}

func TestConsolidateFailedSourceContributesNothing(t *testing.T) {
	sources := []Source{
		OK(enums.PlatformSearchAds, platforms.Metrics{Impressions: 100, Clicks: 10, Cost: 5, Conversions: 1}),
		Failed(enums.PlatformSocialAds, "upstream status 502"),
	}

	summary := Consolidate(sources, nil)
	if summary.TotalImpressions != 100 {
		t.Fatalf("failed source leaked into totals: %+v", summary)
	}
	if summary.DataSource.SocialAds {
		t.Fatal("socialAds flag should not be set for a failed source")
	}
	if summary.Failures["social_ads"] != "upstream status 502" {
		t.Fatalf("expected failure reason recorded, got %+v", summary.Failures)
	}
}

func TestConsolidateEmptyInputs(t *testing.T) {
	summary := Consolidate(nil, nil)
	if summary.TotalImpressions != 0 || summary.AvgCTR != 0 || summary.AvgCPC != 0 || summary.AvgROAS != 0 {
		t.Fatalf("expected all-zero summary, got %+v", summary)
	}
	if summary.DataSource != (DataSource{}) {
		t.Fatalf("expected no data source flags, got %+v", summary.DataSource)
	}
}

func TestCompatibilityViewAgreesWithCanonical(t *testing.T) {
	sources := []Source{
		OK(enums.PlatformSearchAds, platforms.Metrics{Impressions: 1234, Clicks: 56, Cost: 78.9, Conversions: 4}),
		OK(enums.PlatformAnalytics, platforms.Metrics{Impressions: 4321, Clicks: 65}),
	}

	summary := Consolidate(sources, nil)
	m := summary.Metrics
	pairs := []struct {
		name             string
		canonical, extra float64
	}{
		{"impressions", m.Impressions, summary.TotalImpressions},
		{"clicks", m.Clicks, summary.TotalClicks},
		{"cost", m.Cost, summary.TotalCost},
		{"conversions", m.Conversions, summary.TotalConversions},
		{"ctr", m.CTR, summary.AvgCTR},
		{"cpc", m.CPC, summary.AvgCPC},
		{"cpm", m.CPM, summary.AvgCPM},
		{"conversionRate", m.ConversionRate, summary.AvgConversionRate},
		{"roas", m.ROAS, summary.AvgROAS},
	}
	for _, pair := range pairs {
		if pair.canonical != pair.extra {
			t.Errorf("%s: canonical %v != compatibility %v", pair.name, pair.canonical, pair.extra)
		}
	}
	if !summary.DataSource.Analytics {
		t.Fatal("analytics flag should be set")
	}
}
