package platforms

import (
	"time"

	"github.com/atlasmedia/adboard-backend/pkg/enums"
)

// Metrics is the normalized performance shape every platform response maps
// into. Countable fields are summed across sources; ratio fields are always
// recomputed from the countables, never passed through or averaged.
type Metrics struct {
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Cost        float64 `json:"cost"`
	Conversions float64 `json:"conversions"`

	CTR            float64 `json:"ctr"`
	CPC            float64 `json:"cpc"`
	CPM            float64 `json:"cpm"`
	ConversionRate float64 `json:"conversionRate"`
	ROAS           float64 `json:"roas"`
}

// WithDerived returns a copy with every ratio recomputed from the countable
// fields. Ratios whose denominator is zero come out as 0, never NaN or Inf.
func (m Metrics) WithDerived() Metrics {
	m.CTR = ratio(m.Clicks, m.Impressions) * 100
	m.CPC = ratio(m.Cost, m.Clicks)
	m.CPM = ratio(m.Cost, m.Impressions) * 1000
	m.ConversionRate = ratio(m.Conversions, m.Clicks) * 100
	m.ROAS = ratio(m.Conversions, m.Cost)
	return m
}

// Add sums the countable fields of both operands and re-derives the ratios.
func (m Metrics) Add(other Metrics) Metrics {
	return Metrics{
		Impressions: m.Impressions + other.Impressions,
		Clicks:      m.Clicks + other.Clicks,
		Cost:        m.Cost + other.Cost,
		Conversions: m.Conversions + other.Conversions,
	}.WithDerived()
}

// Sum aggregates row-level metrics: countables are summed and ratios derived
// once from the totals.
func Sum(rows []Metrics) Metrics {
	var total Metrics
	for _, row := range rows {
		total.Impressions += row.Impressions
		total.Clicks += row.Clicks
		total.Cost += row.Cost
		total.Conversions += row.Conversions
	}
	return total.WithDerived()
}

func ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// Campaign is one platform campaign with its normalized metrics.
type Campaign struct {
	ID      string               `json:"id"`
	Name    string               `json:"name"`
	Status  enums.CampaignStatus `json:"status"`
	Metrics Metrics              `json:"metrics"`
}

// DateRange scopes a platform query. Both bounds are inclusive calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange normalizes the bounds to UTC dates.
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: dayUTC(from), To: dayUTC(to)}
}

// FromString returns the lower bound as YYYY-MM-DD.
func (r DateRange) FromString() string {
	return r.From.Format("2006-01-02")
}

// ToString returns the upper bound as YYYY-MM-DD.
func (r DateRange) ToString() string {
	return r.To.Format("2006-01-02")
}

func dayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
