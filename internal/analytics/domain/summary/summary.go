// Package summary rolls fault flags up into per-type statistics, losses and ranked actions.
package summary

import (
	"sort"
	"time"

	"hvac-insight/internal/analytics/domain/rules"
)

// Severity bands for a ranked action.
const (
	SeverityHigh   = "High"
	SeverityMedium = "Medium"
	SeverityLow    = "Low"
)

// TypeSummary aggregates the flags of one fault type.
type TypeSummary struct {
	FaultType         rules.FaultType `json:"fault_type"`
	Label             string          `json:"label"`
	Available         bool            `json:"available"`
	Evaluated         int             `json:"evaluated"`
	Count             int             `json:"count"`
	Assets            int             `json:"assets"`
	Hours             float64         `json:"hours"`
	TotalCost         float64         `json:"total_cost"`
	EnergyKWh         float64         `json:"energy_kwh"`
	CarbonKg          float64         `json:"carbon_kg"`
	AvgDeviation      float64         `json:"avg_deviation"`
	DeviationUnit     string          `json:"deviation_unit,omitempty"`
	MonthlyProjection float64         `json:"monthly_projection"`
	TrendRecent       int             `json:"trend_recent"`
}

// Wallboard holds distinct-asset counts for the headline tiles.
type Wallboard struct {
	GhostRunningAssets int `json:"ghost_running_assets"`
	ZonesOvercooled    int `json:"zones_overcooled"`
	AHUsWasting        int `json:"ahus_wasting"`
	ChillersLowDeltaT  int `json:"chillers_low_delta_t"`
}

// Report is the point-in-time roll-up of one cycle.
type Report struct {
	Date              time.Time     `json:"date"`
	LatestAt          time.Time     `json:"latest_at"`
	TotalCost         float64       `json:"total_cost"`
	EnergyKWh         float64       `json:"energy_kwh"`
	CarbonKg          float64       `json:"carbon_kg"`
	MonthlyProjection float64       `json:"monthly_projection"`
	Last24h           float64       `json:"last_24h"`
	Previous24h       float64       `json:"previous_24h"`
	Types             []TypeSummary `json:"types"`
	TopActions        []Action      `json:"top_actions"`
	TopAssets         []AssetTotal  `json:"top_assets"`
	Wallboard         Wallboard     `json:"wallboard"`
}

// Type returns the summary of one fault type.
func (r Report) Type(faultType rules.FaultType) (TypeSummary, bool) {
	for _, summary := range r.Types {
		if summary.FaultType == faultType {
			return summary, true
		}
	}
	return TypeSummary{}, false
}

// MarkUnavailable flags fault types that could not be evaluated this cycle.
func (r *Report) MarkUnavailable(types ...rules.FaultType) {
	if r == nil {
		return
	}
	for i := range r.Types {
		for _, faultType := range types {
			if r.Types[i].FaultType == faultType {
				r.Types[i].Available = false
			}
		}
	}
}

// Severity bands a cost against the configured thresholds.
func Severity(cost float64, cfg rules.ThresholdConfig) string {
	switch {
	case cost >= cfg.SeverityHigh:
		return SeverityHigh
	case cost >= cfg.SeverityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Summarize builds the report for the given flags. Empty input yields an all-zero report.
func Summarize(flags []rules.FaultFlag, cfg rules.ThresholdConfig) Report {
	report := Report{Types: make([]TypeSummary, 0, len(rules.FaultTypes))}
	byType := make(map[rules.FaultType][]rules.FaultFlag)
	for _, flag := range flags {
		byType[flag.FaultType] = append(byType[flag.FaultType], flag)
		if flag.At.After(report.LatestAt) {
			report.LatestAt = flag.At
		}
	}

	for _, faultType := range rules.FaultTypes {
		summary := summarizeType(faultType, byType[faultType], cfg)
		report.Types = append(report.Types, summary)
		report.TotalCost += summary.TotalCost
		report.EnergyKWh += summary.EnergyKWh
		report.CarbonKg += summary.CarbonKg
	}
	report.MonthlyProjection = report.TotalCost * float64(cfg.ProjectionDays)

	if !report.LatestAt.IsZero() {
		report.Date = dayStart(report.LatestAt)
		dayAgo := report.LatestAt.Add(-24 * time.Hour)
		twoDaysAgo := report.LatestAt.Add(-48 * time.Hour)
		for _, flag := range flags {
			if !flag.IsFault {
				continue
			}
			switch {
			case flag.At.After(dayAgo):
				report.Last24h += flag.EstimatedCost
			case flag.At.After(twoDaysAgo):
				report.Previous24h += flag.EstimatedCost
			}
		}
	}

	report.Wallboard = Wallboard{
		GhostRunningAssets: distinctAssets(flags, rules.GhostRunning),
		ZonesOvercooled:    distinctAssets(flags, rules.Overcooling, rules.ZoneOvercool),
		AHUsWasting:        distinctAssets(flags, rules.AHUExcessAirflow),
		ChillersLowDeltaT:  distinctAssets(flags, rules.ChillerLowDeltaT),
	}
	report.TopActions = RankActions(flags, cfg)
	report.TopAssets = RankAssets(flags, cfg.TopActions)
	return report
}

func summarizeType(faultType rules.FaultType, flags []rules.FaultFlag, cfg rules.ThresholdConfig) TypeSummary {
	summary := TypeSummary{
		FaultType: faultType,
		Label:     faultType.Label(),
		Available: true,
		Evaluated: len(flags),
	}
	assets := make(map[string]struct{})
	deviation := 0.0
	for _, flag := range flags {
		if !flag.IsFault {
			continue
		}
		summary.Count++
		summary.Hours += flag.BucketHours
		summary.TotalCost += flag.EstimatedCost
		summary.EnergyKWh += flag.EnergyKWh
		summary.CarbonKg += flag.CarbonKg
		summary.DeviationUnit = flag.DeviationUnit
		deviation += flag.Deviation
		assets[flag.AssetID] = struct{}{}
	}
	summary.Assets = len(assets)
	if summary.Count > 0 {
		summary.AvgDeviation = deviation / float64(summary.Count)
	}
	summary.MonthlyProjection = summary.TotalCost * float64(cfg.ProjectionDays)
	summary.TrendRecent = trendRecent(flags, cfg.TrendWindow)
	return summary
}

// trendRecent counts faults among the last n distinct bucket timestamps.
func trendRecent(flags []rules.FaultFlag, n int) int {
	if n <= 0 || len(flags) == 0 {
		return 0
	}
	seen := make(map[int64]struct{})
	var stamps []time.Time
	for _, flag := range flags {
		key := flag.At.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		stamps = append(stamps, flag.At)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	if len(stamps) > n {
		stamps = stamps[len(stamps)-n:]
	}
	cutoff := stamps[0]
	count := 0
	for _, flag := range flags {
		if flag.IsFault && !flag.At.Before(cutoff) {
			count++
		}
	}
	return count
}

func distinctAssets(flags []rules.FaultFlag, types ...rules.FaultType) int {
	assets := make(map[string]struct{})
	for _, flag := range flags {
		if !flag.IsFault {
			continue
		}
		for _, faultType := range types {
			if flag.FaultType == faultType {
				assets[flag.AssetID] = struct{}{}
			}
		}
	}
	return len(assets)
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
