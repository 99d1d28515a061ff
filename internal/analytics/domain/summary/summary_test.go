package summary

import (
	"testing"
	"time"

	"hvac-insight/internal/analytics/domain/rules"
)

var base = time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)

func fault(faultType rules.FaultType, asset string, offset time.Duration, cost float64) rules.FaultFlag {
	return rules.FaultFlag{
		At:            base.Add(offset),
		AssetID:       asset,
		FaultType:     faultType,
		IsFault:       true,
		EstimatedCost: cost,
		EnergyKWh:     cost / 12,
		CarbonKg:      cost / 12 * 0.71,
		Deviation:     2,
		DeviationUnit: rules.UnitCelsius,
		BucketHours:   1,
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	report := Summarize(nil, rules.Defaults())
	if report.TotalCost != 0 || report.MonthlyProjection != 0 || report.Last24h != 0 || report.Previous24h != 0 {
		t.Fatalf("expected zero totals, got %+v", report)
	}
	if len(report.Types) != len(rules.FaultTypes) {
		t.Fatalf("expected a summary per fault type, got %d", len(report.Types))
	}
	for _, summary := range report.Types {
		if summary.Count != 0 || summary.Assets != 0 || summary.AvgDeviation != 0 || summary.TrendRecent != 0 {
			t.Fatalf("expected zero summary for %s, got %+v", summary.FaultType, summary)
		}
	}
	if report.Wallboard != (Wallboard{}) {
		t.Fatalf("expected zero wallboard, got %+v", report.Wallboard)
	}
	if len(report.TopActions) != 0 {
		t.Fatalf("expected no actions")
	}
}

func TestSummarizeTotalsAndProjection(t *testing.T) {
	flags := []rules.FaultFlag{
		fault(rules.GhostRunning, "ahu-1", 22*time.Hour, 60),
		fault(rules.GhostRunning, "ahu-1", 23*time.Hour, 60),
		fault(rules.GhostRunning, "ahu-2", 23*time.Hour, 60),
		{At: base.Add(12 * time.Hour), AssetID: "ahu-3", FaultType: rules.GhostRunning, Deviation: 9},
	}
	report := Summarize(flags, rules.Defaults())
	ghost, _ := report.Type(rules.GhostRunning)
	if ghost.Count != 3 || ghost.Assets != 2 || ghost.TotalCost != 180 || ghost.Hours != 3 {
		t.Fatalf("unexpected ghost summary %+v", ghost)
	}
	if ghost.AvgDeviation != 2 {
		t.Fatalf("average deviation should only use fault rows, got %v", ghost.AvgDeviation)
	}
	if report.MonthlyProjection != 5400 {
		t.Fatalf("expected projection 5400, got %v", report.MonthlyProjection)
	}
	if report.Wallboard.GhostRunningAssets != 2 {
		t.Fatalf("expected 2 ghost assets, got %d", report.Wallboard.GhostRunningAssets)
	}
	if !report.Date.Equal(base) {
		t.Fatalf("expected report date %s, got %s", base, report.Date)
	}
}

func TestTrendRecentUsesLastDistinctBuckets(t *testing.T) {
	var flags []rules.FaultFlag
	for i := 0; i < 10; i++ {
		flag := fault(rules.Overcooling, "z1", time.Duration(i)*15*time.Minute, 10)
		flag.IsFault = i%2 == 0
		flags = append(flags, flag)
	}
	report := Summarize(flags, rules.Defaults())
	overcool, _ := report.Type(rules.Overcooling)
	// buckets 3..9 are the last seven; faults at 4, 6, 8
	if overcool.TrendRecent != 3 {
		t.Fatalf("expected trend 3, got %d", overcool.TrendRecent)
	}
}

func TestLossWindowsRelativeToLatest(t *testing.T) {
	flags := []rules.FaultFlag{
		fault(rules.ChillerLowDeltaT, "ch-1", 0, 100),
		fault(rules.ChillerLowDeltaT, "ch-1", 20*time.Hour, 200),
		fault(rules.ChillerLowDeltaT, "ch-1", 50*time.Hour, 400),
	}
	report := Summarize(flags, rules.Defaults())
	if report.Last24h != 400 || report.Previous24h != 200 {
		t.Fatalf("expected 400/200, got %v/%v", report.Last24h, report.Previous24h)
	}
}

func TestRankActionsTopKWithTies(t *testing.T) {
	flags := []rules.FaultFlag{
		fault(rules.Overcooling, "z2", 0, 300),
		fault(rules.GhostRunning, "ahu-1", 0, 300),
		fault(rules.Overcooling, "z1", 0, 300),
		fault(rules.ChillerLowDeltaT, "ch-1", 0, 6000),
		fault(rules.ZoneOvercool, "z9", 0, 10),
	}
	actions := RankActions(flags, rules.Defaults())
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	want := []string{"chiller_low_delta_t:ch-1", "ghost_running:ahu-1", "overcooling:z1"}
	for i, id := range want {
		if actions[i].ID != id {
			t.Fatalf("action %d: expected %s, got %s", i, id, actions[i].ID)
		}
	}
	if actions[0].Severity != SeverityHigh || actions[1].Severity != SeverityLow {
		t.Fatalf("unexpected severities %s %s", actions[0].Severity, actions[1].Severity)
	}
	if actions[0].Rule == "" || actions[0].Recommendation == "" || actions[0].Why == "" || actions[0].Evidence == "" {
		t.Fatalf("expected guidance text, got %+v", actions[0])
	}
}

func TestSeverityBands(t *testing.T) {
	cfg := rules.Defaults()
	cases := map[float64]string{0: SeverityLow, 1999: SeverityLow, 2000: SeverityMedium, 4999: SeverityMedium, 5000: SeverityHigh}
	for cost, want := range cases {
		if got := Severity(cost, cfg); got != want {
			t.Fatalf("cost %v: expected %s, got %s", cost, want, got)
		}
	}
}

func TestParseActionID(t *testing.T) {
	faultType, asset, ok := ParseActionID("ahu_excess_airflow:AHU-3:east")
	if !ok || faultType != rules.AHUExcessAirflow || asset != "AHU-3:east" {
		t.Fatalf("unexpected parse %s %s %v", faultType, asset, ok)
	}
	if _, _, ok := ParseActionID("unknown:x"); ok {
		t.Fatalf("expected unknown fault type to fail")
	}
	if _, _, ok := ParseActionID("overcooling:"); ok {
		t.Fatalf("expected empty asset to fail")
	}
}

func TestMarkUnavailable(t *testing.T) {
	report := Summarize(nil, rules.Defaults())
	report.MarkUnavailable(rules.ChillerLowDeltaT)
	chiller, _ := report.Type(rules.ChillerLowDeltaT)
	ghost, _ := report.Type(rules.GhostRunning)
	if chiller.Available || !ghost.Available {
		t.Fatalf("unexpected availability chiller=%v ghost=%v", chiller.Available, ghost.Available)
	}
}

func TestRankAssetsSumsAcrossFaultTypes(t *testing.T) {
	flags := []rules.FaultFlag{
		fault(rules.Overcooling, "zone-1", time.Hour, 40),
		fault(rules.ZoneOvercool, "zone-1", time.Hour, 30),
		fault(rules.GhostRunning, "ahu-1", time.Hour, 60),
		fault(rules.ChillerLowDeltaT, "ch-1", time.Hour, 10),
		fault(rules.ChillerLowDeltaT, "ch-2", time.Hour, 10),
		{At: base, AssetID: "ahu-9", FaultType: rules.GhostRunning, EstimatedCost: 999},
	}
	ranked := RankAssets(flags, 3)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(ranked))
	}
	if ranked[0].AssetID != "zone-1" || ranked[0].Cost != 70 || ranked[0].Count != 2 || len(ranked[0].FaultTypes) != 2 {
		t.Fatalf("expected zone-1 first with both fault types, got %+v", ranked[0])
	}
	if ranked[1].AssetID != "ahu-1" || ranked[2].AssetID != "ch-1" {
		t.Fatalf("expected ahu-1 then ch-1 by tie-break, got %+v", ranked)
	}
	if all := RankAssets(flags, 0); len(all) != 4 {
		t.Fatalf("expected every faulted asset, got %d", len(all))
	}
	if empty := RankAssets(nil, 3); len(empty) != 0 {
		t.Fatalf("expected no assets, got %+v", empty)
	}
}
