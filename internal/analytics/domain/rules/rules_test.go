package rules

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"hvac-insight/internal/analytics/domain/align"
	telemetry "hvac-insight/internal/telemetry/domain"
)

func interval(asset string, at time.Time, values map[telemetry.StreamKind]float64) align.Interval {
	return align.Interval{At: at, AssetID: asset, Values: values}
}

func TestScheduledOffClassifiesEveryHourOnce(t *testing.T) {
	for start := 0; start < 24; start++ {
		for end := 0; end < 24; end++ {
			offHours := 0
			for hour := 0; hour < 24; hour++ {
				if ScheduledOff(hour, start, end) {
					offHours++
				}
			}
			var want int
			switch {
			case start == end:
				want = 0
			case start < end:
				want = end - start
			default:
				want = 24 - start + end
			}
			if offHours != want {
				t.Fatalf("off_start=%d off_end=%d: expected %d off hours, got %d", start, end, want, offHours)
			}
		}
	}
}

func TestScheduledOffWrapAround(t *testing.T) {
	cases := []struct {
		hour int
		want bool
	}{
		{21, false}, {22, true}, {23, true}, {0, true}, {5, true}, {6, false}, {12, false},
	}
	for _, tc := range cases {
		if got := ScheduledOff(tc.hour, 22, 6); got != tc.want {
			t.Fatalf("hour %d: expected %v, got %v", tc.hour, tc.want, got)
		}
	}
	if ScheduledOff(3, 8, 8) {
		t.Fatalf("equal bounds should never be scheduled off")
	}
}

func TestGhostRunningThreeOffHours(t *testing.T) {
	start := time.Date(2026, 1, 26, 1, 0, 0, 0, time.UTC)
	var intervals []align.Interval
	for i := 0; i < 3; i++ {
		intervals = append(intervals, interval("ahu-1", start.Add(time.Duration(i)*time.Hour), map[telemetry.StreamKind]float64{
			telemetry.KindPower:  5,
			telemetry.KindStatus: 1,
		}))
	}
	flags := GhostRunningFlags(intervals, time.Hour, Defaults())
	total := 0.0
	hours := 0
	for _, flag := range flags {
		if flag.IsFault {
			hours++
			total += flag.EstimatedCost
		}
	}
	if total != 180 || hours != 3 {
		t.Fatalf("expected cost 180 over 3 hours, got %v over %d", total, hours)
	}
	if math.Abs(flags[0].CarbonKg-5*0.71) > 1e-9 {
		t.Fatalf("unexpected carbon %v", flags[0].CarbonKg)
	}
}

func TestGhostRunningIgnoresOccupiedHoursAndOffStatus(t *testing.T) {
	cfg := Defaults()
	noon := interval("ahu-1", time.Date(2026, 1, 26, 12, 0, 0, 0, time.UTC), map[telemetry.StreamKind]float64{
		telemetry.KindPower: 5, telemetry.KindStatus: 1,
	})
	if flag := EvaluateGhostRunning(noon, 1, cfg); flag.IsFault || flag.EstimatedCost != 0 {
		t.Fatalf("expected no fault at noon, got %+v", flag)
	}
	night := interval("ahu-1", time.Date(2026, 1, 26, 23, 0, 0, 0, time.UTC), map[telemetry.StreamKind]float64{
		telemetry.KindPower: 5, telemetry.KindStatus: 0.5,
	})
	flag := EvaluateGhostRunning(night, 1, cfg)
	if flag.IsFault {
		t.Fatalf("status 0.5 is not on")
	}
	if flag.Deviation != 5 {
		t.Fatalf("deviation should be reported on non-fault rows, got %v", flag.Deviation)
	}
}

func TestOvercoolingBucketScaledCost(t *testing.T) {
	iv := interval("zone-1", time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC), map[telemetry.StreamKind]float64{
		telemetry.KindRoomTemp:      18,
		telemetry.KindSetpoint:      22,
		telemetry.KindValvePosition: 90,
	})
	flag := EvaluateOvercooling(iv, 0.25, Defaults())
	if !flag.IsFault {
		t.Fatalf("expected overcooling fault")
	}
	if flag.Deviation != 4 {
		t.Fatalf("expected delta-T 4, got %v", flag.Deviation)
	}
	if flag.EstimatedCost != 150 {
		t.Fatalf("expected cost 150, got %v", flag.EstimatedCost)
	}
	if flag.EnergyKWh != 12.5 {
		t.Fatalf("expected energy 12.5, got %v", flag.EnergyKWh)
	}
}

func TestOvercoolingNeedsOpenValve(t *testing.T) {
	iv := interval("zone-1", time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC), map[telemetry.StreamKind]float64{
		telemetry.KindRoomTemp:      18,
		telemetry.KindSetpoint:      22,
		telemetry.KindValvePosition: 80,
	})
	if flag := EvaluateOvercooling(iv, 0.25, Defaults()); flag.IsFault {
		t.Fatalf("valve at threshold should not fault")
	}
}

func TestRulesAreIdempotent(t *testing.T) {
	at := time.Date(2026, 1, 26, 23, 0, 0, 0, time.UTC)
	intervals := []align.Interval{
		interval("b", at, map[telemetry.StreamKind]float64{telemetry.KindPower: 3, telemetry.KindStatus: 1}),
		interval("a", at, map[telemetry.StreamKind]float64{telemetry.KindPower: 7, telemetry.KindStatus: 1}),
	}
	first := GhostRunningFlags(intervals, time.Hour, Defaults())
	second := GhostRunningFlags(intervals, time.Hour, Defaults())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output")
	}
	if first[0].AssetID != "a" {
		t.Fatalf("expected flags ordered by asset, got %s", first[0].AssetID)
	}
}

func TestAHUExcessAirflow(t *testing.T) {
	at := time.Date(2026, 1, 26, 14, 0, 0, 0, time.UTC)
	ahu := interval("ahu-1", at, map[telemetry.StreamKind]float64{
		telemetry.KindAHUStatus:  1,
		telemetry.KindAirflowPct: 80,
	})
	zone := func(id string, temp, occ float64) align.Interval {
		iv := interval(id, at, map[telemetry.StreamKind]float64{
			telemetry.KindRoomTemp: temp, telemetry.KindSetpoint: 22, telemetry.KindOccupancy: occ,
		})
		iv.ParentID = "ahu-1"
		return iv
	}
	zones := []align.Interval{zone("z1", 21, 1), zone("z2", 22.5, 1), zone("z3", 26, 0), zone("z4", 21.5, 1), zone("z5", 25, 1)}
	flags := AHUExcessAirflowFlags([]align.Interval{ahu}, zones, 15*time.Minute, Defaults())
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(flags))
	}
	flag := flags[0]
	if !flag.IsFault {
		t.Fatalf("expected fault with ratio %v", flag.Inputs["satisfied_ratio"])
	}
	wantEnergy := math.Pow(0.8, 3) * 10 * 0.25
	if math.Abs(flag.EnergyKWh-wantEnergy) > 1e-9 || math.Abs(flag.EstimatedCost-wantEnergy*12) > 1e-9 {
		t.Fatalf("unexpected loss energy=%v cost=%v", flag.EnergyKWh, flag.EstimatedCost)
	}
}

func TestAHUWithoutZonesIsSkipped(t *testing.T) {
	at := time.Date(2026, 1, 26, 14, 0, 0, 0, time.UTC)
	ahu := interval("ahu-1", at, map[telemetry.StreamKind]float64{telemetry.KindAHUStatus: 1, telemetry.KindAirflowPct: 90})
	other := interval("z1", at, map[telemetry.StreamKind]float64{telemetry.KindRoomTemp: 20, telemetry.KindSetpoint: 22, telemetry.KindOccupancy: 1})
	other.ParentID = "ahu-2"
	if flags := AHUExcessAirflowFlags([]align.Interval{ahu}, []align.Interval{other}, 15*time.Minute, Defaults()); len(flags) != 0 {
		t.Fatalf("expected no flags, got %d", len(flags))
	}
}

func TestChillerLowDeltaT(t *testing.T) {
	iv := interval("ch-1", time.Date(2026, 1, 26, 14, 0, 0, 0, time.UTC), map[telemetry.StreamKind]float64{
		telemetry.KindCHWSupplyTemp: 7,
		telemetry.KindCHWReturnTemp: 9,
	})
	flag := EvaluateChillerLowDeltaT(iv, 0.25, Defaults())
	if !flag.IsFault || flag.Deviation != 2 {
		t.Fatalf("expected fault with delta-T 2, got %+v", flag)
	}
	if flag.EnergyKWh != 12.5 || flag.EstimatedCost != 150 {
		t.Fatalf("expected 12.5 kWh / 150, got %v / %v", flag.EnergyKWh, flag.EstimatedCost)
	}
}

func TestZoneOvercoolOnlyWhenUnoccupied(t *testing.T) {
	at := time.Date(2026, 1, 26, 2, 0, 0, 0, time.UTC)
	empty := interval("z1", at, map[telemetry.StreamKind]float64{
		telemetry.KindRoomTemp: 19, telemetry.KindSetpoint: 24, telemetry.KindOccupancy: 0,
	})
	flag := EvaluateZoneOvercool(empty, 0.25, Defaults())
	if !flag.IsFault || math.Abs(flag.EnergyKWh-1.5) > 1e-9 || math.Abs(flag.EstimatedCost-18) > 1e-9 {
		t.Fatalf("unexpected zone flag %+v", flag)
	}
	occupied := interval("z1", at, map[telemetry.StreamKind]float64{
		telemetry.KindRoomTemp: 19, telemetry.KindSetpoint: 24, telemetry.KindOccupancy: 1,
	})
	if EvaluateZoneOvercool(occupied, 0.25, Defaults()).IsFault {
		t.Fatalf("occupied zone should not fault")
	}
}

func TestZoneOvercoolHasItsOwnTolerance(t *testing.T) {
	at := time.Date(2026, 1, 26, 2, 0, 0, 0, time.UTC)
	zone := interval("z1", at, map[telemetry.StreamKind]float64{
		telemetry.KindRoomTemp: 22, telemetry.KindSetpoint: 24, telemetry.KindOccupancy: 0,
	})
	cfg := Defaults()
	cfg.OvercoolToleranceC = 5
	if !EvaluateZoneOvercool(zone, 0.25, cfg).IsFault {
		t.Fatalf("expected zone tolerance, not the scenario tolerance, to apply")
	}
	cfg = Defaults()
	cfg.ZoneOvercoolToleranceC = 3
	if EvaluateZoneOvercool(zone, 0.25, cfg).IsFault {
		t.Fatalf("expected no fault within a 3°C zone tolerance")
	}
	cfg.ZoneOvercoolToleranceC = -1
	if err := cfg.Validate(); !errors.Is(err, ErrConfigOutOfRange) {
		t.Fatalf("expected out of range error, got %v", err)
	}

	override := 3.0
	profile := Profile{Defaults: Defaults(), Assets: map[string]Override{"z1": {ZoneOvercoolToleranceC: &override}}}
	if got := profile.ForAsset("z1").ZoneOvercoolToleranceC; got != 3 {
		t.Fatalf("expected override 3, got %v", got)
	}
}

func TestEmptyBatches(t *testing.T) {
	if flags := GhostRunningFlags(nil, time.Hour, Defaults()); len(flags) != 0 {
		t.Fatalf("expected no flags")
	}
	if flags := AHUExcessAirflowFlags(nil, nil, time.Hour, nil); len(flags) != 0 {
		t.Fatalf("expected no flags")
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.OffStart = 24
	if err := cfg.Validate(); !errors.Is(err, ErrConfigOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	cfg = Defaults()
	cfg.SeverityMedium = 6000
	if err := cfg.Validate(); !errors.Is(err, ErrConfigOutOfRange) {
		t.Fatalf("expected out of range for inverted bands, got %v", err)
	}
	cfg = Defaults()
	cfg.Alerts.Overcooling.MinCost = -1
	if err := cfg.Validate(); !errors.Is(err, ErrConfigOutOfRange) {
		t.Fatalf("expected out of range trigger, got %v", err)
	}
}

func TestProfileOverridesPerAsset(t *testing.T) {
	start := 20
	rate := 10.0
	profile := NewProfile(Defaults())
	profile.Assets = map[string]Override{"ahu-2": {OffStart: &start, CostPerKWh: &rate}}

	if got := profile.ForAsset("ahu-1"); got.OffStart != 22 {
		t.Fatalf("expected default off_start, got %d", got.OffStart)
	}
	got := profile.ForAsset("ahu-2")
	if got.OffStart != 20 || got.CostPerKWh != 10 || got.OffEnd != 6 {
		t.Fatalf("unexpected merged config %+v", got)
	}

	bad := 30
	profile.Assets["ahu-3"] = Override{OffEnd: &bad}
	err := profile.Validate()
	var assetErr *AssetConfigError
	if !errors.As(err, &assetErr) || assetErr.AssetID != "ahu-3" || !errors.Is(err, ErrConfigOutOfRange) {
		t.Fatalf("expected asset config error for ahu-3, got %v", err)
	}
}

func TestZoneSatisfiedWithoutOccupancy(t *testing.T) {
	at := time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)
	warm := interval("z1", at, map[telemetry.StreamKind]float64{telemetry.KindRoomTemp: 25, telemetry.KindSetpoint: 22})
	if ZoneSatisfied(warm, Defaults()) {
		t.Fatalf("expected warm zone without occupancy to be unsatisfied")
	}
	cool := interval("z2", at, map[telemetry.StreamKind]float64{telemetry.KindRoomTemp: 22.4, telemetry.KindSetpoint: 22})
	if !ZoneSatisfied(cool, Defaults()) {
		t.Fatalf("expected zone within tolerance to be satisfied")
	}
}
