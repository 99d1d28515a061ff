package rules

import (
	"errors"
	"fmt"
)

// ErrConfigOutOfRange is returned when a threshold lies outside its valid domain.
var ErrConfigOutOfRange = errors.New("rules: threshold out of range")

// AlertTrigger is the predicate that activates an alert for one fault type.
type AlertTrigger struct {
	MinCount int     `yaml:"min_count" json:"min_count"`
	MinCost  float64 `yaml:"min_cost" json:"min_cost"`
}

// Triggers holds the alert trigger for every fault type.
type Triggers struct {
	GhostRunning     AlertTrigger `yaml:"ghost_running" json:"ghost_running"`
	Overcooling      AlertTrigger `yaml:"overcooling" json:"overcooling"`
	AHUExcessAirflow AlertTrigger `yaml:"ahu_excess_airflow" json:"ahu_excess_airflow"`
	ChillerLowDeltaT AlertTrigger `yaml:"chiller_low_delta_t" json:"chiller_low_delta_t"`
	ZoneOvercool     AlertTrigger `yaml:"zone_overcool" json:"zone_overcool"`
}

// For returns the trigger configured for a fault type.
func (t Triggers) For(faultType FaultType) AlertTrigger {
	switch faultType {
	case GhostRunning:
		return t.GhostRunning
	case Overcooling:
		return t.Overcooling
	case AHUExcessAirflow:
		return t.AHUExcessAirflow
	case ChillerLowDeltaT:
		return t.ChillerLowDeltaT
	case ZoneOvercool:
		return t.ZoneOvercool
	default:
		return AlertTrigger{}
	}
}

// ThresholdConfig is the set of knobs every rule reads. Values are copied, never mutated.
type ThresholdConfig struct {
	OffStart          int     `yaml:"off_start" json:"off_start"`
	OffEnd            int     `yaml:"off_end" json:"off_end"`
	StatusOnThreshold float64 `yaml:"status_on_threshold" json:"status_on_threshold"`
	CostPerKWh        float64 `yaml:"cost_per_kwh" json:"cost_per_kwh"`
	EmissionFactor    float64 `yaml:"emission_factor_kg_per_kwh" json:"emission_factor_kg_per_kwh"`

	OvercoolToleranceC    float64 `yaml:"overcool_tolerance_c" json:"overcool_tolerance_c"`
	ValveOpenThresholdPct float64 `yaml:"valve_open_threshold_pct" json:"valve_open_threshold_pct"`
	// CoolingPenaltyRate is currency per °C per hour, scaled by the bucket length.
	CoolingPenaltyRate float64 `yaml:"cooling_penalty_rate" json:"cooling_penalty_rate"`

	SatisfactionToleranceC float64 `yaml:"satisfaction_tolerance_c" json:"satisfaction_tolerance_c"`
	AirflowHighPct         float64 `yaml:"airflow_high_pct" json:"airflow_high_pct"`
	SatisfiedRatio         float64 `yaml:"satisfied_ratio" json:"satisfied_ratio"`
	RatedFanKW             float64 `yaml:"rated_fan_kw" json:"rated_fan_kw"`

	ChillerLowDeltaTC float64 `yaml:"chiller_low_delta_t_c" json:"chiller_low_delta_t_c"`
	// FlowProxyKWPerC approximates chiller kW per °C of missing delta-T; not a measured flow.
	FlowProxyKWPerC float64 `yaml:"flow_proxy_kw_per_c" json:"flow_proxy_kw_per_c"`
	ZoneKWhPerC     float64 `yaml:"zone_kwh_per_c" json:"zone_kwh_per_c"`
	// ZoneOvercoolToleranceC applies to unoccupied zones only.
	ZoneOvercoolToleranceC float64 `yaml:"zone_overcool_tolerance_c" json:"zone_overcool_tolerance_c"`

	TrendWindow    int     `yaml:"trend_window" json:"trend_window"`
	TopActions     int     `yaml:"top_actions" json:"top_actions"`
	SeverityHigh   float64 `yaml:"severity_high" json:"severity_high"`
	SeverityMedium float64 `yaml:"severity_medium" json:"severity_medium"`
	ProjectionDays int     `yaml:"projection_days" json:"projection_days"`

	Alerts Triggers `yaml:"alerts" json:"alerts"`
}

// Defaults returns the stock thresholds.
func Defaults() ThresholdConfig {
	return ThresholdConfig{
		OffStart:               22,
		OffEnd:                 6,
		StatusOnThreshold:      0.5,
		CostPerKWh:             12,
		EmissionFactor:         0.71,
		OvercoolToleranceC:     1,
		ValveOpenThresholdPct:  80,
		CoolingPenaltyRate:     150,
		SatisfactionToleranceC: 0.5,
		AirflowHighPct:         60,
		SatisfiedRatio:         0.8,
		RatedFanKW:             10,
		ChillerLowDeltaTC:      4,
		FlowProxyKWPerC:        25,
		ZoneKWhPerC:            0.3,
		ZoneOvercoolToleranceC: 1,
		TrendWindow:            7,
		TopActions:             3,
		SeverityHigh:           5000,
		SeverityMedium:         2000,
		ProjectionDays:         30,
		Alerts: Triggers{
			GhostRunning:     AlertTrigger{MinCount: 2},
			Overcooling:      AlertTrigger{MinCount: 1, MinCost: 500},
			AHUExcessAirflow: AlertTrigger{MinCount: 1, MinCost: 500},
			ChillerLowDeltaT: AlertTrigger{MinCount: 1, MinCost: 500},
			ZoneOvercool:     AlertTrigger{MinCount: 1, MinCost: 500},
		},
	}
}

// ForAsset lets a plain config act as a Resolver.
func (c ThresholdConfig) ForAsset(string) ThresholdConfig { return c }

// Validate rejects values outside their documented domain.
func (c ThresholdConfig) Validate() error {
	checks := []struct {
		field string
		ok    bool
	}{
		{"off_start", c.OffStart >= 0 && c.OffStart <= 23},
		{"off_end", c.OffEnd >= 0 && c.OffEnd <= 23},
		{"status_on_threshold", inRange(c.StatusOnThreshold, 0, 1)},
		{"cost_per_kwh", c.CostPerKWh >= 0},
		{"emission_factor_kg_per_kwh", c.EmissionFactor >= 0},
		{"overcool_tolerance_c", c.OvercoolToleranceC >= 0},
		{"valve_open_threshold_pct", inRange(c.ValveOpenThresholdPct, 0, 100)},
		{"cooling_penalty_rate", c.CoolingPenaltyRate >= 0},
		{"satisfaction_tolerance_c", c.SatisfactionToleranceC >= 0},
		{"airflow_high_pct", inRange(c.AirflowHighPct, 0, 100)},
		{"satisfied_ratio", inRange(c.SatisfiedRatio, 0, 1)},
		{"rated_fan_kw", c.RatedFanKW >= 0},
		{"chiller_low_delta_t_c", c.ChillerLowDeltaTC >= 0},
		{"flow_proxy_kw_per_c", c.FlowProxyKWPerC >= 0},
		{"zone_kwh_per_c", c.ZoneKWhPerC >= 0},
		{"zone_overcool_tolerance_c", c.ZoneOvercoolToleranceC >= 0},
		{"trend_window", c.TrendWindow >= 1},
		{"top_actions", c.TopActions >= 1},
		{"severity_medium", c.SeverityMedium >= 0},
		{"severity_high", c.SeverityHigh >= c.SeverityMedium},
		{"projection_days", c.ProjectionDays >= 1},
	}
	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("%w: %s", ErrConfigOutOfRange, check.field)
		}
	}
	for _, faultType := range FaultTypes {
		trigger := c.Alerts.For(faultType)
		if trigger.MinCount < 0 || trigger.MinCost < 0 {
			return fmt.Errorf("%w: alerts.%s", ErrConfigOutOfRange, faultType)
		}
	}
	return nil
}

func inRange(value, lo, hi float64) bool {
	return value >= lo && value <= hi
}
