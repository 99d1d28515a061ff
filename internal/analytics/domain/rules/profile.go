package rules

// Resolver returns the thresholds that apply to one asset.
type Resolver interface {
	ForAsset(assetID string) ThresholdConfig
}

// Override carries the per-asset fields that differ from the defaults.
// Nil fields inherit the default value.
type Override struct {
	OffStart               *int     `yaml:"off_start,omitempty" json:"off_start,omitempty"`
	OffEnd                 *int     `yaml:"off_end,omitempty" json:"off_end,omitempty"`
	StatusOnThreshold      *float64 `yaml:"status_on_threshold,omitempty" json:"status_on_threshold,omitempty"`
	CostPerKWh             *float64 `yaml:"cost_per_kwh,omitempty" json:"cost_per_kwh,omitempty"`
	OvercoolToleranceC     *float64 `yaml:"overcool_tolerance_c,omitempty" json:"overcool_tolerance_c,omitempty"`
	ValveOpenThresholdPct  *float64 `yaml:"valve_open_threshold_pct,omitempty" json:"valve_open_threshold_pct,omitempty"`
	CoolingPenaltyRate     *float64 `yaml:"cooling_penalty_rate,omitempty" json:"cooling_penalty_rate,omitempty"`
	SatisfactionToleranceC *float64 `yaml:"satisfaction_tolerance_c,omitempty" json:"satisfaction_tolerance_c,omitempty"`
	AirflowHighPct         *float64 `yaml:"airflow_high_pct,omitempty" json:"airflow_high_pct,omitempty"`
	SatisfiedRatio         *float64 `yaml:"satisfied_ratio,omitempty" json:"satisfied_ratio,omitempty"`
	RatedFanKW             *float64 `yaml:"rated_fan_kw,omitempty" json:"rated_fan_kw,omitempty"`
	ChillerLowDeltaTC      *float64 `yaml:"chiller_low_delta_t_c,omitempty" json:"chiller_low_delta_t_c,omitempty"`
	FlowProxyKWPerC        *float64 `yaml:"flow_proxy_kw_per_c,omitempty" json:"flow_proxy_kw_per_c,omitempty"`
	ZoneKWhPerC            *float64 `yaml:"zone_kwh_per_c,omitempty" json:"zone_kwh_per_c,omitempty"`
	ZoneOvercoolToleranceC *float64 `yaml:"zone_overcool_tolerance_c,omitempty" json:"zone_overcool_tolerance_c,omitempty"`
}

// Profile is a default threshold set plus per-asset overrides.
type Profile struct {
	Defaults ThresholdConfig     `yaml:"defaults" json:"defaults"`
	Assets   map[string]Override `yaml:"assets,omitempty" json:"assets,omitempty"`
}

// NewProfile returns a profile with no overrides.
func NewProfile(defaults ThresholdConfig) Profile {
	return Profile{Defaults: defaults}
}

// ForAsset returns the merged thresholds for an asset.
func (p Profile) ForAsset(assetID string) ThresholdConfig {
	if p.Assets != nil {
		if override, ok := p.Assets[assetID]; ok {
			return mergeOverride(p.Defaults, override)
		}
	}
	return p.Defaults
}

// Validate checks the defaults and every merged asset config.
func (p Profile) Validate() error {
	if err := p.Defaults.Validate(); err != nil {
		return err
	}
	for assetID := range p.Assets {
		if err := p.ForAsset(assetID).Validate(); err != nil {
			return &AssetConfigError{AssetID: assetID, Err: err}
		}
	}
	return nil
}

// Clone returns a deep copy so callers can swap profiles without sharing maps.
func (p Profile) Clone() Profile {
	out := Profile{Defaults: p.Defaults}
	if len(p.Assets) > 0 {
		out.Assets = make(map[string]Override, len(p.Assets))
		for id, override := range p.Assets {
			out.Assets[id] = override
		}
	}
	return out
}

// AssetConfigError names the asset whose override failed validation.
type AssetConfigError struct {
	AssetID string
	Err     error
}

func (e *AssetConfigError) Error() string {
	return "rules: asset " + e.AssetID + ": " + e.Err.Error()
}

func (e *AssetConfigError) Unwrap() error { return e.Err }

func mergeOverride(base ThresholdConfig, override Override) ThresholdConfig {
	setInt(&base.OffStart, override.OffStart)
	setInt(&base.OffEnd, override.OffEnd)
	setFloat(&base.StatusOnThreshold, override.StatusOnThreshold)
	setFloat(&base.CostPerKWh, override.CostPerKWh)
	setFloat(&base.OvercoolToleranceC, override.OvercoolToleranceC)
	setFloat(&base.ValveOpenThresholdPct, override.ValveOpenThresholdPct)
	setFloat(&base.CoolingPenaltyRate, override.CoolingPenaltyRate)
	setFloat(&base.SatisfactionToleranceC, override.SatisfactionToleranceC)
	setFloat(&base.AirflowHighPct, override.AirflowHighPct)
	setFloat(&base.SatisfiedRatio, override.SatisfiedRatio)
	setFloat(&base.RatedFanKW, override.RatedFanKW)
	setFloat(&base.ChillerLowDeltaTC, override.ChillerLowDeltaTC)
	setFloat(&base.FlowProxyKWPerC, override.FlowProxyKWPerC)
	setFloat(&base.ZoneKWhPerC, override.ZoneKWhPerC)
	setFloat(&base.ZoneOvercoolToleranceC, override.ZoneOvercoolToleranceC)
	return base
}

func setInt(dst *int, value *int) {
	if value != nil {
		*dst = *value
	}
}

func setFloat(dst *float64, value *float64) {
	if value != nil {
		*dst = *value
	}
}
