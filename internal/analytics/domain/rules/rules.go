package rules

import (
	"math"
	"sort"
	"time"

	"hvac-insight/internal/analytics/domain/align"
	telemetry "hvac-insight/internal/telemetry/domain"
)

// ScheduledOff reports whether hour falls in the unoccupied window [offStart, offEnd).
// Windows wrap midnight when offStart > offEnd. Equal bounds mean the asset is never scheduled off.
func ScheduledOff(hour, offStart, offEnd int) bool {
	switch {
	case offStart == offEnd:
		return false
	case offStart > offEnd:
		return hour >= offStart || hour < offEnd
	default:
		return hour >= offStart && hour < offEnd
	}
}

// IsOn applies the status threshold to a duty signal.
func IsOn(signal float64, cfg ThresholdConfig) bool {
	return signal > cfg.StatusOnThreshold
}

// EvaluateGhostRunning flags equipment that is on during scheduled-off hours.
// The interval timestamp must already be in the site location.
func EvaluateGhostRunning(iv align.Interval, bucketHours float64, cfg ThresholdConfig) FaultFlag {
	power, _ := iv.Value(telemetry.KindPower)
	status, _ := iv.Value(telemetry.KindStatus)
	hour := iv.At.Hour()
	off := ScheduledOff(hour, cfg.OffStart, cfg.OffEnd)

	flag := newFlag(iv, GhostRunning, bucketHours)
	flag.Deviation = power
	flag.DeviationUnit = UnitKW
	flag.Inputs = map[string]float64{
		"power_kw":      power,
		"status":        status,
		"hour":          float64(hour),
		"scheduled_off": boolValue(off),
	}
	if IsOn(status, cfg) && off {
		energy := power * bucketHours
		setLoss(&flag, energy, energy*cfg.CostPerKWh, cfg)
	}
	return flag
}

// EvaluateOvercooling flags a zone below setpoint with its valve still open.
// Cost is delta-T times the hourly penalty rate scaled to the bucket length.
func EvaluateOvercooling(iv align.Interval, bucketHours float64, cfg ThresholdConfig) FaultFlag {
	temp, _ := iv.Value(telemetry.KindRoomTemp)
	setpoint, _ := iv.Value(telemetry.KindSetpoint)
	valve, _ := iv.Value(telemetry.KindValvePosition)
	deltaT := math.Max(0, setpoint-temp)

	flag := newFlag(iv, Overcooling, bucketHours)
	flag.Deviation = deltaT
	flag.DeviationUnit = UnitCelsius
	flag.Inputs = map[string]float64{
		"room_temp":      temp,
		"setpoint":       setpoint,
		"valve_position": valve,
		"delta_t":        deltaT,
	}
	if temp < setpoint-cfg.OvercoolToleranceC && valve > cfg.ValveOpenThresholdPct {
		cost := deltaT * cfg.CoolingPenaltyRate * bucketHours
		energy := 0.0
		if cfg.CoolingPenaltyRate > 0 && cfg.CostPerKWh > 0 {
			energy = cost / cfg.CostPerKWh
		}
		setLoss(&flag, energy, cost, cfg)
	}
	return flag
}

// ZoneSatisfied reports whether a zone needs no more cooling.
// A zone without an occupancy stream is judged on temperature alone.
func ZoneSatisfied(zone align.Interval, cfg ThresholdConfig) bool {
	temp, _ := zone.Value(telemetry.KindRoomTemp)
	setpoint, _ := zone.Value(telemetry.KindSetpoint)
	occupancy, ok := zone.Value(telemetry.KindOccupancy)
	return temp <= setpoint+cfg.SatisfactionToleranceC || (ok && occupancy == 0)
}

// FanKW estimates fan power from the cube of the airflow fraction.
func FanKW(airflowPct, ratedKW float64) float64 {
	return math.Pow(airflowPct/100, 3) * ratedKW
}

// EvaluateAHUExcessAirflow flags an AHU pushing high airflow while most of its zones are satisfied.
// It returns false when the AHU serves no zones at that timestamp.
func EvaluateAHUExcessAirflow(ahu align.Interval, zones []align.Interval, bucketHours float64, cfg ThresholdConfig) (FaultFlag, bool) {
	if len(zones) == 0 {
		return FaultFlag{}, false
	}
	satisfied := 0
	for _, zone := range zones {
		if ZoneSatisfied(zone, cfg) {
			satisfied++
		}
	}
	ratio := float64(satisfied) / float64(len(zones))
	status, _ := ahu.Value(telemetry.KindAHUStatus)
	airflow, _ := ahu.Value(telemetry.KindAirflowPct)
	fanKW := FanKW(airflow, cfg.RatedFanKW)

	flag := newFlag(ahu, AHUExcessAirflow, bucketHours)
	flag.Deviation = airflow
	flag.DeviationUnit = UnitPercent
	flag.Inputs = map[string]float64{
		"ahu_status":      status,
		"airflow_pct":     airflow,
		"zones_served":    float64(len(zones)),
		"zones_satisfied": float64(satisfied),
		"satisfied_ratio": ratio,
		"fan_kw":          fanKW,
	}
	if IsOn(status, cfg) && airflow >= cfg.AirflowHighPct && ratio >= cfg.SatisfiedRatio {
		energy := fanKW * bucketHours
		setLoss(&flag, energy, energy*cfg.CostPerKWh, cfg)
	}
	return flag, true
}

// EvaluateChillerLowDeltaT flags a chiller whose return-supply spread is below threshold.
func EvaluateChillerLowDeltaT(iv align.Interval, bucketHours float64, cfg ThresholdConfig) FaultFlag {
	supply, _ := iv.Value(telemetry.KindCHWSupplyTemp)
	ret, _ := iv.Value(telemetry.KindCHWReturnTemp)
	deltaT := ret - supply

	flag := newFlag(iv, ChillerLowDeltaT, bucketHours)
	flag.Deviation = deltaT
	flag.DeviationUnit = UnitCelsius
	flag.Inputs = map[string]float64{
		"chw_supply_temp": supply,
		"chw_return_temp": ret,
		"delta_t":         deltaT,
	}
	if deltaT < cfg.ChillerLowDeltaTC {
		energy := math.Max(0, cfg.ChillerLowDeltaTC-deltaT) * cfg.FlowProxyKWPerC * bucketHours
		setLoss(&flag, energy, energy*cfg.CostPerKWh, cfg)
	}
	return flag
}

// EvaluateZoneOvercool flags an unoccupied zone cooled below its setpoint.
func EvaluateZoneOvercool(iv align.Interval, bucketHours float64, cfg ThresholdConfig) FaultFlag {
	temp, _ := iv.Value(telemetry.KindRoomTemp)
	setpoint, _ := iv.Value(telemetry.KindSetpoint)
	occupancy, _ := iv.Value(telemetry.KindOccupancy)
	deficit := math.Max(0, setpoint-temp)

	flag := newFlag(iv, ZoneOvercool, bucketHours)
	flag.Deviation = deficit
	flag.DeviationUnit = UnitCelsius
	flag.Inputs = map[string]float64{
		"room_temp": temp,
		"setpoint":  setpoint,
		"occupancy": occupancy,
		"delta_t":   deficit,
	}
	if temp < setpoint-cfg.ZoneOvercoolToleranceC && occupancy == 0 {
		energy := deficit * cfg.ZoneKWhPerC
		setLoss(&flag, energy, energy*cfg.CostPerKWh, cfg)
	}
	return flag
}

// GhostRunningFlags evaluates every interval of the power/status domain.
func GhostRunningFlags(intervals []align.Interval, bucket time.Duration, resolver Resolver) []FaultFlag {
	return evaluateEach(intervals, bucket, resolver, EvaluateGhostRunning)
}

// OvercoolingFlags evaluates every interval of the temperature/valve domain.
func OvercoolingFlags(intervals []align.Interval, bucket time.Duration, resolver Resolver) []FaultFlag {
	return evaluateEach(intervals, bucket, resolver, EvaluateOvercooling)
}

// ChillerLowDeltaTFlags evaluates every chiller interval.
func ChillerLowDeltaTFlags(intervals []align.Interval, bucket time.Duration, resolver Resolver) []FaultFlag {
	return evaluateEach(intervals, bucket, resolver, EvaluateChillerLowDeltaT)
}

// ZoneOvercoolFlags evaluates every zone interval.
func ZoneOvercoolFlags(intervals []align.Interval, bucket time.Duration, resolver Resolver) []FaultFlag {
	return evaluateEach(intervals, bucket, resolver, EvaluateZoneOvercool)
}

// AHUExcessAirflowFlags joins zone intervals to the AHU serving them (zone ParentID)
// at the same timestamp and evaluates each AHU interval that serves at least one zone.
func AHUExcessAirflowFlags(ahus, zones []align.Interval, bucket time.Duration, resolver Resolver) []FaultFlag {
	if len(ahus) == 0 {
		return nil
	}
	type key struct {
		at  int64
		ahu string
	}
	served := make(map[key][]align.Interval)
	for _, zone := range zones {
		if zone.ParentID == "" {
			continue
		}
		k := key{at: zone.At.UnixNano(), ahu: zone.ParentID}
		served[k] = append(served[k], zone)
	}
	hours := bucket.Hours()
	var flags []FaultFlag
	for _, ahu := range ahus {
		cfg := resolve(resolver, ahu.AssetID)
		flag, ok := EvaluateAHUExcessAirflow(ahu, served[key{at: ahu.At.UnixNano(), ahu: ahu.AssetID}], hours, cfg)
		if ok {
			flags = append(flags, flag)
		}
	}
	sortFlags(flags)
	return flags
}

func evaluateEach(intervals []align.Interval, bucket time.Duration, resolver Resolver, rule func(align.Interval, float64, ThresholdConfig) FaultFlag) []FaultFlag {
	if len(intervals) == 0 {
		return nil
	}
	hours := bucket.Hours()
	flags := make([]FaultFlag, 0, len(intervals))
	for _, iv := range intervals {
		flags = append(flags, rule(iv, hours, resolve(resolver, iv.AssetID)))
	}
	sortFlags(flags)
	return flags
}

func resolve(resolver Resolver, assetID string) ThresholdConfig {
	if resolver == nil {
		return Defaults()
	}
	return resolver.ForAsset(assetID)
}

func newFlag(iv align.Interval, faultType FaultType, bucketHours float64) FaultFlag {
	return FaultFlag{
		At:          iv.At,
		AssetID:     iv.AssetID,
		ParentID:    iv.ParentID,
		FaultType:   faultType,
		BucketHours: bucketHours,
	}
}

func setLoss(flag *FaultFlag, energy, cost float64, cfg ThresholdConfig) {
	flag.IsFault = true
	flag.EnergyKWh = energy
	flag.EstimatedCost = cost
	flag.CarbonKg = energy * cfg.EmissionFactor
}

func sortFlags(flags []FaultFlag) {
	sort.SliceStable(flags, func(i, j int) bool {
		if !flags[i].At.Equal(flags[j].At) {
			return flags[i].At.Before(flags[j].At)
		}
		return flags[i].AssetID < flags[j].AssetID
	})
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
