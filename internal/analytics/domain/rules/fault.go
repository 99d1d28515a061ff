// Package rules turns aligned intervals into fault flags with cost, energy and carbon estimates.
package rules

import "time"

// FaultType names a waste condition.
type FaultType string

const (
	GhostRunning     FaultType = "ghost_running"
	Overcooling      FaultType = "overcooling"
	AHUExcessAirflow FaultType = "ahu_excess_airflow"
	ChillerLowDeltaT FaultType = "chiller_low_delta_t"
	ZoneOvercool     FaultType = "zone_overcool"
)

// FaultTypes lists every fault type in reporting order.
var FaultTypes = []FaultType{GhostRunning, Overcooling, AHUExcessAirflow, ChillerLowDeltaT, ZoneOvercool}

// Valid returns true for a known fault type.
func (f FaultType) Valid() bool {
	for _, known := range FaultTypes {
		if f == known {
			return true
		}
	}
	return false
}

// Label is the display name of a fault type.
func (f FaultType) Label() string {
	switch f {
	case GhostRunning:
		return "Ghost running"
	case Overcooling:
		return "Overcooling"
	case AHUExcessAirflow:
		return "AHU excess airflow"
	case ChillerLowDeltaT:
		return "Chiller low delta-T"
	case ZoneOvercool:
		return "Unoccupied zone overcooling"
	default:
		return string(f)
	}
}

// Deviation units.
const (
	UnitKW      = "kW"
	UnitCelsius = "°C"
	UnitPercent = "%"
)

// FaultFlag is the verdict of one rule on one interval.
// Rows that are not faults carry zero cost, energy and carbon.
type FaultFlag struct {
	At            time.Time          `json:"timestamp"`
	AssetID       string             `json:"asset_id"`
	ParentID      string             `json:"parent_id,omitempty"`
	FaultType     FaultType          `json:"fault_type"`
	IsFault       bool               `json:"is_fault"`
	EstimatedCost float64            `json:"estimated_cost"`
	EnergyKWh     float64            `json:"energy_kwh"`
	CarbonKg      float64            `json:"carbon_kg"`
	Deviation     float64            `json:"deviation"`
	DeviationUnit string             `json:"deviation_unit"`
	BucketHours   float64            `json:"bucket_hours"`
	Inputs        map[string]float64 `json:"inputs"`
}

// Faults returns only the rows flagged as faults.
func Faults(flags []FaultFlag) []FaultFlag {
	var out []FaultFlag
	for _, flag := range flags {
		if flag.IsFault {
			out = append(out, flag)
		}
	}
	return out
}
