package summary

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"hvac-insight/internal/analytics/domain/rules"
)

// Action is one ranked (fault type, asset) loss with its operator guidance.
type Action struct {
	ID             string          `json:"id"`
	FaultType      rules.FaultType `json:"fault_type"`
	Label          string          `json:"label"`
	AssetID        string          `json:"asset_id"`
	Count          int             `json:"count"`
	Cost           float64         `json:"cost"`
	EnergyKWh      float64         `json:"energy_kwh"`
	CarbonKg       float64         `json:"carbon_kg"`
	AvgDeviation   float64         `json:"avg_deviation"`
	LastSeen       time.Time       `json:"last_seen"`
	Severity       string          `json:"severity"`
	Rule           string          `json:"rule"`
	Evidence       string          `json:"evidence"`
	Recommendation string          `json:"recommendation"`
	Why            string          `json:"why"`
	Acknowledged   bool            `json:"acknowledged"`
}

// ActionID is the stable key of a (fault type, asset) action.
func ActionID(faultType rules.FaultType, assetID string) string {
	return string(faultType) + ":" + assetID
}

// ParseActionID splits an action id back into fault type and asset.
func ParseActionID(id string) (rules.FaultType, string, bool) {
	idx := strings.Index(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}
	faultType := rules.FaultType(id[:idx])
	if !faultType.Valid() {
		return "", "", false
	}
	return faultType, id[idx+1:], true
}

// Playbook is the static guidance attached to a fault type.
type Playbook struct {
	Recommendation string   `json:"recommendation"`
	Why            string   `json:"why"`
	CheckSequence  []string `json:"check_sequence"`
	Signals        []string `json:"signals"`
}

// PlaybookFor returns the guidance for a fault type.
func PlaybookFor(faultType rules.FaultType) Playbook {
	switch faultType {
	case rules.GhostRunning:
		return Playbook{
			Recommendation: "Stop the unit and correct the occupancy schedule or override",
			Why:            "Running outside occupancy hours spends energy on empty spaces.",
			CheckSequence:  []string{"Verify AHU runtime in BMS", "Confirm no manual or night-purge override", "Validate occupancy schedule configuration"},
			Signals:        []string{"Power meter", "ON/OFF status", "Occupancy schedule"},
		}
	case rules.Overcooling:
		return Playbook{
			Recommendation: "Inspect the cooling valve actuator and control loop",
			Why:            "Spaces cooled below setpoint with the valve open point to control or actuator faults.",
			CheckSequence:  []string{"Inspect cooling valve actuator", "Check control loop tuning", "Validate temperature sensor calibration"},
			Signals:        []string{"Temperature sensor", "Setpoint", "Valve feedback"},
		}
	case rules.AHUExcessAirflow:
		return Playbook{
			Recommendation: "Reset static pressure or reduce airflow",
			Why:            "Fan energy is wasted when airflow does not follow actual demand.",
			CheckSequence:  []string{"Check duct static pressure setpoint", "Review VAV box demand", "Verify fan speed control"},
			Signals:        []string{"AHU status", "Airflow", "Zone temperatures", "Occupancy"},
		}
	case rules.ChillerLowDeltaT:
		return Playbook{
			Recommendation: "Inspect bypass valve and chilled water flow",
			Why:            "Low delta-T indicates poor heat transfer or bypass flow.",
			CheckSequence:  []string{"Inspect bypass valve", "Check chilled water pump speed", "Verify coil valves are modulating"},
			Signals:        []string{"CHW supply temperature", "CHW return temperature"},
		}
	case rules.ZoneOvercool:
		return Playbook{
			Recommendation: "Increase zone setpoint or reduce airflow",
			Why:            "Overcooling wastes cooling energy and reduces passenger comfort.",
			CheckSequence:  []string{"Confirm the zone is unoccupied", "Raise the unoccupied setpoint", "Check VAV minimum airflow"},
			Signals:        []string{"Zone temperature", "Setpoint", "Occupancy"},
		}
	default:
		return Playbook{}
	}
}

// RuleText describes the condition a fault type tests, using the live thresholds.
func RuleText(faultType rules.FaultType, cfg rules.ThresholdConfig) string {
	switch faultType {
	case rules.GhostRunning:
		return fmt.Sprintf("Status ON between %02d:00 and %02d:00 (scheduled OFF)", cfg.OffStart, cfg.OffEnd)
	case rules.Overcooling:
		return fmt.Sprintf("Temperature below setpoint by more than %.1f°C with valve above %.0f%%", cfg.OvercoolToleranceC, cfg.ValveOpenThresholdPct)
	case rules.AHUExcessAirflow:
		return fmt.Sprintf("Airflow at or above %.0f%% while %.0f%% of zones are satisfied", cfg.AirflowHighPct, cfg.SatisfiedRatio*100)
	case rules.ChillerLowDeltaT:
		return fmt.Sprintf("Chilled water delta-T below %.1f°C", cfg.ChillerLowDeltaTC)
	case rules.ZoneOvercool:
		return fmt.Sprintf("Unoccupied zone below setpoint by more than %.1f°C", cfg.ZoneOvercoolToleranceC)
	default:
		return ""
	}
}

func evidenceText(action Action, unit string, cfg rules.ThresholdConfig) string {
	switch action.FaultType {
	case rules.GhostRunning:
		return fmt.Sprintf("%d intervals ON while scheduled OFF, avg %.1f kW", action.Count, action.AvgDeviation)
	case rules.AHUExcessAirflow:
		return fmt.Sprintf("%d intervals with avg airflow %.0f%%", action.Count, action.AvgDeviation)
	case rules.ChillerLowDeltaT:
		return fmt.Sprintf("Avg delta-T = %.1f°C (threshold %.1f°C) over %d intervals", action.AvgDeviation, cfg.ChillerLowDeltaTC, action.Count)
	default:
		return fmt.Sprintf("Avg deviation = %.1f%s over %d intervals", action.AvgDeviation, unit, action.Count)
	}
}

// RankActions returns the top K of GroupActions.
func RankActions(flags []rules.FaultFlag, cfg rules.ThresholdConfig) []Action {
	actions := GroupActions(flags, cfg)
	if cfg.TopActions > 0 && len(actions) > cfg.TopActions {
		actions = actions[:cfg.TopActions]
	}
	return actions
}

// GroupActions groups fault rows by (fault type, asset) and sorts them by summed cost,
// breaking ties by fault type then asset.
func GroupActions(flags []rules.FaultFlag, cfg rules.ThresholdConfig) []Action {
	type group struct {
		action    Action
		deviation float64
		unit      string
	}
	groups := make(map[string]*group)
	for _, flag := range flags {
		if !flag.IsFault {
			continue
		}
		id := ActionID(flag.FaultType, flag.AssetID)
		g := groups[id]
		if g == nil {
			g = &group{action: Action{ID: id, FaultType: flag.FaultType, Label: flag.FaultType.Label(), AssetID: flag.AssetID}}
			groups[id] = g
		}
		g.action.Count++
		g.action.Cost += flag.EstimatedCost
		g.action.EnergyKWh += flag.EnergyKWh
		g.action.CarbonKg += flag.CarbonKg
		g.deviation += flag.Deviation
		g.unit = flag.DeviationUnit
		if flag.At.After(g.action.LastSeen) {
			g.action.LastSeen = flag.At
		}
	}

	actions := make([]Action, 0, len(groups))
	for _, g := range groups {
		action := g.action
		action.AvgDeviation = g.deviation / float64(action.Count)
		action.Severity = Severity(action.Cost, cfg)
		action.Rule = RuleText(action.FaultType, cfg)
		action.Evidence = evidenceText(action, g.unit, cfg)
		playbook := PlaybookFor(action.FaultType)
		action.Recommendation = playbook.Recommendation
		action.Why = playbook.Why
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Cost != actions[j].Cost {
			return actions[i].Cost > actions[j].Cost
		}
		if actions[i].FaultType != actions[j].FaultType {
			return actions[i].FaultType < actions[j].FaultType
		}
		return actions[i].AssetID < actions[j].AssetID
	})
	return actions
}

// AssetTotal is the summed fault cost of one asset across fault types.
type AssetTotal struct {
	AssetID    string            `json:"asset_id"`
	Count      int               `json:"count"`
	Cost       float64           `json:"cost"`
	FaultTypes []rules.FaultType `json:"fault_types"`
}

// RankAssets groups fault rows by asset, sorts by summed cost and keeps the top k.
// k <= 0 keeps every asset.
func RankAssets(flags []rules.FaultFlag, k int) []AssetTotal {
	totals := make(map[string]*AssetTotal)
	seen := make(map[string]map[rules.FaultType]struct{})
	for _, flag := range flags {
		if !flag.IsFault {
			continue
		}
		total := totals[flag.AssetID]
		if total == nil {
			total = &AssetTotal{AssetID: flag.AssetID}
			totals[flag.AssetID] = total
			seen[flag.AssetID] = make(map[rules.FaultType]struct{})
		}
		total.Count++
		total.Cost += flag.EstimatedCost
		if _, ok := seen[flag.AssetID][flag.FaultType]; !ok {
			seen[flag.AssetID][flag.FaultType] = struct{}{}
			total.FaultTypes = append(total.FaultTypes, flag.FaultType)
		}
	}

	out := make([]AssetTotal, 0, len(totals))
	for _, total := range totals {
		sort.Slice(total.FaultTypes, func(i, j int) bool { return total.FaultTypes[i] < total.FaultTypes[j] })
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].AssetID < out[j].AssetID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
