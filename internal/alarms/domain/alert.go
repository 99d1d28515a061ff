package alarms

import (
	"time"

	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/analytics/domain/summary"
)

// Alert is the payload handed to a notifier when a fault type becomes active.
type Alert struct {
	ID                string          `json:"id"`
	CycleID           string          `json:"cycle_id"`
	FaultType         rules.FaultType `json:"fault_type"`
	Label             string          `json:"label"`
	RaisedAt          time.Time       `json:"raised_at"`
	Count             int             `json:"count"`
	Assets            int             `json:"assets"`
	Hours             float64         `json:"hours"`
	TotalCost         float64         `json:"total_cost"`
	EnergyKWh         float64         `json:"energy_kwh"`
	CarbonKg          float64         `json:"carbon_kg"`
	AvgDeviation      float64         `json:"avg_deviation"`
	DeviationUnit     string          `json:"deviation_unit,omitempty"`
	MonthlyProjection float64         `json:"monthly_projection"`
	TopAssets         []string        `json:"top_assets,omitempty"`
	Recommendation    string          `json:"recommendation"`
}

// NewAlert builds the alert for one fault type from a cycle report.
func NewAlert(id, cycleID string, faultType rules.FaultType, report summary.Report, raisedAt time.Time) (Alert, error) {
	s, ok := report.Type(faultType)
	if !ok {
		return Alert{}, ErrUnknownFaultType
	}
	alert := Alert{
		ID:                id,
		CycleID:           cycleID,
		FaultType:         faultType,
		Label:             s.Label,
		RaisedAt:          raisedAt,
		Count:             s.Count,
		Assets:            s.Assets,
		Hours:             s.Hours,
		TotalCost:         s.TotalCost,
		EnergyKWh:         s.EnergyKWh,
		CarbonKg:          s.CarbonKg,
		AvgDeviation:      s.AvgDeviation,
		DeviationUnit:     s.DeviationUnit,
		MonthlyProjection: s.MonthlyProjection,
		Recommendation:    summary.PlaybookFor(faultType).Recommendation,
	}
	for _, action := range report.TopActions {
		if action.FaultType == faultType {
			alert.TopAssets = append(alert.TopAssets, action.AssetID)
		}
	}
	return alert, nil
}
