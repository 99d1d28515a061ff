package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/analytics/domain/summary"
)

const (
	sheetSummary  = "summary"
	sheetTypes    = "fault_types"
	sheetActions  = "actions"
	sheetEvidence = "evidence"
)

// BuildWorkbook renders the report and its fault rows as an XLSX workbook.
func BuildWorkbook(report summary.Report, flags []rules.FaultFlag, currency string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetTypes, sheetActions, sheetEvidence} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	_ = f.SetCellValue(sheetSummary, "A1", "HVAC Energy Waste Summary")
	summaryRows := [][]interface{}{
		{"Date", report.Date.Format("2006-01-02")},
		{"Latest reading", formatTime(report.LatestAt)},
		{"Currency", currency},
		{"Total loss", report.TotalCost},
		{"Energy (kWh)", report.EnergyKWh},
		{"CO2 (kg)", report.CarbonKg},
		{"Monthly projection", report.MonthlyProjection},
		{"Last 24h loss", report.Last24h},
		{"Previous 24h loss", report.Previous24h},
	}
	for i, row := range summaryRows {
		if err := f.SetSheetRow(sheetSummary, fmt.Sprintf("A%d", i+3), &row); err != nil {
			return nil, err
		}
	}

	typeHeader := []interface{}{"Fault type", "Available", "Faults", "Assets", "Hours", "Loss", "Energy (kWh)", "CO2 (kg)", "Avg deviation", "Unit", "Monthly projection", "Recent trend"}
	if err := f.SetSheetRow(sheetTypes, "A1", &typeHeader); err != nil {
		return nil, err
	}
	for i, t := range report.Types {
		row := []interface{}{t.Label, t.Available, t.Count, t.Assets, t.Hours, t.TotalCost, t.EnergyKWh, t.CarbonKg, t.AvgDeviation, t.DeviationUnit, t.MonthlyProjection, t.TrendRecent}
		if err := f.SetSheetRow(sheetTypes, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	actionHeader := []interface{}{"Fault type", "Asset", "Faults", "Loss", "Severity", "Rule", "Evidence", "Recommended action", "Why", "Acknowledged"}
	if err := f.SetSheetRow(sheetActions, "A1", &actionHeader); err != nil {
		return nil, err
	}
	for i, a := range report.TopActions {
		row := []interface{}{a.Label, a.AssetID, a.Count, a.Cost, a.Severity, a.Rule, a.Evidence, a.Recommendation, a.Why, a.Acknowledged}
		if err := f.SetSheetRow(sheetActions, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	inputs := InputColumns(flags)
	evidenceRow := make([]interface{}, 0, len(evidenceHeader)+len(inputs))
	for _, name := range evidenceHeader {
		evidenceRow = append(evidenceRow, name)
	}
	for _, name := range inputs {
		evidenceRow = append(evidenceRow, name)
	}
	if err := f.SetSheetRow(sheetEvidence, "A1", &evidenceRow); err != nil {
		return nil, err
	}
	for i, flag := range flags {
		row := []interface{}{
			flag.At.Format(time.RFC3339),
			flag.AssetID,
			flag.ParentID,
			string(flag.FaultType),
			flag.IsFault,
			flag.EstimatedCost,
			flag.EnergyKWh,
			flag.CarbonKg,
			flag.Deviation,
			flag.DeviationUnit,
		}
		for _, name := range inputs {
			if value, ok := flag.Inputs[name]; ok {
				row = append(row, value)
			} else {
				row = append(row, nil)
			}
		}
		if err := f.SetSheetRow(sheetEvidence, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
