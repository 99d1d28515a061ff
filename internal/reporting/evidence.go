// Package reporting renders cycle results as CSV evidence, XLSX workbooks and daily PDFs.
package reporting

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"hvac-insight/internal/analytics/domain/rules"
)

var evidenceHeader = []string{
	"timestamp",
	"asset_id",
	"parent_id",
	"fault_type",
	"is_fault",
	"estimated_cost",
	"energy_kwh",
	"carbon_kg",
	"deviation",
	"deviation_unit",
}

// InputColumns returns the sorted union of input names across flags.
func InputColumns(flags []rules.FaultFlag) []string {
	seen := make(map[string]struct{})
	for _, flag := range flags {
		for name := range flag.Inputs {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteEvidenceCSV writes one row per flag followed by its inputs.
// Missing inputs are left blank.
func WriteEvidenceCSV(w io.Writer, flags []rules.FaultFlag) error {
	writer := csv.NewWriter(w)
	inputs := InputColumns(flags)
	header := append(append([]string{}, evidenceHeader...), inputs...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, flag := range flags {
		row := []string{
			flag.At.Format(time.RFC3339),
			flag.AssetID,
			flag.ParentID,
			string(flag.FaultType),
			strconv.FormatBool(flag.IsFault),
			formatFloat(flag.EstimatedCost),
			formatFloat(flag.EnergyKWh),
			formatFloat(flag.CarbonKg),
			formatFloat(flag.Deviation),
			flag.DeviationUnit,
		}
		for _, name := range inputs {
			value, ok := flag.Inputs[name]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatFloat(value))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
