package reporting

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/analytics/domain/summary"
)

func sampleFlags() []rules.FaultFlag {
	at := time.Date(2026, 1, 26, 23, 0, 0, 0, time.UTC)
	return []rules.FaultFlag{
		{At: at, AssetID: "AHU-1", FaultType: rules.GhostRunning, IsFault: true, EstimatedCost: 60, EnergyKWh: 5, CarbonKg: 3.55, Deviation: 5, DeviationUnit: rules.UnitKW, BucketHours: 1, Inputs: map[string]float64{"power": 5, "status": 1}},
		{At: at, AssetID: "Z1", ParentID: "AHU-1", FaultType: rules.Overcooling, Deviation: 0.5, DeviationUnit: rules.UnitCelsius, BucketHours: 0.25, Inputs: map[string]float64{"room_temp": 21.5, "setpoint": 22}},
	}
}

func sampleReport() summary.Report {
	return summary.Report{
		Date:        time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC),
		TotalCost:   1234567,
		Last24h:     4500,
		Previous24h: 3000,
		Types: []summary.TypeSummary{
			{FaultType: rules.GhostRunning, Label: "Ghost Running", Available: true, Count: 1, TotalCost: 60},
		},
		TopActions: []summary.Action{
			{ID: "ghost_running:AHU-1", FaultType: rules.GhostRunning, Label: "Ghost Running", AssetID: "AHU-1", Count: 1, Cost: 60, Severity: summary.SeverityLow},
		},
	}
}

func TestWriteEvidenceCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvidenceCSV(&buf, sampleFlags()); err != nil {
		t.Fatalf("write: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	header := records[0]
	wantTail := []string{"power", "room_temp", "setpoint", "status"}
	tail := header[len(header)-len(wantTail):]
	for i := range wantTail {
		if tail[i] != wantTail[i] {
			t.Fatalf("expected input columns %v, got %v", wantTail, tail)
		}
	}
	ghost := records[1]
	if ghost[3] != "ghost_running" || ghost[4] != "true" || ghost[5] != "60" {
		t.Fatalf("unexpected ghost row %v", ghost)
	}
	if ghost[len(ghost)-3] != "" {
		t.Fatalf("expected blank room_temp for ghost row, got %q", ghost[len(ghost)-3])
	}
	over := records[2]
	if over[2] != "AHU-1" || over[4] != "false" || over[8] != "0.5" {
		t.Fatalf("unexpected overcooling row %v", over)
	}
}

func TestWriteEvidenceCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvidenceCSV(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("expected header only, got %q", buf.String())
	}
}

func TestBuildWorkbook(t *testing.T) {
	data, err := BuildWorkbook(sampleReport(), sampleFlags(), "INR")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if got, _ := f.GetCellValue(sheetSummary, "B6"); got != "1234567" {
		t.Fatalf("expected total loss 1234567, got %q", got)
	}
	rows, err := f.GetRows(sheetEvidence)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 evidence rows, got %d", len(rows))
	}
	if got, _ := f.GetCellValue(sheetActions, "B2"); got != "AHU-1" {
		t.Fatalf("expected action asset AHU-1, got %q", got)
	}
}

func TestBuildDailyPDF(t *testing.T) {
	data, err := BuildDailyPDF(sampleReport(), "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("expected PDF header")
	}
	empty := sampleReport()
	empty.TopActions = nil
	if _, err := BuildDailyPDF(empty, "INR"); err != nil {
		t.Fatalf("build empty: %v", err)
	}
}

func TestGroupThousands(t *testing.T) {
	cases := map[float64]string{0: "0", 999.9: "999", 1000: "1,000", 1234567: "1,234,567", -4500: "-4,500"}
	for in, want := range cases {
		if got := groupThousands(in); got != want {
			t.Fatalf("groupThousands(%v): expected %s, got %s", in, want, got)
		}
	}
}
