package reporting

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"hvac-insight/internal/analytics/domain/summary"
)

// AdvisoryFooter is printed at the bottom of every daily report.
const AdvisoryFooter = "Advisory analytics only. No automated control actions performed."

// BuildDailyPDF renders the one-page daily report. The core PDF fonts only
// carry Latin-1, so currency should be a code such as "Rs." or "INR".
func BuildDailyPDF(report summary.Report, currency string) ([]byte, error) {
	if currency == "" {
		currency = "Rs."
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, AdvisoryFooter, "", 0, "L", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 8, "HVAC ENERGY DAILY REPORT")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", report.Date.Format("2006-01-02")))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Last 24h: %s %s", currency, groupThousands(report.Last24h)))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Yesterday: %s %s", currency, groupThousands(report.Previous24h)))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Monthly projection: %s %s", currency, groupThousands(report.MonthlyProjection)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "I", 9)
	pdf.Cell(0, 6, "Top actions below represent the largest contributors to the loss, not the full sum.")
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 6, "Top Actions")
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Asset", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Loss ("+currency+")", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	if len(report.TopActions) == 0 {
		pdf.CellFormat(180, 6, "No faults detected.", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	for _, action := range report.TopActions {
		pdf.CellFormat(60, 6, action.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, action.AssetID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, action.Severity, "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, groupThousands(action.Cost), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// groupThousands truncates to whole units and inserts thousands separators.
func groupThousands(value float64) string {
	whole := int64(value)
	sign := ""
	if whole < 0 {
		sign = "-"
		whole = -whole
	}
	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
