package apihttp

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/observability/metrics"
	"hvac-insight/internal/reporting"
)

func exportName(prefix, ext string, date time.Time) string {
	if date.IsZero() {
		return prefix + "." + ext
	}
	return prefix + "_" + date.Format("2006-01-02") + "." + ext
}

func writeAttachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// EvidenceCSVHandler exports evaluated rows as CSV.
type EvidenceCSVHandler struct {
	session Session
	logger  *zap.Logger
}

// NewEvidenceCSVHandler constructs an EvidenceCSVHandler.
func NewEvidenceCSVHandler(session Session, logger *zap.Logger) *EvidenceCSVHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvidenceCSVHandler{session: session, logger: logger}
}

// ServeHTTP handles GET /api/v1/exports/evidence.csv?type=&faults_only=.
func (h *EvidenceCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	snapshot, err := h.session.Snapshot()
	if err != nil {
		metrics.ObserveExport("csv", metrics.ResultError, time.Since(started))
		writeSessionError(w, err)
		return
	}
	faultType := rules.FaultType(r.URL.Query().Get("type"))
	if faultType != "" && !faultType.Valid() {
		http.Error(w, "unknown fault type", http.StatusBadRequest)
		return
	}
	faultsOnly, _ := strconv.ParseBool(r.URL.Query().Get("faults_only"))

	flags := make([]rules.FaultFlag, 0, len(snapshot.Result.Flags))
	for _, flag := range snapshot.Result.Flags {
		if faultType != "" && flag.FaultType != faultType {
			continue
		}
		if faultsOnly && !flag.IsFault {
			continue
		}
		flags = append(flags, flag)
	}

	var buf bytes.Buffer
	if err := reporting.WriteEvidenceCSV(&buf, flags); err != nil {
		metrics.ObserveExport("csv", metrics.ResultError, time.Since(started))
		h.logger.Error("evidence export failed", zap.Error(err))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("csv", metrics.ResultSuccess, time.Since(started))
	writeAttachment(w, "text/csv", exportName("evidence", "csv", snapshot.Result.Report.Date), buf.Bytes())
}

// DailyPDFHandler renders the one-page daily report.
type DailyPDFHandler struct {
	session  Session
	currency string
	logger   *zap.Logger
}

// NewDailyPDFHandler constructs a DailyPDFHandler.
func NewDailyPDFHandler(session Session, currency string, logger *zap.Logger) *DailyPDFHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyPDFHandler{session: session, currency: currency, logger: logger}
}

// ServeHTTP handles GET /api/v1/exports/daily.pdf.
func (h *DailyPDFHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	started := time.Now()
	snapshot, err := h.session.Snapshot()
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(started))
		writeSessionError(w, err)
		return
	}
	body, err := reporting.BuildDailyPDF(snapshot.Result.Report, h.currency)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(started))
		h.logger.Error("pdf export failed", zap.Error(err))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(started))
	writeAttachment(w, "application/pdf", exportName("daily_report", "pdf", snapshot.Result.Report.Date), body)
}

// WorkbookHandler renders the multi-sheet workbook.
type WorkbookHandler struct {
	session  Session
	currency string
	logger   *zap.Logger
}

// NewWorkbookHandler constructs a WorkbookHandler.
func NewWorkbookHandler(session Session, currency string, logger *zap.Logger) *WorkbookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkbookHandler{session: session, currency: currency, logger: logger}
}

// ServeHTTP handles GET /api/v1/exports/daily.xlsx.
func (h *WorkbookHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	started := time.Now()
	snapshot, err := h.session.Snapshot()
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(started))
		writeSessionError(w, err)
		return
	}
	body, err := reporting.BuildWorkbook(snapshot.Result.Report, snapshot.Result.Flags, h.currency)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(started))
		h.logger.Error("workbook export failed", zap.Error(err))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(started))
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		exportName("hvac_report", "xlsx", snapshot.Result.Report.Date), body)
}
