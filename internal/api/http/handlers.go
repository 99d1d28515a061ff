package apihttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"hvac-insight/internal/analytics/application"
	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/audit"
	"hvac-insight/internal/auth"
)

const maxBodyBytes = 1 << 20

// writeJSON encodes before writing the header so an encode failure still answers 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, "encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeSessionError maps session errors to status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrNoCycle):
		http.Error(w, "no data yet: waiting for the first refresh", http.StatusServiceUnavailable)
	case errors.Is(err, application.ErrActionNotFound):
		http.Error(w, "action not found", http.StatusNotFound)
	case errors.Is(err, application.ErrArchiveDisabled):
		http.Error(w, "archiving disabled", http.StatusConflict)
	case errors.Is(err, rules.ErrConfigOutOfRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// recordAudit writes an audit entry for a state-changing request. Failures are logged only.
func recordAudit(trail AuditLog, logger *zap.Logger, r *http.Request, action, resourceType, resourceID string, metadata any) {
	if trail == nil {
		return
	}
	entry := audit.FromRequest(r, audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
		}
	}
	if err := trail.Log(r.Context(), entry); err != nil && logger != nil {
		logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

// HealthHandler answers liveness probes.
type HealthHandler struct{}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

// ServeHTTP handles GET /healthz.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// FaultsHandler lists evaluated rows.
type FaultsHandler struct {
	session Session
}

// NewFaultsHandler constructs a FaultsHandler.
func NewFaultsHandler(session Session) *FaultsHandler {
	return &FaultsHandler{session: session}
}

// ServeHTTP handles GET /api/v1/faults?type=&asset=&all=&limit=.
// Only fault rows are returned unless all=true.
func (h *FaultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.session.Snapshot()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	query := r.URL.Query()
	faultType := rules.FaultType(query.Get("type"))
	if faultType != "" && !faultType.Valid() {
		http.Error(w, "unknown fault type", http.StatusBadRequest)
		return
	}
	all, _ := strconv.ParseBool(query.Get("all"))
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	asset := query.Get("asset")

	out := make([]rules.FaultFlag, 0)
	for _, flag := range snapshot.Result.Flags {
		if !all && !flag.IsFault {
			continue
		}
		if faultType != "" && flag.FaultType != faultType {
			continue
		}
		if asset != "" && flag.AssetID != asset {
			continue
		}
		out = append(out, flag)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, http.StatusOK, out)
}

// ActionsHandler lists every ranked action.
type ActionsHandler struct {
	session Session
}

// NewActionsHandler constructs an ActionsHandler.
func NewActionsHandler(session Session) *ActionsHandler {
	return &ActionsHandler{session: session}
}

// ServeHTTP handles GET /api/v1/actions.
func (h *ActionsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	snapshot, err := h.session.Snapshot()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Result.Actions)
}

// AckHandler acknowledges one action.
type AckHandler struct {
	session Session
	audit   AuditLog
}

// NewAckHandler constructs an AckHandler.
func NewAckHandler(session Session, trail AuditLog) *AckHandler {
	return &AckHandler{session: session, audit: trail}
}

// ServeHTTP handles POST /api/v1/actions/{id}/ack.
func (h *AckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "action id required", http.StatusBadRequest)
		return
	}
	ack, err := h.session.Acknowledge(id, auth.SubjectFromContext(r.Context()))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	recordAudit(h.audit, nil, r, "action.ack", "action", id, nil)
	writeJSON(w, http.StatusOK, ack)
}

// RefreshHandler runs a cycle on demand.
type RefreshHandler struct {
	session Session
	audit   AuditLog
}

// NewRefreshHandler constructs a RefreshHandler.
func NewRefreshHandler(session Session, trail AuditLog) *RefreshHandler {
	return &RefreshHandler{session: session, audit: trail}
}

// ServeHTTP handles POST /api/v1/refresh.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.session.Refresh(r.Context(), "manual")
	if err != nil {
		http.Error(w, "refresh failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	recordAudit(h.audit, nil, r, "cycle.refresh", "cycle", snapshot.Result.ID, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"cycle_id":    snapshot.Result.ID,
		"latest_at":   snapshot.Result.Report.LatestAt,
		"total_cost":  snapshot.Result.Report.TotalCost,
		"alerts":      snapshot.Alerts,
		"unavailable": snapshot.Result.Unavailable,
	})
}

// ArchiveHandler archives stale feed files on demand.
type ArchiveHandler struct {
	session Session
	audit   AuditLog
}

// NewArchiveHandler constructs an ArchiveHandler.
func NewArchiveHandler(session Session, trail AuditLog) *ArchiveHandler {
	return &ArchiveHandler{session: session, audit: trail}
}

// ServeHTTP handles POST /api/v1/archive.
func (h *ArchiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summary, err := h.session.Archive(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	recordAudit(h.audit, nil, r, "archive.run", "archive", "", summary)
	writeJSON(w, http.StatusOK, summary)
}

// AlertsHandler reports alert states and recent deliveries.
type AlertsHandler struct {
	session    Session
	dispatches DispatchLog
}

// NewAlertsHandler constructs an AlertsHandler.
func NewAlertsHandler(session Session, dispatches DispatchLog) *AlertsHandler {
	return &AlertsHandler{session: session, dispatches: dispatches}
}

// ServeHTTP handles GET /api/v1/alerts.
func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	snapshot, err := h.session.Snapshot()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	body := map[string]any{
		"states":      snapshot.Alerts,
		"transitions": snapshot.Transitions,
		"recent":      []any{},
	}
	if h.dispatches != nil {
		body["recent"] = h.dispatches.Recent()
	}
	writeJSON(w, http.StatusOK, body)
}

// ThresholdsHandler reads and replaces the threshold profile.
type ThresholdsHandler struct {
	session Session
	audit   AuditLog
	logger  *zap.Logger
}

// NewThresholdsHandler constructs a ThresholdsHandler.
func NewThresholdsHandler(session Session, trail AuditLog, logger *zap.Logger) *ThresholdsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThresholdsHandler{session: session, audit: trail, logger: logger}
}

// ServeHTTP handles GET and PUT /api/v1/thresholds. PUT merges the body over the
// current profile, so omitted fields keep their values, then re-runs the cycle.
func (h *ThresholdsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, h.session.Profile())
		return
	}
	profile := h.session.Profile()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&profile); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.session.UpdateProfile(profile); err != nil {
		writeSessionError(w, err)
		return
	}
	recordAudit(h.audit, h.logger, r, "thresholds.update", "thresholds", "", profile)
	if _, err := h.session.Refresh(r.Context(), "thresholds"); err != nil {
		h.logger.Warn("refresh after threshold update failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, h.session.Profile())
}

// SourcesHandler lists the files each feed was read from.
type SourcesHandler struct {
	sources SourceLister
}

// NewSourcesHandler constructs a SourcesHandler.
func NewSourcesHandler(sources SourceLister) *SourcesHandler {
	return &SourcesHandler{sources: sources}
}

// ServeHTTP handles GET /api/v1/sources.
func (h *SourcesHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	if h.sources == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, h.sources.Sources())
}

// AuditHandler lists recent audit entries.
type AuditHandler struct {
	audit AuditLog
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(trail AuditLog) *AuditHandler {
	return &AuditHandler{audit: trail}
}

// ServeHTTP handles GET /api/v1/audit?limit=.
func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}
	writeJSON(w, http.StatusOK, h.audit.Recent(limit))
}
