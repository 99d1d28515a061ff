package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	alarmsapp "hvac-insight/internal/alarms/application"
	alarmshttp "hvac-insight/internal/alarms/interfaces/http"
	"hvac-insight/internal/analytics/application"
	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/audit"
	"hvac-insight/internal/telemetry/infrastructure/archive"
	"hvac-insight/internal/telemetry/infrastructure/csvfeed"
)

// Session is the monitor surface the API reads and drives.
type Session interface {
	Snapshot() (application.Snapshot, error)
	Refresh(ctx context.Context, reason string) (application.Snapshot, error)
	Acknowledge(actionID, by string) (application.Ack, error)
	Profile() rules.Profile
	UpdateProfile(profile rules.Profile) error
	Archive(ctx context.Context) (archive.Summary, error)
}

// DispatchLog exposes recent alert deliveries.
type DispatchLog interface {
	Recent() []alarmsapp.Result
}

// SourceLister exposes the files the feeds were read from.
type SourceLister interface {
	Sources() []csvfeed.FileInfo
}

// AuditLog records and lists state-changing requests.
type AuditLog interface {
	audit.Logger
	Recent(limit int) []audit.Entry
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Deps wires the router.
type Deps struct {
	Session        Session
	Dispatches     DispatchLog
	Sources        SourceLister
	Broker         *alarmshttp.SSEBroker
	Audit          AuditLog
	Currency       string
	ReportCurrency string
	Clock          Clock
	Logger         *zap.Logger
}

// NewRouter registers every API route.
func NewRouter(deps Deps) (*mux.Router, error) {
	if deps.Session == nil {
		return nil, errors.New("apihttp: nil session")
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.With(zap.String("component", "api"))

	r := mux.NewRouter()
	r.Handle("/healthz", NewHealthHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Handle("/overview", NewOverviewHandler(deps.Session, deps.Clock)).Methods(http.MethodGet)
	api.Handle("/faults", NewFaultsHandler(deps.Session)).Methods(http.MethodGet)
	api.Handle("/actions", NewActionsHandler(deps.Session)).Methods(http.MethodGet)
	api.Handle("/actions/{id}/ack", NewAckHandler(deps.Session, deps.Audit)).Methods(http.MethodPost)
	api.Handle("/refresh", NewRefreshHandler(deps.Session, deps.Audit)).Methods(http.MethodPost)
	api.Handle("/archive", NewArchiveHandler(deps.Session, deps.Audit)).Methods(http.MethodPost)
	api.Handle("/alerts", NewAlertsHandler(deps.Session, deps.Dispatches)).Methods(http.MethodGet)
	if deps.Broker != nil {
		api.Handle("/alerts/stream", alarmshttp.NewStreamHandler(deps.Broker)).Methods(http.MethodGet)
	}
	thresholds := NewThresholdsHandler(deps.Session, deps.Audit, deps.Logger)
	api.Handle("/thresholds", thresholds).Methods(http.MethodGet, http.MethodPut)
	api.Handle("/audit", NewAuditHandler(deps.Audit)).Methods(http.MethodGet)
	api.Handle("/sources", NewSourcesHandler(deps.Sources)).Methods(http.MethodGet)

	api.Handle("/exports/evidence.csv", NewEvidenceCSVHandler(deps.Session, deps.Logger)).Methods(http.MethodGet)
	api.Handle("/exports/daily.pdf", NewDailyPDFHandler(deps.Session, deps.ReportCurrency, deps.Logger)).Methods(http.MethodGet)
	api.Handle("/exports/daily.xlsx", NewWorkbookHandler(deps.Session, deps.Currency, deps.Logger)).Methods(http.MethodGet)
	return r, nil
}
