package apihttp

import (
	"net/http"
	"sort"
	"time"

	alarms "hvac-insight/internal/alarms/domain"
	"hvac-insight/internal/analytics/application"
	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/analytics/domain/summary"
	"hvac-insight/internal/auth"
)

const (
	viewManager  = "manager"
	viewOperator = "operator"

	operatorEvidenceLimit = 50
)

type managerView struct {
	View              string                            `json:"view"`
	CycleID           string                            `json:"cycle_id"`
	RefreshedAt       time.Time                         `json:"refreshed_at"`
	LatestAt          time.Time                         `json:"latest_at"`
	FreshnessSeconds  *float64                          `json:"freshness_seconds"`
	TotalCost         float64                           `json:"total_cost"`
	MonthlyProjection float64                           `json:"monthly_projection"`
	Last24h           float64                           `json:"last_24h"`
	Previous24h       float64                           `json:"previous_24h"`
	EnergyKWh         float64                           `json:"energy_kwh"`
	CarbonKg          float64                           `json:"carbon_kg"`
	Types             []summary.TypeSummary             `json:"types"`
	TopActions        []summary.Action                  `json:"top_actions"`
	TopAssets         []summary.AssetTotal              `json:"top_assets"`
	Wallboard         summary.Wallboard                 `json:"wallboard"`
	Alerts            map[rules.FaultType]alarms.Status `json:"alerts"`
	Unavailable       []rules.FaultType                 `json:"unavailable"`
}

type operatorAction struct {
	summary.Action
	CheckSequence []string `json:"check_sequence"`
	Signals       []string `json:"signals"`
}

type operatorView struct {
	View             string                            `json:"view"`
	CycleID          string                            `json:"cycle_id"`
	LatestAt         time.Time                         `json:"latest_at"`
	FreshnessSeconds *float64                          `json:"freshness_seconds"`
	OffStart         int                               `json:"off_start"`
	OffEnd           int                               `json:"off_end"`
	Types            []summary.TypeSummary             `json:"types"`
	Actions          []operatorAction                  `json:"actions"`
	Evidence         []rules.FaultFlag                 `json:"evidence"`
	Alerts           map[rules.FaultType]alarms.Status `json:"alerts"`
	Unavailable      []rules.FaultType                 `json:"unavailable"`
}

// OverviewHandler renders the manager or operator dashboard payload.
type OverviewHandler struct {
	session Session
	clock   Clock
}

// NewOverviewHandler constructs an OverviewHandler.
func NewOverviewHandler(session Session, clock Clock) *OverviewHandler {
	if clock == nil {
		clock = systemClock{}
	}
	return &OverviewHandler{session: session, clock: clock}
}

// ServeHTTP handles GET /api/v1/overview?view=manager|operator.
func (h *OverviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	switch view {
	case "":
		view = defaultView(auth.RoleFromContext(r.Context()))
	case viewManager, viewOperator:
	default:
		http.Error(w, "view must be manager or operator", http.StatusBadRequest)
		return
	}

	snapshot, err := h.session.Snapshot()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	freshness := freshnessSeconds(snapshot.Result.Report.LatestAt, h.clock.Now())
	if view == viewOperator {
		writeJSON(w, http.StatusOK, buildOperatorView(snapshot, h.session.Profile(), freshness))
		return
	}
	writeJSON(w, http.StatusOK, buildManagerView(snapshot, freshness))
}

// defaultView picks the dashboard for a role. Without auth the manager view is shown.
func defaultView(role auth.Role) string {
	switch role {
	case auth.RoleViewer, auth.RoleOperator:
		return viewOperator
	default:
		return viewManager
	}
}

func freshnessSeconds(latest, now time.Time) *float64 {
	if latest.IsZero() {
		return nil
	}
	seconds := now.Sub(latest).Seconds()
	if seconds < 0 {
		seconds = 0
	}
	return &seconds
}

func buildManagerView(snapshot application.Snapshot, freshness *float64) managerView {
	report := snapshot.Result.Report
	return managerView{
		View:              viewManager,
		CycleID:           snapshot.Result.ID,
		RefreshedAt:       snapshot.Result.FinishedAt,
		LatestAt:          report.LatestAt,
		FreshnessSeconds:  freshness,
		TotalCost:         report.TotalCost,
		MonthlyProjection: report.MonthlyProjection,
		Last24h:           report.Last24h,
		Previous24h:       report.Previous24h,
		EnergyKWh:         report.EnergyKWh,
		CarbonKg:          report.CarbonKg,
		Types:             report.Types,
		TopActions:        ackedTop(report.TopActions, snapshot.Result.Actions),
		TopAssets:         report.TopAssets,
		Wallboard:         report.Wallboard,
		Alerts:            snapshot.Alerts,
		Unavailable:       nonNil(snapshot.Result.Unavailable),
	}
}

func buildOperatorView(snapshot application.Snapshot, profile rules.Profile, freshness *float64) operatorView {
	actions := make([]operatorAction, 0, len(snapshot.Result.Actions))
	for _, action := range snapshot.Result.Actions {
		playbook := summary.PlaybookFor(action.FaultType)
		actions = append(actions, operatorAction{
			Action:        action,
			CheckSequence: playbook.CheckSequence,
			Signals:       playbook.Signals,
		})
	}
	return operatorView{
		View:             viewOperator,
		CycleID:          snapshot.Result.ID,
		LatestAt:         snapshot.Result.Report.LatestAt,
		FreshnessSeconds: freshness,
		OffStart:         profile.Defaults.OffStart,
		OffEnd:           profile.Defaults.OffEnd,
		Types:            snapshot.Result.Report.Types,
		Actions:          actions,
		Evidence:         latestFaults(snapshot.Result.Flags, operatorEvidenceLimit),
		Alerts:           snapshot.Alerts,
		Unavailable:      nonNil(snapshot.Result.Unavailable),
	}
}

// ackedTop copies acknowledgement marks from the full action list onto the top actions.
func ackedTop(top, all []summary.Action) []summary.Action {
	acked := make(map[string]bool, len(all))
	for _, action := range all {
		if action.Acknowledged {
			acked[action.ID] = true
		}
	}
	out := make([]summary.Action, len(top))
	copy(out, top)
	for i := range out {
		out[i].Acknowledged = out[i].Acknowledged || acked[out[i].ID]
	}
	return out
}

// latestFaults returns up to limit fault rows, newest first.
func latestFaults(flags []rules.FaultFlag, limit int) []rules.FaultFlag {
	out := rules.Faults(flags)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []rules.FaultFlag{}
	}
	return out
}

func nonNil(types []rules.FaultType) []rules.FaultType {
	if types == nil {
		return []rules.FaultType{}
	}
	return types
}
