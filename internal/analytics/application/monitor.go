package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alarmsapp "hvac-insight/internal/alarms/application"
	alarms "hvac-insight/internal/alarms/domain"
	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/analytics/domain/summary"
	"hvac-insight/internal/observability/metrics"
	"hvac-insight/internal/telemetry/infrastructure/archive"
)

var (
	// ErrNoCycle is returned before the first successful cycle.
	ErrNoCycle = errors.New("analytics: no completed cycle")
	// ErrActionNotFound is returned when acknowledging an unknown action.
	ErrActionNotFound = errors.New("analytics: action not found")
	// ErrArchiveDisabled is returned when no archiver is configured.
	ErrArchiveDisabled = errors.New("analytics: archiving disabled")
)

// AlertDispatcher sends alerts without blocking the cycle.
type AlertDispatcher interface {
	Dispatch(alert alarms.Alert)
}

// EventPublisher pushes live events to connected dashboards.
type EventPublisher interface {
	Publish(event string, v any) error
}

// Archiver moves stale feed files aside.
type Archiver interface {
	Run(ctx context.Context) (archive.Summary, error)
}

// ProfileStore persists threshold changes.
type ProfileStore func(profile rules.Profile) error

// Ack records an acknowledged action.
type Ack struct {
	ActionID string    `json:"action_id"`
	By       string    `json:"by,omitempty"`
	At       time.Time `json:"at"`
}

// Snapshot is a read-only view of the session after the last cycle.
type Snapshot struct {
	Result      CycleResult                       `json:"cycle"`
	Alerts      map[rules.FaultType]alarms.Status `json:"alerts"`
	Transitions []alarms.Transition               `json:"transitions,omitempty"`
	Acks        []Ack                             `json:"acks,omitempty"`
	Archive     *archive.Summary                  `json:"archive,omitempty"`
}

// Monitor owns the session: alert state, acknowledgements and the last result.
// Cycles are serialized; readers get copies.
type Monitor struct {
	engine     *Engine
	dispatcher AlertDispatcher
	publisher  EventPublisher
	archiver   Archiver
	archiveOn  bool
	store      ProfileStore
	clock      Clock
	logger     *zap.Logger

	cycleMu sync.Mutex

	mu      sync.RWMutex
	profile rules.Profile
	state   alarms.AlertState
	acks    map[string]Ack
	last    *Snapshot
	lastArc *archive.Summary
}

// MonitorOption configures the monitor.
type MonitorOption func(*Monitor)

// WithDispatcher routes fired alerts.
func WithDispatcher(dispatcher AlertDispatcher) MonitorOption {
	return func(m *Monitor) {
		m.dispatcher = dispatcher
	}
}

// WithPublisher pushes cycle events.
func WithPublisher(publisher EventPublisher) MonitorOption {
	return func(m *Monitor) {
		m.publisher = publisher
	}
}

// WithArchiver enables archiving; onRefresh also runs it before each cycle.
func WithArchiver(archiver Archiver, onRefresh bool) MonitorOption {
	return func(m *Monitor) {
		m.archiver = archiver
		m.archiveOn = onRefresh
	}
}

// WithProfileStore persists accepted threshold updates.
func WithProfileStore(store ProfileStore) MonitorOption {
	return func(m *Monitor) {
		m.store = store
	}
}

// WithMonitorClock overrides the clock.
func WithMonitorClock(clock Clock) MonitorOption {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithMonitorLogger assigns a logger.
func WithMonitorLogger(logger *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor constructs a monitor. The profile must validate.
func NewMonitor(engine *Engine, profile rules.Profile, opts ...MonitorOption) (*Monitor, error) {
	if engine == nil {
		return nil, errors.New("analytics: nil engine")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		engine:  engine,
		profile: profile.Clone(),
		state:   alarms.NewAlertState(),
		acks:    make(map[string]Ack),
		clock:   systemClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "monitor"))
	return m, nil
}

// Refresh runs one cycle. On failure the previous result and alert state are kept.
func (m *Monitor) Refresh(ctx context.Context, reason string) (Snapshot, error) {
	if m == nil {
		return Snapshot{}, errors.New("analytics: nil monitor")
	}
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	logger := m.logger.With(zap.String("reason", reason))
	if m.archiver != nil && m.archiveOn {
		if _, err := m.archiveLocked(ctx); err != nil {
			logger.Warn("archive before cycle failed", zap.Error(err))
		}
	}

	m.mu.RLock()
	profile := m.profile.Clone()
	state := m.state
	m.mu.RUnlock()

	start := time.Now()
	result, err := m.engine.RunCycle(ctx, profile)
	if err != nil {
		metrics.ObserveCycle(metrics.ResultError, time.Since(start))
		logger.Warn("cycle failed", zap.Error(err))
		return Snapshot{}, err
	}
	metrics.ObserveCycle(metrics.ResultSuccess, time.Since(start))

	next, transitions := alarms.Step(state, alarms.Conditions(result.Report, profile.Defaults.Alerts))
	for _, s := range result.Report.Types {
		if s.Available {
			metrics.SetFaults(string(s.FaultType), s.Count, s.TotalCost)
		}
	}
	for faultType, status := range next.Snapshot() {
		metrics.SetAlertActive(string(faultType), status == alarms.StatusActive)
	}

	m.mu.Lock()
	m.state = next
	m.last = &Snapshot{
		Result:      result,
		Alerts:      next.Snapshot(),
		Transitions: transitions,
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	for _, faultType := range alarms.Fired(transitions) {
		alert, err := alarms.NewAlert(uuid.NewString(), result.ID, faultType, result.Report, m.clock.Now())
		if err != nil {
			logger.Warn("build alert failed", zap.String("fault_type", string(faultType)), zap.Error(err))
			continue
		}
		logger.Info("alert raised", zap.String("fault_type", string(faultType)), zap.Float64("total_cost", alert.TotalCost))
		if m.dispatcher != nil {
			m.dispatcher.Dispatch(alert)
		}
	}
	m.publish("cycle", map[string]any{
		"cycle_id":    result.ID,
		"reason":      reason,
		"latest_at":   result.Report.LatestAt,
		"total_cost":  result.Report.TotalCost,
		"alerts":      snapshot.Alerts,
		"unavailable": result.Unavailable,
	})
	return snapshot, nil
}

// Snapshot returns the session view after the last successful cycle.
func (m *Monitor) Snapshot() (Snapshot, error) {
	if m == nil {
		return Snapshot{}, errors.New("analytics: nil monitor")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Snapshot{}, ErrNoCycle
	}
	return m.snapshotLocked(), nil
}

// snapshotLocked copies the last snapshot and applies acknowledgements.
func (m *Monitor) snapshotLocked() Snapshot {
	out := *m.last
	out.Result.Actions = applyAcks(out.Result.Actions, m.acks)
	out.Result.Report.TopActions = applyAcks(out.Result.Report.TopActions, m.acks)
	out.Alerts = make(map[rules.FaultType]alarms.Status, len(m.last.Alerts))
	for faultType, status := range m.last.Alerts {
		out.Alerts[faultType] = status
	}
	out.Acks = make([]Ack, 0, len(m.acks))
	for _, action := range out.Result.Actions {
		if ack, ok := m.acks[action.ID]; ok {
			out.Acks = append(out.Acks, ack)
		}
	}
	if m.lastArc != nil {
		arc := *m.lastArc
		out.Archive = &arc
	}
	return out
}

func applyAcks(actions []summary.Action, acks map[string]Ack) []summary.Action {
	out := make([]summary.Action, len(actions))
	copy(out, actions)
	for i := range out {
		_, out[i].Acknowledged = acks[out[i].ID]
	}
	return out
}

// Acknowledge marks an action handled for the rest of the session.
func (m *Monitor) Acknowledge(actionID, by string) (Ack, error) {
	if m == nil {
		return Ack{}, errors.New("analytics: nil monitor")
	}
	if _, _, ok := summary.ParseActionID(actionID); !ok {
		return Ack{}, ErrActionNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Ack{}, ErrNoCycle
	}
	found := false
	for _, action := range m.last.Result.Actions {
		if action.ID == actionID {
			found = true
			break
		}
	}
	if !found {
		return Ack{}, ErrActionNotFound
	}
	ack, ok := m.acks[actionID]
	if !ok {
		ack = Ack{ActionID: actionID, By: by, At: m.clock.Now()}
		m.acks[actionID] = ack
		m.logger.Info("action acknowledged", zap.String("action_id", actionID), zap.String("by", by))
	}
	return ack, nil
}

// Profile returns the active thresholds.
func (m *Monitor) Profile() rules.Profile {
	if m == nil {
		return rules.NewProfile(rules.Defaults())
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile.Clone()
}

// UpdateProfile validates and swaps the thresholds used by later cycles.
func (m *Monitor) UpdateProfile(profile rules.Profile) error {
	if m == nil {
		return errors.New("analytics: nil monitor")
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store(profile); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.profile = profile.Clone()
	m.mu.Unlock()
	m.logger.Info("thresholds updated", zap.Int("asset_overrides", len(profile.Assets)))
	return nil
}

// Archive runs the archiver under the cycle lock.
func (m *Monitor) Archive(ctx context.Context) (archive.Summary, error) {
	if m == nil {
		return archive.Summary{}, errors.New("analytics: nil monitor")
	}
	if m.archiver == nil {
		return archive.Summary{}, ErrArchiveDisabled
	}
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.archiveLocked(ctx)
}

func (m *Monitor) archiveLocked(ctx context.Context) (archive.Summary, error) {
	result, err := m.archiver.Run(ctx)
	if err != nil {
		return result, err
	}
	m.mu.Lock()
	m.lastArc = &result
	m.mu.Unlock()
	m.publish("archive", result)
	return result, nil
}

// ForwardResults relays dispatch outcomes to the live stream until ctx ends.
func (m *Monitor) ForwardResults(ctx context.Context, results <-chan alarmsapp.Result) {
	if m == nil || results == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			m.publish("dispatch", result)
		}
	}
}

func (m *Monitor) publish(event string, v any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(event, v); err != nil {
		m.logger.Debug("publish failed", zap.String("event", event), zap.Error(err))
	}
}
