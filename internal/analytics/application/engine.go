package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hvac-insight/internal/analytics/domain/align"
	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/analytics/domain/summary"
	"hvac-insight/internal/observability/metrics"
	telemetry "hvac-insight/internal/telemetry/domain"
)

const (
	// HourBucket is used by the power/status domain.
	HourBucket = time.Hour
	// QuarterBucket is used by the temperature, valve, airflow and chiller domains.
	QuarterBucket = 15 * time.Minute
)

// requiredKinds lists the streams each fault type cannot be evaluated without.
var requiredKinds = map[rules.FaultType][]telemetry.StreamKind{
	rules.GhostRunning:     {telemetry.KindPower, telemetry.KindStatus},
	rules.Overcooling:      {telemetry.KindRoomTemp, telemetry.KindSetpoint, telemetry.KindValvePosition},
	rules.AHUExcessAirflow: {telemetry.KindAHUStatus, telemetry.KindAirflowPct, telemetry.KindRoomTemp, telemetry.KindSetpoint},
	rules.ChillerLowDeltaT: {telemetry.KindCHWSupplyTemp, telemetry.KindCHWReturnTemp},
	rules.ZoneOvercool:     {telemetry.KindRoomTemp, telemetry.KindSetpoint, telemetry.KindOccupancy},
}

// RequiredKinds returns the streams a fault type needs.
func RequiredKinds(faultType rules.FaultType) []telemetry.StreamKind {
	kinds := requiredKinds[faultType]
	out := make([]telemetry.StreamKind, len(kinds))
	copy(out, kinds)
	return out
}

// CycleResult is the immutable outcome of one refresh cycle.
type CycleResult struct {
	ID          string                       `json:"id"`
	StartedAt   time.Time                    `json:"started_at"`
	FinishedAt  time.Time                    `json:"finished_at"`
	Flags       []rules.FaultFlag            `json:"-"`
	Report      summary.Report               `json:"report"`
	Actions     []summary.Action             `json:"actions"`
	Unavailable []rules.FaultType            `json:"unavailable,omitempty"`
	Missing     []telemetry.StreamKind       `json:"missing,omitempty"`
	Readings    map[telemetry.StreamKind]int `json:"readings"`
}

// Available reports whether a fault type was evaluated.
func (r CycleResult) Available(faultType rules.FaultType) bool {
	for _, unavailable := range r.Unavailable {
		if unavailable == faultType {
			return false
		}
	}
	return true
}

// FlagsOf returns the flags of one fault type.
func (r CycleResult) FlagsOf(faultType rules.FaultType) []rules.FaultFlag {
	var out []rules.FaultFlag
	for _, flag := range r.Flags {
		if flag.FaultType == faultType {
			out = append(out, flag)
		}
	}
	return out
}

// Engine runs one detection cycle: fetch, align, evaluate, summarize.
type Engine struct {
	provider telemetry.FeedProvider
	location *time.Location
	clock    Clock
	newID    func() string
	logger   *zap.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLocation sets the zone used for bucket flooring and schedules.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithEngineClock overrides the clock.
func WithEngineClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDGenerator overrides cycle id generation.
func WithIDGenerator(next func() string) EngineOption {
	return func(e *Engine) {
		if next != nil {
			e.newID = next
		}
	}
}

// WithEngineLogger assigns a logger.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs an engine over a feed provider.
func NewEngine(provider telemetry.FeedProvider, opts ...EngineOption) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("analytics: nil feed provider")
	}
	e := &Engine{
		provider: provider,
		location: time.UTC,
		clock:    systemClock{},
		newID:    uuid.NewString,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	return e, nil
}

// Location returns the engine's time zone.
func (e *Engine) Location() *time.Location {
	if e == nil {
		return time.UTC
	}
	return e.location
}

// RunCycle evaluates every fault type whose feeds are present.
// A missing feed marks the dependent fault types unavailable; any other
// provider error fails the cycle.
func (e *Engine) RunCycle(ctx context.Context, profile rules.Profile) (CycleResult, error) {
	if e == nil {
		return CycleResult{}, errors.New("analytics: nil engine")
	}
	if err := profile.Validate(); err != nil {
		return CycleResult{}, err
	}
	result := CycleResult{
		ID:        e.newID(),
		StartedAt: e.clock.Now(),
		Readings:  make(map[telemetry.StreamKind]int),
	}
	logger := e.logger.With(zap.String("cycle_id", result.ID))

	streams := make(map[telemetry.StreamKind][]telemetry.SensorReading)
	missing := make(map[telemetry.StreamKind]bool)
	for _, kind := range telemetry.AllKinds {
		readings, err := e.provider.Latest(ctx, kind)
		if err != nil {
			if errors.Is(err, telemetry.ErrFeedMissing) {
				missing[kind] = true
				metrics.IncFeedMissing(string(kind))
				logger.Debug("stream unavailable", zap.String("stream", string(kind)), zap.Error(err))
				continue
			}
			return CycleResult{}, fmt.Errorf("analytics: read %s: %w", kind, err)
		}
		streams[kind] = readings
		result.Readings[kind] = len(readings)
		metrics.SetFeedReadings(string(kind), len(readings))
	}
	for _, kind := range telemetry.AllKinds {
		if missing[kind] {
			result.Missing = append(result.Missing, kind)
		}
	}

	available := func(faultType rules.FaultType) bool {
		for _, kind := range requiredKinds[faultType] {
			if missing[kind] {
				return false
			}
		}
		return true
	}
	gather := func(kinds ...telemetry.StreamKind) []telemetry.SensorReading {
		var out []telemetry.SensorReading
		for _, kind := range kinds {
			out = append(out, streams[kind]...)
		}
		return out
	}

	var flags []rules.FaultFlag
	for _, faultType := range rules.FaultTypes {
		if !available(faultType) {
			result.Unavailable = append(result.Unavailable, faultType)
			continue
		}
		typed, err := e.evaluate(faultType, gather, !missing[telemetry.KindOccupancy], profile)
		if err != nil {
			return CycleResult{}, err
		}
		flags = append(flags, typed...)
	}

	result.Flags = flags
	result.Report = summary.Summarize(flags, profile.Defaults)
	result.Report.MarkUnavailable(result.Unavailable...)
	result.Actions = summary.GroupActions(flags, profile.Defaults)
	result.FinishedAt = e.clock.Now()

	logger.Info("cycle evaluated",
		zap.Int("flags", len(flags)),
		zap.Int("faults", len(rules.Faults(flags))),
		zap.Float64("total_cost", result.Report.TotalCost),
		zap.Int("unavailable", len(result.Unavailable)),
	)
	return result, nil
}

func (e *Engine) evaluate(faultType rules.FaultType, gather func(...telemetry.StreamKind) []telemetry.SensorReading, occupancy bool, profile rules.Profile) ([]rules.FaultFlag, error) {
	switch faultType {
	case rules.GhostRunning:
		spec := align.NewSpec(HourBucket, e.location, telemetry.KindPower, telemetry.KindStatus)
		intervals, err := align.Align(gather(spec.Kinds()...), spec)
		if err != nil {
			return nil, err
		}
		return rules.GhostRunningFlags(intervals, spec.Bucket, profile), nil
	case rules.Overcooling:
		spec := align.NewSpec(QuarterBucket, e.location, telemetry.KindRoomTemp, telemetry.KindSetpoint, telemetry.KindValvePosition)
		intervals, err := align.Align(gather(spec.Kinds()...), spec)
		if err != nil {
			return nil, err
		}
		return rules.OvercoolingFlags(intervals, spec.Bucket, profile), nil
	case rules.AHUExcessAirflow:
		ahuSpec := align.NewSpec(QuarterBucket, e.location, telemetry.KindAHUStatus, telemetry.KindAirflowPct)
		ahus, err := align.Align(gather(ahuSpec.Kinds()...), ahuSpec)
		if err != nil {
			return nil, err
		}
		zoneKinds := []telemetry.StreamKind{telemetry.KindRoomTemp, telemetry.KindSetpoint}
		if occupancy {
			zoneKinds = append(zoneKinds, telemetry.KindOccupancy)
		}
		zoneSpec := align.NewSpec(QuarterBucket, e.location, zoneKinds...)
		zones, err := align.Align(gather(zoneKinds...), zoneSpec)
		if err != nil {
			return nil, err
		}
		return rules.AHUExcessAirflowFlags(ahus, zones, QuarterBucket, profile), nil
	case rules.ChillerLowDeltaT:
		spec := align.NewSpec(QuarterBucket, e.location, telemetry.KindCHWSupplyTemp, telemetry.KindCHWReturnTemp)
		intervals, err := align.Align(gather(spec.Kinds()...), spec)
		if err != nil {
			return nil, err
		}
		return rules.ChillerLowDeltaTFlags(intervals, spec.Bucket, profile), nil
	case rules.ZoneOvercool:
		spec := align.NewSpec(QuarterBucket, e.location, telemetry.KindRoomTemp, telemetry.KindSetpoint, telemetry.KindOccupancy)
		intervals, err := align.Align(gather(spec.Kinds()...), spec)
		if err != nil {
			return nil, err
		}
		return rules.ZoneOvercoolFlags(intervals, spec.Bucket, profile), nil
	default:
		return nil, fmt.Errorf("analytics: unknown fault type %s", faultType)
	}
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
