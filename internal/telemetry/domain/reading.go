package telemetry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrFeedMissing is returned when a required stream has no readable source this cycle.
var ErrFeedMissing = errors.New("telemetry: feed missing")

// StreamKind names a sensor stream.
type StreamKind string

const (
	KindPower         StreamKind = "power"
	KindStatus        StreamKind = "status"
	KindRoomTemp      StreamKind = "room_temp"
	KindSetpoint      StreamKind = "setpoint"
	KindValvePosition StreamKind = "valve_position"
	KindAirflowPct    StreamKind = "airflow_pct"
	KindAHUStatus     StreamKind = "ahu_status"
	KindCHWSupplyTemp StreamKind = "chw_supply_temp"
	KindCHWReturnTemp StreamKind = "chw_return_temp"
	KindOccupancy     StreamKind = "occupancy"
)

// AllKinds lists every supported stream kind in export order.
var AllKinds = []StreamKind{
	KindPower,
	KindStatus,
	KindRoomTemp,
	KindSetpoint,
	KindValvePosition,
	KindAirflowPct,
	KindAHUStatus,
	KindCHWSupplyTemp,
	KindCHWReturnTemp,
	KindOccupancy,
}

// Valid returns true when the kind is supported.
func (k StreamKind) Valid() bool {
	for _, kind := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ParseStreamKind normalizes a configured kind name.
func ParseStreamKind(value string) (StreamKind, bool) {
	kind := StreamKind(strings.ToLower(strings.TrimSpace(value)))
	if !kind.Valid() {
		return "", false
	}
	return kind, true
}

// SensorReading is one raw sample from a feed.
type SensorReading struct {
	At       time.Time
	AssetID  string
	ParentID string
	Kind     StreamKind
	Value    float64
}

// FeedProvider returns the latest ordered readings for a stream kind.
// Implementations return ErrFeedMissing when the source is absent or unreadable.
type FeedProvider interface {
	Latest(ctx context.Context, kind StreamKind) ([]SensorReading, error)
}

// SortReadings orders readings by time, asset and kind.
func SortReadings(readings []SensorReading) {
	sort.SliceStable(readings, func(i, j int) bool {
		if !readings[i].At.Equal(readings[j].At) {
			return readings[i].At.Before(readings[j].At)
		}
		if readings[i].AssetID != readings[j].AssetID {
			return readings[i].AssetID < readings[j].AssetID
		}
		return readings[i].Kind < readings[j].Kind
	})
}
