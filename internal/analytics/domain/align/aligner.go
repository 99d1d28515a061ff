// Package align resamples independently sampled sensor streams onto a shared
// bucket grid and joins them into complete intervals.
package align

import (
	"errors"
	"math"
	"sort"
	"time"

	telemetry "hvac-insight/internal/telemetry/domain"
)

var (
	// ErrInvalidBucket is returned when the bucket does not evenly divide a day.
	ErrInvalidBucket = errors.New("align: invalid bucket")
	// ErrInvalidPolicy is returned for an unknown fill policy.
	ErrInvalidPolicy = errors.New("align: invalid fill policy")
	// ErrNoStreams is returned when a spec requires no streams.
	ErrNoStreams = errors.New("align: no streams required")
)

const day = 24 * time.Hour

// FillPolicy selects how a stream is resampled onto the bucket grid.
type FillPolicy string

const (
	// PolicyMean averages the raw samples that fall inside a bucket.
	PolicyMean FillPolicy = "mean"
	// PolicyForwardFill carries the last known value forward.
	PolicyForwardFill FillPolicy = "ffill"
	// PolicyInterpolate linearly interpolates at the bucket start.
	PolicyInterpolate FillPolicy = "interpolate"
)

// Valid returns true for supported policies.
func (p FillPolicy) Valid() bool {
	switch p {
	case PolicyMean, PolicyForwardFill, PolicyInterpolate:
		return true
	default:
		return false
	}
}

// DefaultPolicy returns the fill policy used for a stream kind.
func DefaultPolicy(kind telemetry.StreamKind) FillPolicy {
	switch kind {
	case telemetry.KindPower:
		return PolicyMean
	case telemetry.KindRoomTemp, telemetry.KindAirflowPct, telemetry.KindCHWSupplyTemp, telemetry.KindCHWReturnTemp:
		return PolicyInterpolate
	default:
		return PolicyForwardFill
	}
}

// Sample is a single timestamped value.
type Sample struct {
	At    time.Time
	Value float64
}

// Stream is one resampling input.
type Stream struct {
	Kind    telemetry.StreamKind
	Policy  FillPolicy
	Samples []Sample
}

// Window bounds the bucket grid as [Start, End). A zero window is derived from the data.
type Window struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool { return w.Start.IsZero() || w.End.IsZero() }

// Interval is one bucket for one asset with every required stream present.
type Interval struct {
	At       time.Time
	AssetID  string
	ParentID string
	Values   map[telemetry.StreamKind]float64
}

// Value returns the aligned value for a kind.
func (i Interval) Value(kind telemetry.StreamKind) (float64, bool) {
	value, ok := i.Values[kind]
	return value, ok
}

// Requirement names a stream and the policy used to resample it.
type Requirement struct {
	Kind   telemetry.StreamKind
	Policy FillPolicy
}

// Spec describes one analysis domain: its streams, bucket and location.
type Spec struct {
	Streams  []Requirement
	Bucket   time.Duration
	Location *time.Location
	Window   Window
}

// NewSpec builds a spec using the default policy for each kind.
func NewSpec(bucket time.Duration, loc *time.Location, kinds ...telemetry.StreamKind) Spec {
	streams := make([]Requirement, 0, len(kinds))
	for _, kind := range kinds {
		streams = append(streams, Requirement{Kind: kind, Policy: DefaultPolicy(kind)})
	}
	return Spec{Streams: streams, Bucket: bucket, Location: loc}
}

// Kinds returns the required stream kinds in spec order.
func (s Spec) Kinds() []telemetry.StreamKind {
	kinds := make([]telemetry.StreamKind, 0, len(s.Streams))
	for _, req := range s.Streams {
		kinds = append(kinds, req.Kind)
	}
	return kinds
}

// BucketHours returns the bucket length in hours.
func (s Spec) BucketHours() float64 { return s.Bucket.Hours() }

// Validate checks the spec before alignment.
func (s Spec) Validate() error {
	if len(s.Streams) == 0 {
		return ErrNoStreams
	}
	if s.Bucket <= 0 || day%s.Bucket != 0 {
		return ErrInvalidBucket
	}
	for _, req := range s.Streams {
		if !req.Policy.Valid() {
			return ErrInvalidPolicy
		}
	}
	return nil
}

func (s Spec) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Floor truncates t to the bucket boundary using wall-clock time in loc.
func Floor(t time.Time, bucket time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	wall := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	floored := wall - wall%bucket
	hour := int(floored / time.Hour)
	minute := int(floored % time.Hour / time.Minute)
	second := int(floored % time.Minute / time.Second)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, second, 0, loc)
}

// Align groups readings by asset and emits joined intervals for the spec.
// Readings of kinds outside the spec are ignored. Output is ordered by time, then asset.
func Align(readings []telemetry.SensorReading, spec Spec) ([]Interval, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}

	required := make(map[telemetry.StreamKind]struct{}, len(spec.Streams))
	for _, req := range spec.Streams {
		required[req.Kind] = struct{}{}
	}

	type assetData struct {
		parentID string
		parentAt time.Time
		samples  map[telemetry.StreamKind][]Sample
	}
	assets := make(map[string]*assetData)
	for _, reading := range readings {
		if _, ok := required[reading.Kind]; !ok {
			continue
		}
		data := assets[reading.AssetID]
		if data == nil {
			data = &assetData{samples: make(map[telemetry.StreamKind][]Sample)}
			assets[reading.AssetID] = data
		}
		if reading.ParentID != "" && !reading.At.Before(data.parentAt) {
			data.parentID = reading.ParentID
			data.parentAt = reading.At
		}
		data.samples[reading.Kind] = append(data.samples[reading.Kind], Sample{At: reading.At, Value: reading.Value})
	}

	var result []Interval
	for assetID, data := range assets {
		streams := make([]Stream, 0, len(spec.Streams))
		for _, req := range spec.Streams {
			streams = append(streams, Stream{Kind: req.Kind, Policy: req.Policy, Samples: data.samples[req.Kind]})
		}
		intervals := AlignAsset(assetID, data.parentID, streams, spec)
		result = append(result, intervals...)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].At.Equal(result[j].At) {
			return result[i].At.Before(result[j].At)
		}
		return result[i].AssetID < result[j].AssetID
	})
	return result, nil
}

// AlignAsset resamples the streams of one asset and inner-joins them on the bucket grid.
// A stream without samples yields no intervals.
func AlignAsset(assetID, parentID string, streams []Stream, spec Spec) []Interval {
	if len(streams) == 0 || spec.Bucket <= 0 {
		return nil
	}
	loc := spec.location()
	prepared := make([]Stream, 0, len(streams))
	for _, stream := range streams {
		samples := finite(stream.Samples)
		if len(samples) == 0 {
			return nil
		}
		prepared = append(prepared, Stream{Kind: stream.Kind, Policy: stream.Policy, Samples: collapse(samples)})
	}

	grid := buildGrid(prepared, spec.Bucket, loc, spec.Window)
	if len(grid) == 0 {
		return nil
	}

	resampled := make([]map[int64]float64, len(prepared))
	for i, stream := range prepared {
		resampled[i] = resample(stream, grid, spec.Bucket, loc)
	}

	var result []Interval
	for _, bucket := range grid {
		key := bucket.UnixNano()
		values := make(map[telemetry.StreamKind]float64, len(prepared))
		complete := true
		for i, stream := range prepared {
			value, ok := resampled[i][key]
			if !ok {
				complete = false
				break
			}
			values[stream.Kind] = value
		}
		if !complete {
			continue
		}
		result = append(result, Interval{At: bucket, AssetID: assetID, ParentID: parentID, Values: values})
	}
	return result
}

func buildGrid(streams []Stream, bucket time.Duration, loc *time.Location, window Window) []time.Time {
	var start, end time.Time
	if !window.IsZero() {
		start = Floor(window.Start, bucket, loc)
		end = window.End
	} else {
		first, last := streams[0].Samples[0].At, streams[0].Samples[0].At
		for _, stream := range streams {
			if stream.Samples[0].At.Before(first) {
				first = stream.Samples[0].At
			}
			tail := stream.Samples[len(stream.Samples)-1].At
			if tail.After(last) {
				last = tail
			}
		}
		start = Floor(first, bucket, loc)
		end = Floor(last, bucket, loc).Add(bucket)
	}

	var grid []time.Time
	for at := start; at.Before(end); at = nextBucket(at, bucket, loc) {
		grid = append(grid, at)
	}
	return grid
}

// nextBucket steps one bucket forward on the wall clock. Ambiguous local times
// during a DST fall-back fall through to elapsed time so the grid always advances.
func nextBucket(at time.Time, bucket time.Duration, loc *time.Location) time.Time {
	next := Floor(at.Add(bucket), bucket, loc)
	if !next.After(at) {
		return at.Add(bucket)
	}
	return next
}

func resample(stream Stream, grid []time.Time, bucket time.Duration, loc *time.Location) map[int64]float64 {
	switch stream.Policy {
	case PolicyMean:
		return resampleMean(stream.Samples, grid, bucket, loc)
	case PolicyForwardFill:
		return resampleForwardFill(stream.Samples, grid)
	case PolicyInterpolate:
		return resampleInterpolate(stream.Samples, grid)
	default:
		return nil
	}
}

func resampleMean(samples []Sample, grid []time.Time, bucket time.Duration, loc *time.Location) map[int64]float64 {
	inGrid := make(map[int64]struct{}, len(grid))
	for _, at := range grid {
		inGrid[at.UnixNano()] = struct{}{}
	}
	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	for _, sample := range samples {
		key := Floor(sample.At, bucket, loc).UnixNano()
		if _, ok := inGrid[key]; !ok {
			continue
		}
		sums[key] += sample.Value
		counts[key]++
	}
	out := make(map[int64]float64, len(sums))
	for key, sum := range sums {
		out[key] = sum / float64(counts[key])
	}
	return out
}

// resampleForwardFill carries the last sample at or before each bucket start.
func resampleForwardFill(samples []Sample, grid []time.Time) map[int64]float64 {
	out := make(map[int64]float64, len(grid))
	idx := -1
	for _, at := range grid {
		for idx+1 < len(samples) && !samples[idx+1].At.After(at) {
			idx++
		}
		if idx < 0 {
			continue
		}
		out[at.UnixNano()] = samples[idx].Value
	}
	return out
}

func resampleInterpolate(samples []Sample, grid []time.Time) map[int64]float64 {
	out := make(map[int64]float64, len(grid))
	for _, at := range grid {
		i := sort.Search(len(samples), func(j int) bool {
			return !samples[j].At.Before(at)
		})
		if i < len(samples) && samples[i].At.Equal(at) {
			out[at.UnixNano()] = samples[i].Value
			continue
		}
		if i == 0 || i == len(samples) {
			continue
		}
		prev, next := samples[i-1], samples[i]
		span := next.At.Sub(prev.At).Seconds()
		frac := at.Sub(prev.At).Seconds() / span
		out[at.UnixNano()] = prev.Value + (next.Value-prev.Value)*frac
	}
	return out
}

// collapse sorts samples and merges equal timestamps by mean.
// finite drops NaN and infinite samples; they count as missing.
func finite(samples []Sample) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, sample := range samples {
		if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
			continue
		}
		out = append(out, sample)
	}
	return out
}

func collapse(samples []Sample) []Sample {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.Before(sorted[j].At)
	})
	out := make([]Sample, 0, len(sorted))
	for i := 0; i < len(sorted); {
		j := i
		sum := 0.0
		for j < len(sorted) && sorted[j].At.Equal(sorted[i].At) {
			sum += sorted[j].Value
			j++
		}
		out = append(out, Sample{At: sorted[i].At, Value: sum / float64(j-i)})
		i = j
	}
	return out
}
