package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	telemetry "hvac-insight/internal/telemetry/domain"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"02-01-2006 15:04",
	"01/02/2006 15:04",
}

// ErrNoFiles is returned when a feed folder holds no matching file.
var ErrNoFiles = errors.New("csvfeed: no files")

type cacheEntry struct {
	path     string
	modTime  time.Time
	size     int64
	readings []telemetry.SensorReading
}

// FileInfo names the file a feed was read from.
type FileInfo struct {
	Feed    string    `json:"feed"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Rows    int       `json:"rows"`
}

// Provider implements telemetry.FeedProvider over CSV folders.
type Provider struct {
	feeds    []FeedConfig
	location *time.Location
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	last  map[string]FileInfo
}

// Option configures the provider.
type Option func(*Provider)

// WithLocation sets the zone for timestamps without an offset.
func WithLocation(loc *time.Location) Option {
	return func(p *Provider) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvider constructs a provider for the given feeds.
func NewProvider(feeds []FeedConfig, opts ...Option) (*Provider, error) {
	if len(feeds) == 0 {
		return nil, errors.New("csvfeed: no feeds configured")
	}
	for _, feed := range feeds {
		if err := feed.Validate(); err != nil {
			return nil, err
		}
	}
	p := &Provider{
		feeds:    feeds,
		location: time.UTC,
		logger:   zap.NewNop(),
		cache:    make(map[string]cacheEntry),
		last:     make(map[string]FileInfo),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "csvfeed"))
	return p, nil
}

// Feeds returns the configured feeds.
func (p *Provider) Feeds() []FeedConfig {
	if p == nil {
		return nil
	}
	out := make([]FeedConfig, len(p.feeds))
	copy(out, p.feeds)
	return out
}

// Sources returns the file each feed was last read from.
func (p *Provider) Sources() []FileInfo {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FileInfo, 0, len(p.last))
	for _, feed := range p.feeds {
		if info, ok := p.last[feed.Name]; ok {
			out = append(out, info)
		}
	}
	return out
}

// Latest returns the readings of one kind from the newest file of every feed that carries it.
// It wraps telemetry.ErrFeedMissing when no such feed could be read.
func (p *Provider) Latest(ctx context.Context, kind telemetry.StreamKind) ([]telemetry.SensorReading, error) {
	if p == nil {
		return nil, errors.New("csvfeed: nil provider")
	}
	var (
		out     []telemetry.SensorReading
		found   bool
		lastErr error
	)
	for _, feed := range p.feeds {
		if !feed.Provides(kind) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		readings, err := p.readFeed(feed)
		if err != nil {
			lastErr = err
			p.logger.Warn("feed unavailable", zap.String("feed", feed.Name), zap.String("stream", string(kind)), zap.Error(err))
			continue
		}
		found = true
		for _, reading := range readings {
			if reading.Kind == kind {
				out = append(out, reading)
			}
		}
	}
	if !found {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", telemetry.ErrFeedMissing, kind, lastErr)
		}
		return nil, fmt.Errorf("%w: %s: no feed configured", telemetry.ErrFeedMissing, kind)
	}
	telemetry.SortReadings(out)
	return out, nil
}

func (p *Provider) readFeed(feed FeedConfig) ([]telemetry.SensorReading, error) {
	path, info, err := LatestFile(feed.Dir, feed.pattern())
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	entry, ok := p.cache[feed.Name]
	p.mu.Unlock()
	if ok && entry.path == path && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.readings, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	readings, err := ParseReadings(file, feed, p.location)
	if err != nil {
		return nil, fmt.Errorf("csvfeed: %s: %w", filepath.Base(path), err)
	}

	p.mu.Lock()
	p.cache[feed.Name] = cacheEntry{path: path, modTime: info.ModTime(), size: info.Size(), readings: readings}
	p.last[feed.Name] = FileInfo{Feed: feed.Name, Path: path, ModTime: info.ModTime(), Rows: len(readings)}
	p.mu.Unlock()
	p.logger.Debug("feed loaded", zap.String("feed", feed.Name), zap.String("path", path), zap.Int("readings", len(readings)))
	return readings, nil
}

// LatestFile returns the matching file with the newest modification time.
func LatestFile(dir, pattern string) (string, os.FileInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", nil, err
	}
	var (
		latest     string
		latestInfo os.FileInfo
	)
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		if latestInfo == nil || info.ModTime().After(latestInfo.ModTime()) ||
			(info.ModTime().Equal(latestInfo.ModTime()) && match > latest) {
			latest = match
			latestInfo = info
		}
	}
	if latestInfo == nil {
		return "", nil, fmt.Errorf("%w in %s", ErrNoFiles, dir)
	}
	return latest, latestInfo, nil
}

type columnBinding struct {
	index  int
	kind   telemetry.StreamKind
	asset  int
	parent int
	fixedA string
	fixedP string
}

// ParseReadings decodes one CSV export. Blank or unparseable values are skipped.
func ParseReadings(r io.Reader, feed FeedConfig, loc *time.Location) ([]telemetry.SensorReading, error) {
	if loc == nil {
		loc = time.UTC
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[normalize(name)] = i
	}

	tsIndex := 0
	if feed.TimestampColumn != "" {
		idx, ok := index[normalize(feed.TimestampColumn)]
		if !ok {
			return nil, fmt.Errorf("timestamp column %q not found", feed.TimestampColumn)
		}
		tsIndex = idx
	}

	lookup := func(name string) int {
		if name == "" {
			return -1
		}
		if idx, ok := index[normalize(name)]; ok {
			return idx
		}
		return -1
	}
	feedAsset := lookup(feed.AssetColumn)
	feedParent := lookup(feed.ParentColumn)

	var bindings []columnBinding
	if len(feed.Columns) > 0 {
		for _, column := range feed.Columns {
			idx := lookup(column.Name)
			if idx < 0 {
				return nil, fmt.Errorf("column %q not found", column.Name)
			}
			binding := columnBinding{index: idx, kind: column.Kind, asset: feedAsset, parent: feedParent, fixedA: column.Asset, fixedP: column.Parent}
			if column.AssetColumn != "" {
				binding.asset = lookup(column.AssetColumn)
			}
			if column.ParentColumn != "" {
				binding.parent = lookup(column.ParentColumn)
			}
			bindings = append(bindings, binding)
		}
	} else {
		position := 0
		for i := range header {
			if i == tsIndex || i == feedAsset || i == feedParent {
				continue
			}
			if position >= len(feed.Kinds) {
				break
			}
			bindings = append(bindings, columnBinding{index: i, kind: feed.Kinds[position], asset: feedAsset, parent: feedParent})
			position++
		}
	}

	var readings []telemetry.SensorReading
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if tsIndex >= len(record) {
			continue
		}
		at, ok := parseTime(record[tsIndex], feed.TimeLayout, loc)
		if !ok {
			continue
		}
		for _, binding := range bindings {
			if binding.index >= len(record) {
				continue
			}
			value, ok := ParseValue(record[binding.index])
			if !ok {
				continue
			}
			asset := field(record, binding.asset)
			if asset == "" {
				asset = binding.fixedA
			}
			if asset == "" {
				asset = feed.defaultAsset()
			}
			parent := field(record, binding.parent)
			if parent == "" {
				parent = binding.fixedP
			}
			readings = append(readings, telemetry.SensorReading{
				At:       at,
				AssetID:  asset,
				ParentID: parent,
				Kind:     binding.kind,
				Value:    value,
			})
		}
	}
	telemetry.SortReadings(readings)
	return readings, nil
}

// ParseValue reads a numeric cell, accepting ON/OFF and true/false.
func ParseValue(raw string) (float64, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, false
	}
	switch strings.ToLower(value) {
	case "on", "true", "yes":
		return 1, true
	case "off", "false", "no":
		return 0, true
	}
	parsed, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

func parseTime(raw, layout string, loc *time.Location) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	if layout != "" {
		parsed, err := time.ParseInLocation(layout, value, loc)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.In(loc), true
	}
	for _, candidate := range timeLayouts {
		if parsed, err := time.ParseInLocation(candidate, value, loc); err == nil {
			return parsed.In(loc), true
		}
	}
	return time.Time{}, false
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
}
