// Package archive moves stale feed exports into dated zip files.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"hvac-insight/internal/observability/metrics"
	"hvac-insight/internal/telemetry/infrastructure/csvfeed"
)

// Summary counts what one archive run did.
type Summary struct {
	Moved   int `json:"moved"`
	Zipped  int `json:"zipped"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

func (s *Summary) add(other Summary) {
	s.Moved += other.Moved
	s.Zipped += other.Zipped
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Archiver zips feed files older than MaxAge into
// <root>/<feed>/<yyyy>/<yyyy-mm-dd>/<yyyy-mm-dd>.zip by modification date.
type Archiver struct {
	feeds      []csvfeed.FeedConfig
	root       string
	maxAge     time.Duration
	keepLatest bool
	location   *time.Location
	clock      Clock
	logger     *zap.Logger
}

// Option configures the archiver.
type Option func(*Archiver)

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(a *Archiver) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithLocation sets the zone used for the dated folders.
func WithLocation(loc *time.Location) Option {
	return func(a *Archiver) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Archiver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithKeepLatest keeps the newest file of each feed in place even when stale,
// so the feed stays readable. Enabled by default.
func WithKeepLatest(keep bool) Option {
	return func(a *Archiver) {
		a.keepLatest = keep
	}
}

// NewArchiver constructs an archiver.
func NewArchiver(feeds []csvfeed.FeedConfig, root string, maxAge time.Duration, opts ...Option) (*Archiver, error) {
	if len(feeds) == 0 {
		return nil, errors.New("archive: no feeds")
	}
	if root == "" {
		return nil, errors.New("archive: root required")
	}
	if maxAge <= 0 {
		return nil, errors.New("archive: max age must be positive")
	}
	a := &Archiver{
		feeds:      feeds,
		root:       root,
		maxAge:     maxAge,
		keepLatest: true,
		location:   time.Local,
		clock:      systemClock{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "archive"))
	return a, nil
}

// Root returns the archive folder.
func (a *Archiver) Root() string {
	if a == nil {
		return ""
	}
	return a.root
}

// Run archives every stale file. Per-file failures are counted, not returned.
func (a *Archiver) Run(ctx context.Context) (Summary, error) {
	if a == nil {
		return Summary{}, errors.New("archive: nil archiver")
	}
	var total Summary
	seen := make(map[string]bool)
	for _, feed := range a.feeds {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		key := filepath.Join(filepath.Clean(feed.Dir), patternOf(feed))
		if seen[key] {
			continue
		}
		seen[key] = true
		total.add(a.archiveFeed(feed))
	}
	metrics.AddArchived("zipped", total.Zipped)
	metrics.AddArchived("skipped", total.Skipped)
	metrics.AddArchived("error", total.Errors)
	a.logger.Info("archive run finished",
		zap.Int("moved", total.Moved),
		zap.Int("zipped", total.Zipped),
		zap.Int("skipped", total.Skipped),
		zap.Int("errors", total.Errors),
	)
	return total, nil
}

func (a *Archiver) archiveFeed(feed csvfeed.FeedConfig) Summary {
	var summary Summary
	if info, err := os.Stat(feed.Dir); err != nil || !info.IsDir() {
		a.logger.Warn("feed folder missing", zap.String("feed", feed.Name), zap.String("dir", feed.Dir))
		summary.Errors++
		return summary
	}
	matches, err := filepath.Glob(filepath.Join(feed.Dir, patternOf(feed)))
	if err != nil {
		summary.Errors++
		return summary
	}
	sort.Strings(matches)

	latest := ""
	if a.keepLatest {
		if path, _, err := csvfeed.LatestFile(feed.Dir, patternOf(feed)); err == nil {
			latest = path
		}
	}

	now := a.clock.Now()
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if path == latest || now.Sub(info.ModTime()) <= a.maxAge {
			summary.Skipped++
			continue
		}
		day := info.ModTime().In(a.location)
		dir := filepath.Join(a.root, feed.Name, day.Format("2006"), day.Format("2006-01-02"))
		zipPath := filepath.Join(dir, day.Format("2006-01-02")+".zip")
		if err := appendToZip(zipPath, path); err != nil {
			a.logger.Warn("archive file failed", zap.String("path", path), zap.Error(err))
			summary.Errors++
			continue
		}
		summary.Zipped++
		if err := os.Remove(path); err != nil {
			a.logger.Warn("remove archived file failed", zap.String("path", path), zap.Error(err))
			summary.Errors++
			continue
		}
		summary.Moved++
	}
	return summary
}

// appendToZip adds src to the zip at zipPath, replacing an entry with the same name.
// The archive is rewritten to a temp file and renamed into place.
func appendToZip(zipPath, src string) error {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(zipPath), ".archive-*.zip")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zipWriter := zip.NewWriter(tmp)
	name := filepath.Base(src)

	if existing, err := zip.OpenReader(zipPath); err == nil {
		for _, entry := range existing.File {
			if entry.Name == name {
				continue
			}
			if err := zipWriter.Copy(entry); err != nil {
				existing.Close()
				tmp.Close()
				return fmt.Errorf("copy %s: %w", entry.Name, err)
			}
		}
		existing.Close()
	} else if !errors.Is(err, os.ErrNotExist) {
		tmp.Close()
		return fmt.Errorf("open %s: %w", zipPath, err)
	}

	if err := writeEntry(zipWriter, src, name); err != nil {
		tmp.Close()
		return err
	}
	if err := zipWriter.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, zipPath)
}

func writeEntry(zipWriter *zip.Writer, src, name string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate
	fw, err := zipWriter.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, file)
	return err
}

func patternOf(feed csvfeed.FeedConfig) string {
	if feed.Pattern == "" {
		return "*.csv"
	}
	return feed.Pattern
}
