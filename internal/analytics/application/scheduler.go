package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Refresher runs a refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context, reason string) (Snapshot, error)
}

// ReportWriter renders the daily report for a snapshot.
type ReportWriter func(snapshot Snapshot) ([]byte, error)

// Scheduler triggers refresh cycles on an interval and, optionally,
// writes the daily report once a day at a fixed local time.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	dailyAt   string
	reportDir string
	report    ReportWriter
	location  *time.Location
	logger    *zap.Logger
	lastDaily string
}

// NewScheduler constructs a Scheduler. A non-positive interval disables the ticker.
func NewScheduler(refresher Refresher, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		refresher: refresher,
		interval:  interval,
		location:  time.Local,
		logger:    logger.With(zap.String("component", "scheduler")),
	}
}

// WithDailyReport writes report output to dir every day at dailyAt (HH:MM in loc).
func (s *Scheduler) WithDailyReport(dailyAt, dir string, loc *time.Location, writer ReportWriter) (*Scheduler, error) {
	if _, _, err := parseDailyAt(dailyAt); err != nil {
		return s, fmt.Errorf("scheduler: daily_at %q: %w", dailyAt, err)
	}
	if dir == "" || writer == nil {
		return s, fmt.Errorf("scheduler: daily report needs a dir and writer")
	}
	s.dailyAt = dailyAt
	s.reportDir = dir
	s.report = writer
	if loc != nil {
		s.location = loc
	}
	return s, nil
}

// Start runs one cycle immediately, then loops until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.refresher == nil {
		return
	}
	s.runOnce(ctx, "startup")

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	var daily <-chan time.Time
	if s.report != nil {
		minute := time.NewTicker(time.Minute)
		defer minute.Stop()
		daily = minute.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.runOnce(ctx, "interval")
		case now := <-daily:
			if s.shouldWriteDaily(now) {
				s.writeDaily(ctx, now)
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, reason string) {
	if _, err := s.refresher.Refresh(ctx, reason); err != nil && ctx.Err() == nil {
		s.logger.Warn("scheduled refresh failed", zap.String("reason", reason), zap.Error(err))
	}
}

func (s *Scheduler) shouldWriteDaily(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	local := now.In(s.location)
	if local.Hour() != hour || local.Minute() != minute {
		return false
	}
	return s.lastDaily != local.Format("2006-01-02")
}

func (s *Scheduler) writeDaily(ctx context.Context, now time.Time) {
	day := now.In(s.location).Format("2006-01-02")
	snapshot, err := s.refresher.Refresh(ctx, "daily-report")
	if err != nil {
		s.logger.Warn("daily report refresh failed", zap.Error(err))
		return
	}
	data, err := s.report(snapshot)
	if err != nil {
		s.logger.Warn("daily report render failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(s.reportDir, 0o755); err != nil {
		s.logger.Warn("daily report dir failed", zap.Error(err))
		return
	}
	path := filepath.Join(s.reportDir, "daily_report_"+day+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Warn("daily report write failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.lastDaily = day
	s.logger.Info("daily report written", zap.String("path", path))
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
