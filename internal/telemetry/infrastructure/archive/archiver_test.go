package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	telemetry "hvac-insight/internal/telemetry/domain"
	"hvac-insight/internal/telemetry/infrastructure/csvfeed"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func touch(t *testing.T, dir, name string, mod time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("Timestamp,kW\n2026-01-25 00:00,1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return path
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip %s: %v", path, err)
	}
	defer reader.Close()
	var names []string
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestRunZipsStaleFilesIntoDatedArchive(t *testing.T) {
	base := t.TempDir()
	feedDir := filepath.Join(base, "power")
	if err := os.MkdirAll(feedDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	now := time.Date(2026, 1, 27, 12, 0, 0, 0, time.UTC)
	day := time.Date(2026, 1, 25, 9, 0, 0, 0, time.UTC)
	touch(t, feedDir, "p1.csv", day)
	touch(t, feedDir, "p2.csv", day.Add(time.Hour))
	touch(t, feedDir, "p3.csv", now.Add(-time.Hour))

	root := filepath.Join(base, "_archive")
	archiver, err := NewArchiver([]csvfeed.FeedConfig{{
		Name:  "power",
		Dir:   feedDir,
		Kinds: []telemetry.StreamKind{telemetry.KindPower},
	}}, root, 24*time.Hour, WithClock(fixedClock{now: now}), WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}

	summary, err := archiver.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Zipped != 2 || summary.Moved != 2 || summary.Skipped != 1 || summary.Errors != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	zipPath := filepath.Join(root, "power", "2026", "2026-01-25", "2026-01-25.zip")
	names := zipEntries(t, zipPath)
	if len(names) != 2 || names[0] != "p1.csv" || names[1] != "p2.csv" {
		t.Fatalf("unexpected zip entries %v", names)
	}
	if _, err := os.Stat(filepath.Join(feedDir, "p1.csv")); !os.IsNotExist(err) {
		t.Fatalf("expected p1.csv removed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(feedDir, "p3.csv")); err != nil {
		t.Fatalf("expected fresh file kept, got %v", err)
	}

	// a later run appends to the same day's zip
	touch(t, feedDir, "p0.csv", day.Add(2*time.Hour))
	summary, err = archiver.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Zipped != 1 {
		t.Fatalf("expected one file zipped on second run, got %+v", summary)
	}
	if names := zipEntries(t, zipPath); len(names) != 3 {
		t.Fatalf("expected 3 entries after append, got %v", names)
	}
}

func TestRunKeepsLatestStaleFile(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2026, 1, 27, 12, 0, 0, 0, time.UTC)
	touch(t, base, "only.csv", now.Add(-72*time.Hour))
	feeds := []csvfeed.FeedConfig{{Name: "status", Dir: base, Kinds: []telemetry.StreamKind{telemetry.KindStatus}}}

	archiver, err := NewArchiver(feeds, filepath.Join(base, "arch"), time.Hour, WithClock(fixedClock{now: now}))
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}
	summary, _ := archiver.Run(context.Background())
	if summary.Zipped != 0 || summary.Skipped != 1 {
		t.Fatalf("expected latest file kept, got %+v", summary)
	}

	archiver, _ = NewArchiver(feeds, filepath.Join(base, "arch"), time.Hour, WithClock(fixedClock{now: now}), WithKeepLatest(false))
	summary, _ = archiver.Run(context.Background())
	if summary.Zipped != 1 {
		t.Fatalf("expected stale file zipped, got %+v", summary)
	}
}

func TestRunCountsMissingFolder(t *testing.T) {
	archiver, err := NewArchiver([]csvfeed.FeedConfig{{
		Name:  "valve",
		Dir:   filepath.Join(t.TempDir(), "missing"),
		Kinds: []telemetry.StreamKind{telemetry.KindValvePosition},
	}}, t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}
	summary, err := archiver.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Errors != 1 {
		t.Fatalf("expected 1 error, got %+v", summary)
	}
}
