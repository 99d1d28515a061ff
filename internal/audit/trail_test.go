package audit

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestTrailKeepsNewestEntries(t *testing.T) {
	trail := NewTrail(2, nil)
	for _, action := range []string{"ack", "refresh", "archive"} {
		if err := trail.Log(context.Background(), Entry{Action: action, ResourceType: "session"}); err != nil {
			t.Fatalf("log %s: %v", action, err)
		}
	}
	recent := trail.Recent(0)
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Action != "archive" || recent[1].Action != "refresh" {
		t.Fatalf("expected newest first, got %s, %s", recent[0].Action, recent[1].Action)
	}
	if recent[0].ID == "" || recent[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled")
	}
	if got := trail.Recent(1); len(got) != 1 || got[0].Action != "archive" {
		t.Fatalf("expected limit 1 to return newest, got %+v", got)
	}
}

func TestTrailRejectsMissingAction(t *testing.T) {
	if err := NewTrail(0, nil).Log(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected error for missing action")
	}
}

func TestTrailDigestsMetadata(t *testing.T) {
	trail := NewTrail(0, nil)
	metadata := json.RawMessage(`{"off_start":20}`)
	_ = trail.Log(context.Background(), Entry{Action: "thresholds.update", Metadata: metadata})
	entry := trail.Recent(1)[0]
	if entry.PayloadDigest != DigestJSON(metadata) || len(entry.PayloadDigest) != 64 {
		t.Fatalf("unexpected digest %q", entry.PayloadDigest)
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/refresh", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	req.Header.Set("User-Agent", "wallboard/1.0")
	entry := FromRequest(req, Entry{Action: "refresh"})
	if entry.IP != "10.0.0.7" || entry.UserAgent != "wallboard/1.0" {
		t.Fatalf("unexpected client fields: %+v", entry)
	}
}
