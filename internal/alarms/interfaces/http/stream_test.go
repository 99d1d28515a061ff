package http

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hvac-insight/internal/alarms/notify"
)

func TestStreamDeliversAlerts(t *testing.T) {
	broker := NewSSEBroker()
	server := httptest.NewServer(NewStreamHandler(broker))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readFrame := func() string {
		var b strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if line == "\n" {
				return b.String()
			}
			b.WriteString(line)
		}
	}
	if got := readFrame(); !strings.Contains(got, "event: ready") {
		t.Fatalf("expected ready frame, got %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for broker.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := broker.Send(context.Background(), notify.Message{Payload: []byte(`{"fault_type":"overcooling"}`)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := readFrame()
	if !strings.Contains(got, "event: alert") || !strings.Contains(got, `"fault_type":"overcooling"`) {
		t.Fatalf("unexpected alert frame %q", got)
	}
}

func TestStreamRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStreamHandler(NewSSEBroker()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/stream", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
