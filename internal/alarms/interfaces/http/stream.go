package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"hvac-insight/internal/alarms/notify"
)

type frame struct {
	event   string
	payload []byte
}

// SSEBroker fans out alert and cycle events to connected clients.
// Slow clients miss frames rather than blocking the sender.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan frame]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan frame]struct{})}
}

// Name implements notify.Channel.
func (b *SSEBroker) Name() string { return "sse" }

// Send implements notify.Channel by broadcasting the alert payload.
func (b *SSEBroker) Send(_ context.Context, msg notify.Message) error {
	if b == nil {
		return errors.New("sse broker: nil")
	}
	payload := msg.Payload
	if len(payload) == 0 {
		raw, err := json.Marshal(map[string]string{"subject": msg.Subject, "text": msg.Text})
		if err != nil {
			return err
		}
		payload = raw
	}
	b.broadcast(frame{event: "alert", payload: payload})
	return nil
}

// Publish broadcasts an arbitrary JSON event.
func (b *SSEBroker) Publish(event string, v any) error {
	if b == nil {
		return errors.New("sse broker: nil")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.broadcast(frame{event: event, payload: payload})
	return nil
}

// Clients returns the number of connected clients.
func (b *SSEBroker) Clients() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *SSEBroker) subscribe() chan frame {
	ch := make(chan frame, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *SSEBroker) unsubscribe(ch chan frame) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

func (b *SSEBroker) broadcast(f frame) {
	b.mu.Lock()
	clients := make([]chan frame, 0, len(b.clients))
	for ch := range b.clients {
		clients = append(clients, ch)
	}
	b.mu.Unlock()
	for _, ch := range clients {
		select {
		case ch <- f:
		default:
		}
	}
}

const heartbeatInterval = 30 * time.Second

// StreamHandler serves the alert event stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/alerts/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ch := h.broker.subscribe()
	defer h.broker.unsubscribe(ch)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case f := <-ch:
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, f.payload)
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
