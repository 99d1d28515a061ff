package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"gopkg.in/gomail.v2"

	alarms "hvac-insight/internal/alarms/domain"
	"hvac-insight/internal/analytics/domain/rules"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingChannel struct {
	mu   sync.Mutex
	msgs []Message
	err  error
	name string
}

func (c *recordingChannel) Name() string {
	if c.name == "" {
		return "recording"
	}
	return c.name
}

func (c *recordingChannel) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func ghostAlert() alarms.Alert {
	return alarms.Alert{
		ID:                "alert-1",
		FaultType:         rules.GhostRunning,
		Label:             "Ghost running",
		RaisedAt:          time.Date(2026, 1, 26, 23, 0, 0, 0, time.UTC),
		Count:             3,
		Assets:            1,
		Hours:             3,
		TotalCost:         1800,
		CarbonKg:          106.5,
		MonthlyProjection: 54000,
		TopAssets:         []string{"AHU-1"},
		Recommendation:    "Stop the unit",
	}
}

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	notifier, err := NewNotifier(channel, nil, WithDashboardURL("http://example.com/dashboard"))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), ghostAlert()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("expected msgtype text, got %s", payload.MsgType)
		}
		checks := []string{
			"HVAC Alert: Ghost running detected",
			"Faulty intervals: 3 (3.00 h) across 1 asset(s)",
			"Estimated loss: ₹1,800",
			"Monthly projection: ₹54,000",
			"Top assets: AHU-1",
			"Dashboard: http://example.com/dashboard",
		}
		for _, check := range checks {
			if !strings.Contains(payload.Text.Content, check) {
				t.Fatalf("expected content to contain %q, got %q", check, payload.Text.Content)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for webhook")
	}
}

func TestWebhookChannelNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	if err := channel.Send(context.Background(), Message{Text: "x"}); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestWebhookChannelFormats(t *testing.T) {
	type request struct {
		body string
		key  string
	}
	requests := make(chan request, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- request{body: string(body), key: r.Header.Get(AlertKeyHeader)}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	msg := Message{Subject: "HVAC Alert", Text: "body", Key: "ghost_running", Payload: []byte(`{"fault_type":"ghost_running"}`)}

	slack, err := NewWebhookChannel(server.URL, WithFormat(FormatSlack))
	if err != nil {
		t.Fatalf("new slack channel: %v", err)
	}
	if err := slack.Send(context.Background(), msg); err != nil {
		t.Fatalf("send slack: %v", err)
	}
	got := <-requests
	if got.body != `{"text":"HVAC Alert\nbody"}` || got.key != "ghost_running" {
		t.Fatalf("unexpected slack request: %+v", got)
	}

	raw, err := NewWebhookChannel(server.URL, WithFormat(FormatJSON))
	if err != nil {
		t.Fatalf("new json channel: %v", err)
	}
	if err := raw.Send(context.Background(), msg); err != nil {
		t.Fatalf("send json: %v", err)
	}
	if got := <-requests; got.body != string(msg.Payload) {
		t.Fatalf("expected raw alert payload, got %q", got.body)
	}

	if _, err := NewWebhookChannel(server.URL, WithFormat("fax")); err == nil {
		t.Fatalf("expected unknown format rejected")
	}
}

func TestNotifierCooldown(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithCooldown(time.Hour))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), ghostAlert()); err != nil {
		t.Fatalf("first notify: %v", err)
	}
	if err := notifier.Notify(context.Background(), ghostAlert()); !errors.Is(err, ErrSuppressed) {
		t.Fatalf("expected suppression, got %v", err)
	}
	other := ghostAlert()
	other.FaultType = rules.Overcooling
	if err := notifier.Notify(context.Background(), other); err != nil {
		t.Fatalf("other fault type should not be suppressed: %v", err)
	}
	clock.advance(2 * time.Hour)
	if err := notifier.Notify(context.Background(), ghostAlert()); err != nil {
		t.Fatalf("notify after cooldown: %v", err)
	}
	if len(channel.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(channel.msgs))
	}
	msg := channel.msgs[0]
	if msg.Key != "ghost_running" || !strings.Contains(msg.HTML, "<h2>Ghost running detected</h2>") {
		t.Fatalf("unexpected message %+v", msg)
	}
	var decoded alarms.Alert
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil || decoded.ID != "alert-1" {
		t.Fatalf("expected json payload, got %v %v", decoded, err)
	}
}

func TestNotifierFailedSendDoesNotStartCooldown(t *testing.T) {
	channel := &recordingChannel{err: errors.New("relay down")}
	notifier, err := NewNotifier(channel, nil, WithCooldown(time.Hour))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), ghostAlert()); err == nil {
		t.Fatalf("expected send error")
	}
	channel.err = nil
	if err := notifier.Notify(context.Background(), ghostAlert()); err != nil {
		t.Fatalf("expected retry to send, got %v", err)
	}
}

type stubMailSender struct {
	messages []*gomail.Message
}

func (s *stubMailSender) DialAndSend(m ...*gomail.Message) error {
	s.messages = append(s.messages, m...)
	return nil
}

func TestEmailChannelHeaders(t *testing.T) {
	sender := &stubMailSender{}
	channel, err := NewEmailChannelWithSender(sender, "alerts@example.com", []string{"ops@example.com", "fm@example.com"})
	if err != nil {
		t.Fatalf("new email channel: %v", err)
	}
	if err := channel.Send(context.Background(), Message{Subject: "HVAC Alert", Text: "body", HTML: "<p>body</p>"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.messages))
	}
	m := sender.messages[0]
	if got := m.GetHeader("To"); len(got) != 2 || got[0] != "ops@example.com" {
		t.Fatalf("unexpected recipients %v", got)
	}
	if got := m.GetHeader("Subject"); len(got) != 1 || got[0] != "HVAC Alert" {
		t.Fatalf("unexpected subject %v", got)
	}
	if _, err := NewEmailChannelWithSender(sender, "a@example.com", nil); err == nil {
		t.Fatalf("expected error without recipients")
	}
}

type stubWriter struct {
	msgs []kafka.Message
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func (s *stubWriter) Close() error { return nil }

func TestKafkaChannelKeyedByFaultType(t *testing.T) {
	writer := &stubWriter{}
	channel, err := NewKafkaChannelWithWriter(writer)
	if err != nil {
		t.Fatalf("new kafka channel: %v", err)
	}
	if err := channel.Send(context.Background(), Message{Key: "overcooling", Text: "t", Payload: []byte(`{"id":"a"}`)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(writer.msgs) != 1 || string(writer.msgs[0].Key) != "overcooling" || string(writer.msgs[0].Value) != `{"id":"a"}` {
		t.Fatalf("unexpected kafka messages %+v", writer.msgs)
	}
	if _, err := NewKafkaChannel(nil, "alerts"); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

type stubToken struct {
	err error
}

func (t stubToken) Wait() bool                     { return true }
func (t stubToken) WaitTimeout(time.Duration) bool { return true }
func (t stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t stubToken) Error() error { return t.err }

type stubPublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (s *stubPublisher) Publish(topic string, _ byte, _ bool, payload interface{}) pahomqtt.Token {
	s.topics = append(s.topics, topic)
	if raw, ok := payload.([]byte); ok {
		s.payloads = append(s.payloads, raw)
	}
	return stubToken{err: s.err}
}

func TestMQTTChannelTopic(t *testing.T) {
	publisher := &stubPublisher{}
	channel, err := NewMQTTChannelWithPublisher(publisher, "site-a/hvac/", 1, time.Second)
	if err != nil {
		t.Fatalf("new mqtt channel: %v", err)
	}
	if err := channel.Send(context.Background(), Message{Key: "chiller_low_delta_t", Text: "plain"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(publisher.topics) != 1 || publisher.topics[0] != "site-a/hvac/alert/chiller_low_delta_t" {
		t.Fatalf("unexpected topics %v", publisher.topics)
	}
	if string(publisher.payloads[0]) != "plain" {
		t.Fatalf("expected text fallback payload, got %s", publisher.payloads[0])
	}
	publisher.err = errors.New("not connected")
	if err := channel.Send(context.Background(), Message{Key: "x"}); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestMultiChannelAttemptsAll(t *testing.T) {
	failing := &recordingChannel{name: "email", err: errors.New("smtp down")}
	ok := &recordingChannel{name: "webhook"}
	multi := NewMultiChannel(failing, nil, ok)
	if multi.Len() != 2 || multi.Name() != "email+webhook" {
		t.Fatalf("unexpected multi channel %d %s", multi.Len(), multi.Name())
	}
	err := multi.Send(context.Background(), Message{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "email: smtp down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.msgs) != 1 {
		t.Fatalf("healthy channel should still receive the message")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[float64]string{0: "0", 999: "999", 1000: "1,000", 1234567.4: "1,234,567", -2500: "-2,500"}
	for value, want := range cases {
		if got := formatAmount(value); got != want {
			t.Fatalf("formatAmount(%v): expected %s, got %s", value, want, got)
		}
	}
}
