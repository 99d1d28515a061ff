// Package notify renders alerts and delivers them over pluggable channels.
package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	alarms "hvac-insight/internal/alarms/domain"
)

// ErrSuppressed is returned when cooldown or dedupe drops a notification.
var ErrSuppressed = errors.New("alert notifier: suppressed")

// Clock provides time for cooldown checks.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alerts and sends them through a channel.
type Notifier struct {
	channel      Channel
	template     *Template
	clock        Clock
	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
	currency     string
	dashboardURL string
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same fault type.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithCurrency sets the currency symbol used in rendered amounts.
func WithCurrency(symbol string) Option {
	return func(n *Notifier) {
		n.currency = symbol
	}
}

// WithDashboardURL adds a dashboard link to every alert.
func WithDashboardURL(url string) Option {
	return func(n *Notifier) {
		n.dashboardURL = url
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
		currency: "₹",
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Channel returns the name of the underlying channel.
func (n *Notifier) Channel() string {
	if n == nil || n.channel == nil {
		return ""
	}
	return n.channel.Name()
}

// Notify renders the alert and sends it.
func (n *Notifier) Notify(ctx context.Context, alert alarms.Alert) error {
	if n == nil || n.channel == nil {
		return errors.New("alert notifier: nil")
	}
	msg, err := n.template.Render(n.buildTemplateData(alert))
	if err != nil {
		return fmt.Errorf("alert notifier: render: %w", err)
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("alert notifier: encode: %w", err)
	}
	msg.Payload = payload

	key := string(alert.FaultType)
	if !n.shouldSend(key, msg.Text) {
		return ErrSuppressed
	}
	if err := n.channel.Send(ctx, msg); err != nil {
		return err
	}
	n.markSent(key, msg.Text)
	return nil
}

func (n *Notifier) buildTemplateData(alert alarms.Alert) TemplateData {
	raisedAt := alert.RaisedAt
	if raisedAt.IsZero() {
		raisedAt = n.clock.Now()
	}
	deviation := formatFloat(alert.AvgDeviation)
	if alert.DeviationUnit != "" {
		deviation += " " + alert.DeviationUnit
	}
	return TemplateData{
		FaultType:         string(alert.FaultType),
		Label:             alert.Label,
		RaisedAt:          raisedAt.Format(time.RFC3339),
		Count:             alert.Count,
		Assets:            alert.Assets,
		Hours:             formatFloat(alert.Hours),
		Loss:              formatAmount(alert.TotalCost),
		MonthlyProjection: formatAmount(alert.MonthlyProjection),
		AvgDeviation:      deviation,
		CarbonKg:          formatFloat(alert.CarbonKg),
		TopAssets:         strings.Join(alert.TopAssets, ", "),
		Recommendation:    alert.Recommendation,
		Currency:          n.currency,
		DashboardURL:      n.dashboardURL,
	}
}

func (n *Notifier) shouldSend(key, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hashContent(content) && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(key, content string) {
	n.mu.Lock()
	n.sent[key] = sendRecord{at: n.clock.Now().UTC(), hash: hashContent(content)}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

// formatAmount renders a whole amount with thousands separators.
func formatAmount(value float64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	digits := fmt.Sprintf("%.0f", value)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
