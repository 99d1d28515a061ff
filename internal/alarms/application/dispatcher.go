// Package application runs alert dispatch outside the evaluation cycle.
package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	alarms "hvac-insight/internal/alarms/domain"
	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/observability/metrics"
)

// Notifier delivers one alert. Implementations may block on network I/O.
type Notifier interface {
	Notify(ctx context.Context, alert alarms.Alert) error
}

// Result is the outcome of one dispatch.
type Result struct {
	AlertID   string          `json:"alert_id"`
	FaultType rules.FaultType `json:"fault_type"`
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	At        time.Time       `json:"at"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Dispatcher sends alerts in the background and reports each outcome.
// Results are published on a buffered channel; when it is full the result is logged and dropped.
type Dispatcher struct {
	notifier    Notifier
	channel     string
	timeout     time.Duration
	results     chan Result
	logger      *zap.Logger
	clock       Clock
	suppressed  func(error) bool
	wg          sync.WaitGroup
	mu          sync.Mutex
	recent      []Result
	recentLimit int
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout bounds every send.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithResultBuffer sets the results channel capacity.
func WithResultBuffer(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.results = make(chan Result, size)
		}
	}
}

// WithChannelName labels dispatch metrics.
func WithChannelName(name string) DispatcherOption {
	return func(d *Dispatcher) {
		if name != "" {
			d.channel = name
		}
	}
}

// WithSuppressed marks errors that mean the notifier intentionally skipped a send.
func WithSuppressed(match func(error) bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.suppressed = match
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(notifier Notifier, opts ...DispatcherOption) (*Dispatcher, error) {
	if notifier == nil {
		return nil, errors.New("alert dispatcher: nil notifier")
	}
	d := &Dispatcher{
		notifier:    notifier,
		channel:     "default",
		timeout:     15 * time.Second,
		results:     make(chan Result, 32),
		logger:      zap.NewNop(),
		clock:       systemClock{},
		recentLimit: 20,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "alert-dispatcher"), zap.String("channel", d.channel))
	return d, nil
}

// Results returns the channel on which dispatch outcomes are published.
func (d *Dispatcher) Results() <-chan Result {
	if d == nil {
		return nil
	}
	return d.results
}

// Dispatch sends the alert in a new goroutine and returns immediately.
func (d *Dispatcher) Dispatch(alert alarms.Alert) {
	if d == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(alert)
	}()
}

// Wait blocks until all in-flight dispatches finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Recent returns the latest results, newest last.
func (d *Dispatcher) Recent() []Result {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Result, len(d.recent))
	copy(out, d.recent)
	return out
}

func (d *Dispatcher) send(alert alarms.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.notifier.Notify(ctx, alert)
	result := Result{
		AlertID:   alert.ID,
		FaultType: alert.FaultType,
		Success:   err == nil,
		Message:   "sent",
		At:        d.clock.Now(),
	}
	switch {
	case err == nil:
		metrics.IncAlertDispatch(d.channel, metrics.ResultSuccess)
		d.logger.Info("alert sent", zap.String("fault_type", string(alert.FaultType)), zap.String("alert_id", alert.ID))
	case d.suppressed != nil && d.suppressed(err):
		result.Success = true
		result.Message = "suppressed: " + err.Error()
		metrics.IncAlertDispatch(d.channel, metrics.ResultSuppressed)
		d.logger.Debug("alert suppressed", zap.String("fault_type", string(alert.FaultType)))
	default:
		result.Message = err.Error()
		metrics.IncAlertDispatch(d.channel, metrics.ResultError)
		d.logger.Warn("alert dispatch failed",
			zap.String("fault_type", string(alert.FaultType)),
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}
	d.record(result)

	select {
	case d.results <- result:
	default:
		d.logger.Warn("alert result dropped", zap.String("fault_type", string(alert.FaultType)))
	}
}

func (d *Dispatcher) record(result Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent = append(d.recent, result)
	if len(d.recent) > d.recentLimit {
		d.recent = d.recent[len(d.recent)-d.recentLimit:]
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
