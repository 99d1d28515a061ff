package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "hvac_"

	resultSuccess    = "success"
	resultError      = "error"
	resultSuppressed = "suppressed"
)

var (
	registerOnce sync.Once

	cycleTotal   *prometheus.CounterVec
	cycleLatency *prometheus.HistogramVec

	faultCount    *prometheus.GaugeVec
	faultCost     *prometheus.GaugeVec
	feedMissing   *prometheus.CounterVec
	feedReadings  *prometheus.GaugeVec
	alertActive   *prometheus.GaugeVec
	alertDispatch *prometheus.CounterVec

	archiveTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers the service metrics on the default registry.
func Init(logger *zap.Logger) {
	registerOnce.Do(func() {
		cycleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycle_total",
				Help: "Total evaluation cycles by result",
			},
			[]string{"result"},
		)
		cycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cycle_latency_seconds",
				Help:    "Evaluation cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		faultCount = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "faults",
				Help: "Faulty intervals in the last cycle by fault type",
			},
			[]string{"fault_type"},
		)
		faultCost = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "fault_cost",
				Help: "Estimated loss in the last cycle by fault type",
			},
			[]string{"fault_type"},
		)
		feedMissing = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_missing_total",
				Help: "Total cycles where a stream feed was unavailable",
			},
			[]string{"stream"},
		)
		feedReadings = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "feed_readings",
				Help: "Readings loaded in the last cycle by stream",
			},
			[]string{"stream"},
		)
		alertActive = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alert_active",
				Help: "Alert state by fault type (1 active)",
			},
			[]string{"fault_type"},
		)
		alertDispatch = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_dispatch_total",
				Help: "Total alert dispatches by channel and result",
			},
			[]string{"channel", "result"},
		)
		archiveTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "archive_files_total",
				Help: "Total archived input files by outcome",
			},
			[]string{"outcome"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			cycleTotal,
			cycleLatency,
			faultCount,
			faultCost,
			feedMissing,
			feedReadings,
			alertActive,
			alertDispatch,
			archiveTotal,
			exportTotal,
			exportLatency,
		)
		if logger != nil {
			logger.Debug("metrics registered", zap.String("prefix", metricPrefix))
		}
	})
}

// ObserveCycle records cycle duration and result.
func ObserveCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if cycleTotal != nil {
		cycleTotal.WithLabelValues(result).Inc()
	}
	if cycleLatency != nil {
		cycleLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// SetFaults publishes the fault count and loss of one fault type.
func SetFaults(faultType string, count int, cost float64) {
	if faultCount != nil {
		faultCount.WithLabelValues(faultType).Set(float64(count))
	}
	if faultCost != nil {
		faultCost.WithLabelValues(faultType).Set(cost)
	}
}

// IncFeedMissing counts a missing stream feed.
func IncFeedMissing(stream string) {
	if stream == "" {
		stream = "unknown"
	}
	if feedMissing != nil {
		feedMissing.WithLabelValues(stream).Inc()
	}
}

// SetFeedReadings publishes the readings loaded for a stream.
func SetFeedReadings(stream string, count int) {
	if feedReadings != nil {
		feedReadings.WithLabelValues(stream).Set(float64(count))
	}
}

// SetAlertActive publishes the alert state of a fault type.
func SetAlertActive(faultType string, active bool) {
	if alertActive == nil {
		return
	}
	value := 0.0
	if active {
		value = 1
	}
	alertActive.WithLabelValues(faultType).Set(value)
}

// IncAlertDispatch counts an alert dispatch outcome.
func IncAlertDispatch(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if alertDispatch != nil {
		alertDispatch.WithLabelValues(channel, result).Inc()
	}
}

// AddArchived counts archived files by outcome.
func AddArchived(outcome string, count int) {
	if count <= 0 {
		return
	}
	if archiveTotal != nil {
		archiveTotal.WithLabelValues(outcome).Add(float64(count))
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess    = resultSuccess
	ResultError      = resultError
	ResultSuppressed = resultSuppressed
)
