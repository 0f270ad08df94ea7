package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "monitor_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	readingsPersisted  prometheus.Counter
	readingsDuplicates prometheus.Counter

	alarmTransitions *prometheus.CounterVec
	notifications    *prometheus.CounterVec

	bucketQueryLatency *prometheus.HistogramVec

	outboxPending prometheus.Gauge
)

// Init registers observability metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		readingsPersisted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_persisted_total",
				Help: "Total readings written to storage",
			},
		)
		readingsDuplicates = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_duplicates_total",
				Help: "Total readings absorbed as natural-key duplicates",
			},
		)

		alarmTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_transitions_total",
				Help: "Total net alarm state changes by final state",
			},
			[]string{"state"},
		)
		notifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_notifications_total",
				Help: "Total alarm notification deliveries by result",
			},
			[]string{"result"},
		)

		bucketQueryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bucket_query_latency_seconds",
				Help:    "Bucket aggregation query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		outboxPending = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "outbox_pending",
				Help: "Outbox records waiting to be dispatched",
			},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			readingsPersisted,
			readingsDuplicates,
			alarmTransitions,
			notifications,
			bucketQueryLatency,
			outboxPending,
		)
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// AddReadingsPersisted counts rows actually written by one batch.
func AddReadingsPersisted(count int64) {
	if count <= 0 {
		return
	}
	if readingsPersisted != nil {
		readingsPersisted.Add(float64(count))
	}
}

// AddReadingsDuplicates counts rows absorbed against storage.
func AddReadingsDuplicates(count int64) {
	if count <= 0 {
		return
	}
	if readingsDuplicates != nil {
		readingsDuplicates.Add(float64(count))
	}
}

// IncAlarmTransition increments the net transition counter.
func IncAlarmTransition(state string) {
	if state == "" {
		state = "unknown"
	}
	if alarmTransitions != nil {
		alarmTransitions.WithLabelValues(state).Inc()
	}
}

// IncNotification increments notification delivery counter.
func IncNotification(result string) {
	if result == "" {
		result = resultSuccess
	}
	if notifications != nil {
		notifications.WithLabelValues(result).Inc()
	}
}

// ObserveBucketQuery records bucket query duration and result.
func ObserveBucketQuery(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if bucketQueryLatency != nil {
		bucketQueryLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// SetOutboxPending sets the pending outbox gauge.
func SetOutboxPending(count int64) {
	if count < 0 {
		count = 0
	}
	if outboxPending != nil {
		outboxPending.Set(float64(count))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)
