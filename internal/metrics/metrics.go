// Package metrics exposes Prometheus collectors for the cleaning service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cleanerMessagesTotal         *prometheus.CounterVec
	cleanerEntitiesTotal         *prometheus.CounterVec
	cleanerTaskDurationSeconds   *prometheus.HistogramVec
	cleanerOutboundEventsTotal   *prometheus.CounterVec
	cleanerInFlightMessagesGauge prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cleanerMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cleaner_messages_total",
				Help: "Total queue messages handled, labeled by source type and outcome.",
			},
			[]string{"source", "outcome"},
		)

		cleanerEntitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cleaner_entities_total",
				Help: "Total normalized entities persisted, labeled by kind.",
			},
			[]string{"kind"},
		)

		cleanerTaskDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cleaner_task_duration_seconds",
				Help:    "Histogram of cleaning task durations, labeled by task and outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"task", "outcome"},
		)

		cleanerOutboundEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cleaner_outbound_events_total",
				Help: "Total outbound events published, labeled by event kind.",
			},
			[]string{"event"},
		)

		cleanerInFlightMessagesGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cleaner_in_flight_messages",
				Help: "Messages currently being processed.",
			},
		)
	})
}

// ObserveMessage counts one handled message by source and outcome.
func ObserveMessage(source, outcome string) {
	if cleanerMessagesTotal == nil {
		return
	}
	cleanerMessagesTotal.WithLabelValues(source, outcome).Inc()
}

// AddEntities counts persisted entities of one kind.
func AddEntities(kind string, n int) {
	if cleanerEntitiesTotal == nil || n <= 0 {
		return
	}
	cleanerEntitiesTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveTask records one task run duration by outcome.
func ObserveTask(task, outcome string, d time.Duration) {
	if cleanerTaskDurationSeconds == nil {
		return
	}
	cleanerTaskDurationSeconds.WithLabelValues(task, outcome).Observe(d.Seconds())
}

// ObserveOutboundEvent counts one published event by kind.
func ObserveOutboundEvent(event string) {
	if cleanerOutboundEventsTotal == nil {
		return
	}
	cleanerOutboundEventsTotal.WithLabelValues(event).Inc()
}

// MessageStarted increments the in-flight gauge.
func MessageStarted() {
	if cleanerInFlightMessagesGauge != nil {
		cleanerInFlightMessagesGauge.Inc()
	}
}

// MessageFinished decrements the in-flight gauge.
func MessageFinished() {
	if cleanerInFlightMessagesGauge != nil {
		cleanerInFlightMessagesGauge.Dec()
	}
}
