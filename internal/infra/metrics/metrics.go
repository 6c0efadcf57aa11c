// File: internal/infra/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_ingested_total",
			Help: "Change events handed to the bus, per collection.",
		},
		[]string{"collection"},
	)

	eventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_dispatched_total",
			Help: "Callback deliveries performed by the bus, per collection.",
		},
		[]string{"collection"},
	)

	callbackFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_callback_failures_total",
			Help: "Subscriber callbacks that panicked during dispatch.",
		},
	)

	flushBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bus_flush_batch_size",
			Help:    "Events delivered per debounce flush.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	subscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bus_subscriptions_active",
			Help: "Currently registered bus subscriptions.",
		},
	)

	feedConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_connected",
			Help: "1 when the audience's change-feed connection is healthy.",
		},
		[]string{"audience"},
	)

	feedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Reconnect attempts per audience.",
		},
		[]string{"audience"},
	)

	recoveryScans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_scans_total",
			Help: "Stuck-job scan cycles executed.",
		},
	)

	jobsRetried = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_jobs_retried_total",
			Help: "Jobs re-invoked after stuck detection, per kind.",
		},
		[]string{"kind"},
	)

	jobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_jobs_failed_total",
			Help: "Jobs force-failed after exhausting retries, per kind.",
		},
		[]string{"kind"},
	)

	refundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compensation_refunds_total",
			Help: "Refunds applied by the compensation engine.",
		},
	)

	refundedCents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compensation_refunded_cents_total",
			Help: "Total cents credited back to accounts.",
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			eventsIngested, eventsDispatched, callbackFailures,
			flushBatchSize, subscriptionsActive,
			feedConnected, feedReconnects,
			recoveryScans, jobsRetried, jobsFailed,
			refundsTotal, refundedCents,
		)
	})
}

func IncEventsIngested(collection string)   { eventsIngested.WithLabelValues(collection).Inc() }
func IncEventsDispatched(collection string) { eventsDispatched.WithLabelValues(collection).Inc() }
func IncCallbackFailure()                   { callbackFailures.Inc() }
func ObserveFlushBatch(n int)               { flushBatchSize.Observe(float64(n)) }
func SetSubscriptionsActive(n int)          { subscriptionsActive.Set(float64(n)) }

func SetFeedConnected(audience string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	feedConnected.WithLabelValues(audience).Set(v)
}
func IncFeedReconnect(audience string) { feedReconnects.WithLabelValues(audience).Inc() }

func IncRecoveryScan()            { recoveryScans.Inc() }
func IncJobRetried(kind string)   { jobsRetried.WithLabelValues(kind).Inc() }
func IncJobFailed(kind string)    { jobsFailed.WithLabelValues(kind).Inc() }
func IncRefund(amountCents int64) { refundsTotal.Inc(); refundedCents.Add(float64(amountCents)) }
