package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the synchronization loop.
type Metrics struct {
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	events         *prometheus.CounterVec
	respawns       prometheus.Counter
	streamFailures prometheus.Counter
	updateCounter  prometheus.Gauge
	engineUp       prometheus.Gauge
	lastBroadcast  prometheus.Gauge
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

func getMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics(prometheus.DefaultRegisterer)
	})
	return metricsInstance
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "harborview",
				Subsystem: "monitor",
				Name:      "cycles_total",
				Help:      "Fetch and detect cycles partitioned by outcome.",
			},
			[]string{"result"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "harborview",
				Subsystem: "monitor",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of a single fetch and detect cycle.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "harborview",
				Subsystem: "monitor",
				Name:      "engine_events_total",
				Help:      "Engine events received on the subscription stream.",
			},
			[]string{"type"},
		),
		respawns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "harborview",
				Subsystem: "monitor",
				Name:      "event_task_respawns_total",
				Help:      "Times the event subscription task was respawned.",
			},
		),
		streamFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "harborview",
				Subsystem: "monitor",
				Name:      "event_stream_failures_total",
				Help:      "Event stream read failures.",
			},
		),
		updateCounter: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "harborview",
				Subsystem: "monitor",
				Name:      "update_counter",
				Help:      "Update counter of the last broadcast snapshot.",
			},
		),
		engineUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "harborview",
				Subsystem: "engine",
				Name:      "up",
				Help:      "1 when the last cycle saw a running engine, 0 otherwise.",
			},
		),
		lastBroadcast: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "harborview",
				Subsystem: "monitor",
				Name:      "last_broadcast_timestamp",
				Help:      "Unix timestamp of the last broadcast.",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.cycles,
			m.cycleDuration,
			m.events,
			m.respawns,
			m.streamFailures,
			m.updateCounter,
			m.engineUp,
			m.lastBroadcast,
		)
	}
	return m
}

func (m *Metrics) observeCycle(result string, started time.Time) {
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeBroadcast(counter uint64, at time.Time) {
	m.updateCounter.Set(float64(counter))
	m.lastBroadcast.Set(float64(at.Unix()))
}

func (m *Metrics) setEngineUp(up bool) {
	if up {
		m.engineUp.Set(1)
		return
	}
	m.engineUp.Set(0)
}
