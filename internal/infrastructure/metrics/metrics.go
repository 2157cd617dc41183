package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-hub/internal/cache"
	"github.com/nerrad567/gray-logic-hub/internal/intent"
)

const namespace = "graylogic_hub"

// Metrics holds the hub's collectors.
type Metrics struct {
	registry *prometheus.Registry

	refreshes        *prometheus.CounterVec
	refreshDuration  *prometheus.HistogramVec
	fallbacks        *prometheus.CounterVec
	entities         prometheus.Gauge
	rejected         prometheus.Gauge
	lastSuccess      prometheus.Gauge
	matchBatches     prometheus.Counter
	matchIntents     *prometheus.CounterVec
	matchCommands    prometheus.Counter
	matchDuration    prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	constrainedGauge prometheus.Gauge
}

var (
	_ cache.Observer  = (*Metrics)(nil)
	_ intent.Observer = (*Metrics)(nil)
)

// New creates and registers the hub metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Snapshot refresh attempts by outcome and tier.",
		}, []string{"outcome", "tier", "forced"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Snapshot refresh duration by outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_fallbacks_total",
			Help:      "Strategy tiers that failed before another tier produced the snapshot.",
		}, []string{"tier"}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_entities",
			Help:      "Entities in the current snapshot.",
		}),
		rejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_rejected",
			Help:      "Registry records rejected while building the current snapshot.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		matchBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_batches_total",
			Help:      "Intent match calls.",
		}),
		matchIntents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_intents_total",
			Help:      "Intent descriptors by result.",
		}, []string{"result"}),
		matchCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_commands_total",
			Help:      "Commands emitted by intent matching.",
		}),
		matchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Intent match call duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		constrainedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "constrained_environment",
			Help:      "1 when the hub runs with constrained resource thresholds.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.refreshes,
		m.refreshDuration,
		m.fallbacks,
		m.entities,
		m.rejected,
		m.lastSuccess,
		m.matchBatches,
		m.matchIntents,
		m.matchCommands,
		m.matchDuration,
		m.httpRequests,
		m.constrainedGauge,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetConstrained records the detected environment.
func (m *Metrics) SetConstrained(constrained bool) {
	if constrained {
		m.constrainedGauge.Set(1)
		return
	}
	m.constrainedGauge.Set(0)
}

// RefreshFinished records one refresh attempt.
func (m *Metrics) RefreshFinished(r cache.Report) {
	tier := r.Tier
	if tier == "" {
		tier = "none"
	}
	m.refreshes.WithLabelValues(r.Outcome, tier, strconv.FormatBool(r.Forced)).Inc()
	m.refreshDuration.WithLabelValues(r.Outcome).Observe(r.Duration.Seconds())
	for _, f := range r.Fallbacks {
		m.fallbacks.WithLabelValues(f).Inc()
	}
	if r.Outcome == cache.OutcomeSuccess {
		m.entities.Set(float64(r.Entities))
		m.rejected.Set(float64(r.Rejected))
		m.lastSuccess.SetToCurrentTime()
	}
}

// BatchMatched records one intent match call.
func (m *Metrics) BatchMatched(b intent.Batch, elapsed time.Duration) {
	m.matchBatches.Inc()
	m.matchCommands.Add(float64(len(b.Commands)))
	m.matchDuration.Observe(elapsed.Seconds())
	for _, o := range b.Outcomes {
		m.matchIntents.WithLabelValues(intentResult(o)).Inc()
	}
}

func intentResult(o intent.Outcome) string {
	switch {
	case o.Error != nil:
		return "invalid"
	case o.UnknownType:
		return "unknown_type"
	case o.Matched == 0:
		return "unmatched"
	case o.Ambiguous:
		return "ambiguous"
	default:
		return "matched"
	}
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route, method string, status int) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}
