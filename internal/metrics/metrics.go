// Package metrics exposes notification engine counters to Prometheus.
package metrics

import (
	"net/http"

	"notifyd/internal/notification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options control the metrics module.
type Options struct {
	// Namespace defaults to "notifyd".
	Namespace string
	// DisableGoCollector skips the Go runtime collector.
	DisableGoCollector bool
	// DisableProcessCollector skips the process collector.
	DisableProcessCollector bool
}

// Module owns a private registry and implements notification.Recorder.
type Module struct {
	namespace string
	registry  *prometheus.Registry

	fired      *prometheus.CounterVec
	queued     *prometheus.CounterVec
	flushed    prometheus.Counter
	flushes    prometheus.Counter
	dispatched *prometheus.CounterVec
	failed     *prometheus.CounterVec
}

var _ notification.Recorder = (*Module)(nil)

func NewModule(opts Options) (*Module, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = "notifyd"
	}
	reg := prometheus.NewRegistry()
	if !opts.DisableGoCollector {
		if err := reg.Register(prometheus.NewGoCollector()); err != nil {
			return nil, err
		}
	}
	if !opts.DisableProcessCollector {
		if err := reg.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}

	m := &Module{
		namespace: ns,
		registry:  reg,
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "notifications_fired_total",
			Help:      "Notifications fired for an active event type",
		}, []string{"event"}),
		queued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "notifications_queued_total",
			Help:      "Notifications deferred until handlers were installed",
		}, []string{"event"}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "notifications_flushed_total",
			Help:      "Deferred notifications dispatched by the cache flush",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_flushes_total",
			Help:      "Deferred cache flushes",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "actions_dispatched_total",
			Help:      "Actions handed to their handler without error",
		}, []string{"action"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "handler_failures_total",
			Help:      "Handler invocations that returned an error or panicked",
		}, []string{"action"}),
	}
	for _, c := range []prometheus.Collector{m.fired, m.queued, m.flushed, m.flushes, m.dispatched, m.failed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Module) Fired(eventType string)  { m.fired.WithLabelValues(eventType).Inc() }
func (m *Module) Queued(eventType string) { m.queued.WithLabelValues(eventType).Inc() }

func (m *Module) Flushed(n int) {
	m.flushes.Inc()
	m.flushed.Add(float64(n))
}

func (m *Module) Dispatched(kind notification.Kind) {
	m.dispatched.WithLabelValues(string(kind)).Inc()
}

func (m *Module) HandlerFailed(kind notification.Kind) {
	m.failed.WithLabelValues(string(kind)).Inc()
}

// GaugeFunc registers a gauge sampled from fn at scrape time.
func (m *Module) GaugeFunc(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Module) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
