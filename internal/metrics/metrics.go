package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentgate",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Proxied requests by upstream status code.",
		}, []string{"code"},
	)
	proxyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentgate",
			Subsystem: "proxy",
			Name:      "errors_total",
			Help:      "Forwarding attempts that failed with a transport error.",
		},
	)
	proxyNotReady = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentgate",
			Subsystem: "proxy",
			Name:      "not_ready_total",
			Help:      "Requests refused because the agent was not ready.",
		},
	)
	phaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentgate",
			Subsystem: "agent",
			Name:      "phase_transitions_total",
			Help:      "Agent status phase transitions.",
		}, []string{"from", "to"},
	)
	childStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentgate",
			Subsystem: "agent",
			Name:      "child_starts_total",
			Help:      "Number of child process spawns.",
		},
	)
	childStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentgate",
			Subsystem: "agent",
			Name:      "child_stops_total",
			Help:      "Number of observed child process exits.",
		},
	)
	readyDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentgate",
			Subsystem: "agent",
			Name:      "ready_duration_seconds",
			Help:      "Seconds between child spawn and readiness marker.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{proxyRequests, proxyErrors, proxyNotReady, phaseTransitions, childStarts, childStops, readyDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers with the default Prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Serve runs a standalone metrics server on addr exposing /metrics.
// It blocks in the caller goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncProxyRequest(code int) {
	if regOK.Load() {
		proxyRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}

func IncProxyError() {
	if regOK.Load() {
		proxyErrors.Inc()
	}
}

func IncNotReady() {
	if regOK.Load() {
		proxyNotReady.Inc()
	}
}

func RecordPhaseTransition(from, to string) {
	if regOK.Load() {
		phaseTransitions.WithLabelValues(from, to).Inc()
	}
}

func IncChildStart() {
	if regOK.Load() {
		childStarts.Inc()
	}
}

func IncChildStop() {
	if regOK.Load() {
		childStops.Inc()
	}
}

func ObserveReadyDuration(seconds float64) {
	if regOK.Load() {
		readyDuration.Set(seconds)
	}
}
