package agentgate

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/agentgate/internal/auth"
	cfg "github.com/loykin/agentgate/internal/config"
	"github.com/loykin/agentgate/internal/history"
	"github.com/loykin/agentgate/internal/history/factory"
	"github.com/loykin/agentgate/internal/metrics"
	"github.com/loykin/agentgate/internal/proxy"
	"github.com/loykin/agentgate/internal/status"
	"github.com/loykin/agentgate/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type AgentConfig = cfg.AgentConfig

type Phase = status.Phase

type Snapshot = status.Snapshot

type Tracker = status.Tracker

type HistorySink = history.Sink

const (
	PhaseInitializing    = status.PhaseInitializing
	PhaseRunningInit     = status.PhaseRunningInit
	PhaseStartingChild   = status.PhaseStartingChild
	PhaseReady           = status.PhaseReady
	PhaseInitFailed      = status.PhaseInitFailed
	PhaseChildTerminated = status.PhaseChildTerminated
	PhaseTimedOut        = status.PhaseTimedOut
	PhaseError           = status.PhaseError
)

// LoadConfig reads a TOML config file with defaults and the PORT env
// contract applied.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewTracker creates the shared status record all components observe.
func NewTracker() *Tracker { return status.NewTracker() }

// Supervisor is a thin facade over internal/supervisor.Supervisor.
type Supervisor = supervisor.Supervisor

// NewSupervisor creates a supervisor for the configured agent. childLog may
// be nil to discard the agent's output after readiness scanning.
func NewSupervisor(agent AgentConfig, tracker *Tracker, logger *slog.Logger, childLog io.WriteCloser) *Supervisor {
	return supervisor.New(agent, tracker, logger, childLog)
}

// NewHandler builds the gateway HTTP handler: reserved health and status
// routes plus the readiness-gated reverse proxy for everything else.
func NewHandler(c *Config, tracker *Tracker) http.Handler {
	authmw := auth.New(c.Auth.Enabled, c.Auth.Username, c.Auth.Password, c.PlatformActive)
	return proxy.NewRouter(tracker, c.Routes, c.Proxy, c.ProxyTarget(), authmw).Handler()
}

// NewServer wraps a handler in an http.Server with gateway timeouts.
func NewServer(addr string, handler http.Handler, proxyTimeout time.Duration) *http.Server {
	return proxy.NewServer(addr, handler, proxyTimeout)
}

// NewHistorySink creates a phase history sink from a DSN
// (sqlite path or postgres URL).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// RegisterMetrics registers gateway metrics on the given registerer.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers gateway metrics on the default registerer.
func RegisterMetricsDefault() error { return metrics.RegisterDefault() }

// ServeMetrics serves the Prometheus endpoint on addr (blocking).
func ServeMetrics(addr string) error { return metrics.Serve(addr) }
