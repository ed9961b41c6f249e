package proxy

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/agentgate/internal/auth"
	"github.com/loykin/agentgate/internal/config"
	"github.com/loykin/agentgate/internal/status"
)

// Router is the externally visible HTTP surface: reserved health/status
// routes that are always servable, and a catch-all that forwards to the
// agent's internal port once it is ready.
//
// Endpoints (paths configurable, defaults shown):
//   GET  /health       always 200, independent of agent state
//   GET  /api/status   current status snapshot, optional liveness probe
//   ANY  /{path}       health-gated reverse proxy to the agent
type Router struct {
	tracker *status.Tracker
	routes  config.RoutesConfig
	proxy   config.ProxyConfig
	target  string // fixed host:port of the agent, immutable
	authmw  *auth.Middleware
	client  *http.Client
}

func NewRouter(tracker *status.Tracker, routes config.RoutesConfig, proxyCfg config.ProxyConfig, target string, authmw *auth.Middleware) *Router {
	return &Router{
		tracker: tracker,
		routes:  routes,
		proxy:   proxyCfg,
		target:  target,
		authmw:  authmw,
		client: &http.Client{
			Timeout: proxyCfg.Timeout,
			// The upstream response is relayed verbatim; redirects are the
			// caller's business.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET(r.routes.HealthPath, r.handleHealth)
	g.GET(r.routes.StatusPath, r.handleStatus)
	if r.routes.RootStatus {
		g.GET("/", r.handleStatus)
	}
	handlers := []gin.HandlerFunc{}
	if r.authmw != nil {
		handlers = append(handlers, r.authmw.GinAuth())
	}
	handlers = append(handlers, r.handleForward)
	g.NoRoute(handlers...)
	return g
}

// handleHealth must never block, never fail and never consult the child.
// The platform's liveness probe depends on it from the first moment the
// listener binds.
func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type statusResp struct {
	status.Snapshot
	Available bool      `json:"available"`
	Timestamp time.Time `json:"timestamp"`
}

// handleStatus reports the current snapshot. When the agent is ready and
// probing is enabled, a short-timeout connect against the internal port
// distinguishes "was ready" from "still responding"; a probe failure only
// affects this one response, never the phase.
func (r *Router) handleStatus(c *gin.Context) {
	snap := r.tracker.Snapshot()
	available := snap.Ready
	if snap.Ready && r.proxy.ProbeEnabled {
		available = probeTarget(r.target, r.proxy.ProbeTimeout)
	}
	writeJSON(c, http.StatusOK, statusResp{
		Snapshot:  snap,
		Available: available,
		Timestamp: time.Now().UTC(),
	})
}

// NewServer wraps the router in an http.Server bound to addr. The write
// timeout leaves headroom above the per-call proxy bound so long upstream
// responses are not cut off.
func NewServer(addr string, handler http.Handler, proxyTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      proxyTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
