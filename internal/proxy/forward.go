package proxy

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loykin/agentgate/internal/metrics"
	"github.com/loykin/agentgate/internal/status"
)

// Hop-by-hop headers are meaningful only for one transport leg and must not
// cross the proxy boundary in either direction. Host and Content-Length are
// recomputed by the HTTP layer for the outbound leg.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
	"Host",
}

type notReadyResp struct {
	Error  string       `json:"error"`
	Phase  status.Phase `json:"phase"`
	Detail string       `json:"detail,omitempty"`
}

type proxyErrResp struct {
	Error string `json:"error"`
	Path  string `json:"path"`
}

// handleForward relays the request to the agent's internal port. While the
// agent is not ready no outbound call is made at all.
func (r *Router) handleForward(c *gin.Context) {
	snap := r.tracker.Snapshot()
	if snap.Phase != status.PhaseReady {
		metrics.IncNotReady()
		writeJSON(c, http.StatusServiceUnavailable, notReadyResp{
			Error:  "agent not ready",
			Phase:  snap.Phase,
			Detail: snap.LastError,
		})
		return
	}
	if r.proxy.ProbeEnabled && !probeTarget(r.target, r.proxy.ProbeTimeout) {
		metrics.IncNotReady()
		writeJSON(c, http.StatusServiceUnavailable, notReadyResp{
			Error: "agent not responding",
			Phase: snap.Phase,
		})
		return
	}

	outURL := "http://" + r.target + c.Request.URL.RequestURI()
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, outURL, c.Request.Body)
	if err != nil {
		metrics.IncProxyError()
		writeJSON(c, http.StatusBadGateway, proxyErrResp{Error: err.Error(), Path: c.Request.URL.Path})
		return
	}
	copyHeaders(req.Header, c.Request.Header)

	resp, err := r.client.Do(req)
	if err != nil {
		// Connection refused, timeout and friends surface as one failed
		// response; they never take the gateway down.
		metrics.IncProxyError()
		writeJSON(c, http.StatusBadGateway, proxyErrResp{Error: err.Error(), Path: c.Request.URL.Path})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	header := c.Writer.Header()
	copyHeaders(header, resp.Header)
	c.Status(resp.StatusCode)
	_, _ = io.Copy(c.Writer, resp.Body)
	metrics.IncProxyRequest(resp.StatusCode)
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(name) == h {
			return true
		}
	}
	return false
}
