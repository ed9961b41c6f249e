package proxy

import (
	"encoding/json"
	"net"
	"time"

	"github.com/gin-gonic/gin"
)

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

// probeTarget checks whether the agent's internal port still accepts
// connections. Best-effort: the result only colors a single status response.
func probeTarget(target string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", target, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
