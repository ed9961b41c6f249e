package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware protects proxied routes with HTTP basic auth. Reserved health
// and status routes must not be wrapped: the platform's probes carry no
// credentials. The bypass hook disables auth entirely when the hosting
// platform terminates authentication upstream.
type Middleware struct {
	enabled  bool
	username string
	password string
	bypass   func() bool
}

func New(enabled bool, username, password string, bypass func() bool) *Middleware {
	return &Middleware{enabled: enabled, username: username, password: password, bypass: bypass}
}

// GinAuth returns a Gin middleware enforcing basic auth.
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled || (m.bypass != nil && m.bypass()) {
			c.Next()
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		if !ok || !m.credentialsMatch(user, pass) {
			c.Header("WWW-Authenticate", `Basic realm="Restricted"`)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *Middleware) credentialsMatch(user, pass string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), []byte(m.username))
	p := subtle.ConstantTimeCompare([]byte(pass), []byte(m.password))
	return u == 1 && p == 1
}
