package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// RealIP resolves the client's network origin and stores it in the Gin
// context (key: "real_ip"). Rate limiting keys off this value, so the
// precedence order matters:
// 1) X-Real-IP (set by the fronting proxy)
// 2) X-Forwarded-For, left-most entry
// 3) transport-level peer address
func RealIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if xr := strings.TrimSpace(c.GetHeader("X-Real-IP")); xr != "" {
			if ip := net.ParseIP(xr); ip != nil {
				c.Set("real_ip", ip.String())
				c.Next()
				return
			}
		}
		if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				first := strings.TrimSpace(parts[0])
				if ip := net.ParseIP(first); ip != nil {
					c.Set("real_ip", ip.String())
					c.Next()
					return
				}
			}
		}
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		c.Set("real_ip", host)
		c.Next()
	}
}
