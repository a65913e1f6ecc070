package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealIP returns the client address, preferring the first public hop of
// X-Real-IP / X-Forwarded-For over the socket address
func GetRealIP(c *gin.Context) string {
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); isPublicIP(realIP) {
		return realIP
	}

	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		for _, hop := range strings.Split(forwarded, ",") {
			if hop = strings.TrimSpace(hop); isPublicIP(hop) {
				return hop
			}
		}
	}

	return c.ClientIP()
}

// GetUserAgent returns the User-Agent header
func GetUserAgent(c *gin.Context) string {
	return c.Request.UserAgent()
}

func isPublicIP(raw string) bool {
	ip := net.ParseIP(raw)
	if ip == nil {
		return false
	}
	return !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified()
}
