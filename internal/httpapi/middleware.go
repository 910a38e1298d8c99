package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimit applies a process-wide token bucket to the API group. The
// push channel and /metrics are exempt; scrapers and dashboards poll on
// their own cadence.
func rateLimit(perSec float64, burst int) gin.HandlerFunc {
	if perSec <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := rate.NewLimiter(rate.Limit(perSec), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
