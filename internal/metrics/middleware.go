package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMetrics is Gin middleware that records request count and latency by route.
// The scrape endpoint and SSE streams are skipped: one would count itself, the other
// would record connection lifetimes as latency.
func HTTPMetrics(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		route := c.FullPath() // route pattern keeps cardinality bounded
		if route == "" {
			route = "unmatched"
		}
		if skip[route] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
