package observability

import (
	"strconv"
	"time"

	"go-sysadmin/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics 以路由模板为 path 标签，未匹配路由归入 unmatched，避免标签基数失控
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.Inflight.Inc()
		defer metrics.Inflight.Dec()
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RequestDuration.WithLabelValues(path, c.Request.Method).Observe(time.Since(start).Seconds())
		metrics.RequestTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
