package middleware

import (
	"context"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/techpack/backend/internal/infrastructure/telemetry"
)

// Profiling attaches route and method pprof labels to the request so CPU
// samples can be attributed per endpoint. Admission adds the request class.
func Profiling(enabled bool, skipPaths ...string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || slices.Contains(skipPaths, route) {
			c.Next()
			return
		}
		labels := telemetry.HTTPRequestLabels(route, c.Request.Method, "")
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
