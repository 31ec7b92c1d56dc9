package telemetry_test

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/techpack/backend/internal/infrastructure/telemetry"
)

func TestWithProfilingLabels(t *testing.T) {
	ctx := context.Background()

	t.Run("no labels runs with the same context", func(t *testing.T) {
		called := false
		telemetry.WithProfilingLabels(ctx, nil, func(c context.Context) {
			called = true
			assert.Equal(t, ctx, c)
		})
		assert.True(t, called)
	})

	t.Run("labels are visible inside fn", func(t *testing.T) {
		labels := map[string]string{
			"Request-Class": "bulk",
			"route":         "/api/v1/techpacks/bulk",
			"document_id":   "TP-1",
			"method":        "",
			"operation":     strings.Repeat("x", 200),
		}
		telemetry.WithProfilingLabels(ctx, labels, func(c context.Context) {
			v, ok := pprof.Label(c, "request_class")
			assert.True(t, ok)
			assert.Equal(t, "bulk", v)

			v, _ = pprof.Label(c, telemetry.ProfilingLabelRoute)
			assert.Equal(t, "/api/v1/techpacks/bulk", v)

			_, ok = pprof.Label(c, "document_id")
			assert.False(t, ok)
			_, ok = pprof.Label(c, telemetry.ProfilingLabelMethod)
			assert.False(t, ok)

			v, _ = pprof.Label(c, telemetry.ProfilingLabelOperation)
			assert.Len(t, v, telemetry.MaxLabelValueLength)
		})
	})

	t.Run("only high cardinality labels", func(t *testing.T) {
		telemetry.WithProfilingLabels(ctx, map[string]string{"request_id": "r-1"}, func(c context.Context) {
			_, ok := pprof.Label(c, "request_id")
			assert.False(t, ok)
		})
	})
}

func TestHTTPRequestLabels(t *testing.T) {
	assert.Equal(t, map[string]string{
		telemetry.ProfilingLabelRoute:  "/api/v1/techpacks/:id/pdf",
		telemetry.ProfilingLabelMethod: "POST",
		telemetry.ProfilingLabelClass:  "single",
	}, telemetry.HTTPRequestLabels("/api/v1/techpacks/:id/pdf", "POST", "single"))

	assert.Equal(t, map[string]string{telemetry.ProfilingLabelMethod: "GET"}, telemetry.HTTPRequestLabels("", "GET", ""))
}
