package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techpack/backend/internal/interfaces/http/dto"
	"github.com/techpack/backend/internal/interfaces/http/handler"
)

func newHealthEngine(h *handler.HealthHandler, metrics http.Handler) *gin.Engine {
	engine := gin.New()
	handler.HealthRoutes(h, metrics).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func TestHealthHandler(t *testing.T) {
	healthy := func(context.Context) error { return nil }

	t.Run("health reports version", func(t *testing.T) {
		w := do(newHealthEngine(handler.NewHealthHandler("1.2.3", nil), nil), http.MethodGet, "/api/v1/health", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var info handler.InfoResponse
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &info))
		assert.Equal(t, "ok", info.Status)
		assert.Equal(t, "1.2.3", info.Version)
		assert.NotEmpty(t, info.GoVersion)
	})

	t.Run("live always answers", func(t *testing.T) {
		h := handler.NewHealthHandler("dev", map[string]handler.Check{
			"database": func(context.Context) error { return errors.New("down") },
		})

		w := do(newHealthEngine(h, nil), http.MethodGet, "/api/v1/health/live", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ready when every check passes", func(t *testing.T) {
		h := handler.NewHealthHandler("dev", map[string]handler.Check{"database": healthy, "pool": healthy})

		w := do(newHealthEngine(h, nil), http.MethodGet, "/api/v1/health/ready", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.HealthResponse
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
		assert.Equal(t, map[string]string{"database": "ok", "pool": "ok"}, resp.Checks)
	})

	t.Run("not ready when a check fails", func(t *testing.T) {
		h := handler.NewHealthHandler("dev", map[string]handler.Check{
			"database": healthy,
			"pool":     func(context.Context) error { return errors.New("all slots quarantined") },
			"cache":    func(context.Context) error { return errors.New("connection refused") },
		})

		w := do(newHealthEngine(h, nil), http.MethodGet, "/api/v1/health/ready", nil)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		env := decode(t, w)
		assert.Equal(t, dto.ErrCodeServiceNotReady, env.Error.Code)
		assert.Equal(t, "Dependencies unavailable: cache, pool", env.Error.Message)

		var resp dto.HealthResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, "all slots quarantined", resp.Checks["pool"])
		assert.Equal(t, "ok", resp.Checks["database"])
	})

	t.Run("checks observe the readiness deadline", func(t *testing.T) {
		h := handler.NewHealthHandler("dev", map[string]handler.Check{
			"deadline": func(ctx context.Context) error {
				_, ok := ctx.Deadline()
				if !ok {
					return errors.New("no deadline")
				}
				return nil
			},
		})

		w := do(newHealthEngine(h, nil), http.MethodGet, "/api/v1/health/ready", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("metrics endpoint wraps the scrape handler", func(t *testing.T) {
		scrape := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# HELP techpack_render_jobs_total\n")
		})

		w := do(newHealthEngine(handler.NewHealthHandler("dev", nil), scrape), http.MethodGet, "/api/v1/metrics", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "# HELP"))
	})

	t.Run("no metrics route without a handler", func(t *testing.T) {
		w := do(newHealthEngine(handler.NewHealthHandler("dev", nil), nil), http.MethodGet, "/api/v1/metrics", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
