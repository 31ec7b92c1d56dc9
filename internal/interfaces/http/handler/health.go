package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/techpack/backend/internal/interfaces/http/dto"
)

// readinessTimeout bounds each dependency check
const readinessTimeout = 2 * time.Second

// Check probes one dependency; nil means healthy
type Check func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	BaseHandler
	version   string
	startTime time.Time
	checks    map[string]Check
}

// NewHealthHandler creates a HealthHandler. checks run on every readiness probe.
func NewHealthHandler(version string, checks map[string]Check) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		checks:    checks,
	}
}

// InfoResponse is the body of GET /health
type InfoResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// Health reports build and uptime information.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	h.Success(c, InfoResponse{
		Status:    "ok",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Live answers as long as the process serves HTTP.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	h.Success(c, dto.HealthResponse{Status: "ok"})
}

// Ready runs every dependency check concurrently and answers 503 when any fails.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(h.checks))
		failed  []string
	)
	for name, check := range h.checks {
		wg.Go(func() {
			status := "ok"
			if err := check(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			results[name] = status
			if status != "ok" {
				failed = append(failed, name)
			}
		})
	}
	wg.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    dto.HealthResponse{Status: "unavailable", Version: h.version, Checks: results},
			Error: &dto.ErrorInfo{
				Code:      dto.ErrCodeServiceNotReady,
				Message:   "Dependencies unavailable: " + strings.Join(failed, ", "),
				RequestID: getRequestID(c),
			},
		})
		return
	}
	h.Success(c, dto.HealthResponse{Status: "ok", Version: h.version, Checks: results})
}

