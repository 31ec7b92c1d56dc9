package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/techpack/backend/internal/infrastructure/admission"
	"github.com/techpack/backend/internal/interfaces/http/dto"
	"github.com/techpack/backend/internal/interfaces/http/handler"
	"github.com/techpack/backend/internal/interfaces/http/middleware"
	"github.com/techpack/backend/internal/interfaces/http/router"
)

func newGatedEngine(t *testing.T, svc handler.TechPackService, bulkLimit int) *gin.Engine {
	t.Helper()
	store := admission.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	budgets := map[admission.Class]admission.Budget{
		admission.ClassSingle:  {Window: time.Minute, MaxRequests: 10},
		admission.ClassBulk:    {Window: time.Minute, MaxRequests: bulkLimit},
		admission.ClassPreview: {Window: time.Minute, MaxRequests: 10},
	}
	controller, err := admission.NewController(budgets, store)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(middleware.SubjectKey, "sub:"+c.GetHeader("X-Test-Subject"))
		c.Next()
	})
	r := router.NewRouter(engine)
	r.Register(handler.TechPackRoutes(handler.NewTechPackHandler(svc), controller)).Setup()
	return engine
}

func TestTechPackRoutes_Admission(t *testing.T) {
	t.Run("bulk budget is spent per subject", func(t *testing.T) {
		svc := new(mockService)
		svc.On("BulkGenerate", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
		engine := newGatedEngine(t, svc, 1)

		first := do(engine, http.MethodPost, "/api/v1/techpacks/bulk", map[string]any{"document_ids": []string{"a"}})
		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

		second := do(engine, http.MethodPost, "/api/v1/techpacks/bulk", map[string]any{"document_ids": []string{"a"}})
		require.Equal(t, http.StatusTooManyRequests, second.Code)
		assert.NotEmpty(t, second.Header().Get("Retry-After"))
		assert.Equal(t, dto.ErrCodeRateLimited, decode(t, second).Error.Code)

		svc.AssertNumberOfCalls(t, "BulkGenerate", 1)
	})

	t.Run("mutation hooks are never gated", func(t *testing.T) {
		svc := new(mockService)
		svc.On("OnDocumentMutated", mock.Anything, "tp-1").Return(nil)
		engine := newGatedEngine(t, svc, 1)

		for range 3 {
			w := do(engine, http.MethodPost, "/api/v1/techpacks/tp-1/mutations", nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("lists every techpack route", func(t *testing.T) {
		routes := handler.TechPackRoutes(handler.NewTechPackHandler(new(mockService)), nil).Paths()

		assert.ElementsMatch(t, []router.RouteInfo{
			{Method: http.MethodPost, Path: "/techpacks/bulk"},
			{Method: http.MethodPost, Path: "/techpacks/mutations"},
			{Method: http.MethodGet, Path: "/techpacks/:id"},
			{Method: http.MethodPost, Path: "/techpacks/:id/generate"},
			{Method: http.MethodGet, Path: "/techpacks/:id/pages/:page/preview"},
			{Method: http.MethodPost, Path: "/techpacks/:id/mutations"},
		}, routes)
	})
}
