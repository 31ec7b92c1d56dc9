package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestRouter(t *testing.T) {
	t.Run("defaults to v1", func(t *testing.T) {
		r := NewRouter(gin.New())
		assert.Equal(t, "/api/v1", r.BasePath())
	})

	t.Run("custom version", func(t *testing.T) {
		r := NewRouter(gin.New(), WithAPIVersion("v2"))
		assert.Equal(t, "/api/v2", r.BasePath())
	})

	t.Run("mounts registered groups", func(t *testing.T) {
		engine := gin.New()
		group := NewDomainGroup("techpacks", "/techpacks")
		group.GET("/:id", func(c *gin.Context) {
			c.String(http.StatusOK, c.Param("id"))
		})

		r := NewRouter(engine)
		r.Register(group).Setup()

		w := serve(engine, http.MethodGet, "/api/v1/techpacks/doc-1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "doc-1", w.Body.String())
		assert.Contains(t, r.Routes(), RouteInfo{Method: http.MethodGet, Path: "/api/v1/techpacks/:id"})
	})
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("admin", "/admin")
		assert.Equal(t, "admin", g.Name())
		assert.Equal(t, "/admin", g.Prefix())
	})

	t.Run("group middleware runs before per-route middleware", func(t *testing.T) {
		var order []string
		mark := func(name string) gin.HandlerFunc {
			return func(c *gin.Context) {
				order = append(order, name)
				c.Next()
			}
		}

		engine := gin.New()
		g := NewDomainGroup("techpacks", "/techpacks").Use(mark("group"))
		g.POST("/bulk", mark("route"), func(c *gin.Context) {
			order = append(order, "handler")
			c.Status(http.StatusAccepted)
		})
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, http.MethodPost, "/api/v1/techpacks/bulk")
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, []string{"group", "route", "handler"}, order)
	})

	t.Run("nested groups", func(t *testing.T) {
		engine := gin.New()
		admin := NewDomainGroup("admin", "/admin")
		admin.Group("cache", "/cache").POST("/flush", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		admin.GET("/pool", func(c *gin.Context) { c.Status(http.StatusOK) })
		admin.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/api/v1/admin/cache/flush").Code)
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/admin/pool").Code)
		assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/admin/cache/flush").Code)

		assert.ElementsMatch(t, []RouteInfo{
			{Method: http.MethodGet, Path: "/admin/pool"},
			{Method: http.MethodPost, Path: "/admin/cache/flush"},
		}, admin.Paths())
	})
}
