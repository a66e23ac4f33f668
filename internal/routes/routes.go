package routes

import (
	"net/http"

	"sayu-ops/internal/handlers"
	"sayu-ops/internal/metrics"
	"sayu-ops/internal/middlewares"

	"github.com/gin-gonic/gin"
)

// Handlers groups what the ops API serves. A nil handler leaves its routes out.
type Handlers struct {
	Runs   *handlers.RunHandler
	Audit  *handlers.AuditHandler
	Schema *handlers.SchemaHandler
	Verify *handlers.VerifyHandler
}

func RegisterRoutes(router *gin.Engine, secret []byte, h Handlers) {
	api := router.Group("/api/v1")
	api.Use(middlewares.Authenticate(secret))

	if h.Runs != nil {
		NewRunRoutes(h.Runs).RegisterRoutes(api)
	}
	if h.Audit != nil {
		NewAuditRoutes(h.Audit).RegisterRoutes(api)
	}
	if h.Schema != nil {
		NewSchemaRoutes(h.Schema).RegisterRoutes(api)
	}
	if h.Verify != nil {
		NewVerifyRoutes(h.Verify).RegisterRoutes(api)
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}
