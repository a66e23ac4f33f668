package routes

import (
	"sayu-ops/internal/handlers"

	"github.com/gin-gonic/gin"
)

type RunRoutes struct {
	handler *handlers.RunHandler
}

func NewRunRoutes(handler *handlers.RunHandler) *RunRoutes {
	return &RunRoutes{handler: handler}
}

func (r *RunRoutes) RegisterRoutes(router *gin.RouterGroup) {
	runs := router.Group("/runs")
	{
		runs.GET("", r.handler.ListRuns)
		runs.GET("/:id", r.handler.GetRun)
	}
}
