package routes

import (
	"sayu-ops/internal/handlers"

	"github.com/gin-gonic/gin"
)

type AuditRoutes struct {
	handler *handlers.AuditHandler
}

func NewAuditRoutes(handler *handlers.AuditHandler) *AuditRoutes {
	return &AuditRoutes{handler: handler}
}

func (r *AuditRoutes) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/audit", r.handler.RunAudit)
}
