package routes

import (
	"sayu-ops/internal/handlers"

	"github.com/gin-gonic/gin"
)

type VerifyRoutes struct {
	handler *handlers.VerifyHandler
}

func NewVerifyRoutes(handler *handlers.VerifyHandler) *VerifyRoutes {
	return &VerifyRoutes{handler: handler}
}

func (r *VerifyRoutes) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/verify", r.handler.Verify)
}
