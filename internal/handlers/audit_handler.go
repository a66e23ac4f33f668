package handlers

import (
	"context"
	"net/http"

	"sayu-ops/internal/config"
	"sayu-ops/internal/models"
	"sayu-ops/internal/responses"

	"github.com/gin-gonic/gin"
)

type Auditor interface {
	Run(ctx context.Context, plan config.AuditPlan) (*models.AuditReport, error)
}

type AuditHandler struct {
	auditor Auditor
	plan    config.AuditPlan
}

func NewAuditHandler(auditor Auditor, plan config.AuditPlan) *AuditHandler {
	return &AuditHandler{auditor: auditor, plan: plan}
}

type auditRequest struct {
	SampleSize int `json:"sample_size"`
}

// RunAudit handles POST /api/v1/audit
func (h *AuditHandler) RunAudit(c *gin.Context) {
	plan := h.plan

	var req auditRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
			return
		}
		if req.SampleSize > 0 {
			plan.SampleSize = req.SampleSize
		}
	}

	report, err := h.auditor.Run(c.Request.Context(), plan)
	if err != nil {
		responses.Fail(c, http.StatusInternalServerError, err, "Audit failed")
		return
	}

	message := "Audit passed"
	if report.Failed() {
		message = "Audit found errors"
	}
	responses.Success(c, http.StatusOK, report, message)
}
