package handlers

import (
	"context"
	"net/http"

	"sayu-ops/internal/models"
	"sayu-ops/internal/responses"

	"github.com/gin-gonic/gin"
)

type Verifier interface {
	Verify(ctx context.Context) (*models.VerifyReport, error)
}

type VerifyHandler struct {
	verifier Verifier
}

func NewVerifyHandler(verifier Verifier) *VerifyHandler {
	return &VerifyHandler{verifier: verifier}
}

// Verify handles GET /api/v1/verify
func (h *VerifyHandler) Verify(c *gin.Context) {
	report, err := h.verifier.Verify(c.Request.Context())
	if err != nil {
		responses.Fail(c, http.StatusInternalServerError, err, "Verification failed")
		return
	}

	message := "Source and target match"
	if !report.AllMatch() {
		message = "Source and target differ"
	}
	responses.Success(c, http.StatusOK, report, message)
}
