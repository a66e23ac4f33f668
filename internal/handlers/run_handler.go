package handlers

import (
	"context"
	"net/http"
	"strconv"

	"sayu-ops/internal/models"
	"sayu-ops/internal/responses"
	"sayu-ops/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RunStore interface {
	List(ctx context.Context, kind string, limit int) ([]models.Run, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Run, error)
}

type RunHandler struct {
	runs RunStore
}

func NewRunHandler(runs RunStore) *RunHandler {
	return &RunHandler{runs: runs}
}

// ListRuns handles GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			responses.Fail(c, http.StatusBadRequest, err, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(c.Request.Context(), c.Query("kind"), limit)
	if err != nil {
		responses.Fail(c, http.StatusInternalServerError, err, "Failed to list runs")
		return
	}

	responses.Success(c, http.StatusOK, runs, "Runs retrieved successfully")
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	id, err := utils.ParseUUID(c.Param("id"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid run ID format")
		return
	}

	run, err := h.runs.Get(c.Request.Context(), id)
	if err != nil {
		responses.Fail(c, http.StatusInternalServerError, err, "Failed to load run")
		return
	}
	if run == nil {
		responses.Fail(c, http.StatusNotFound, nil, "Run not found")
		return
	}

	responses.Success(c, http.StatusOK, run, "Run retrieved successfully")
}
