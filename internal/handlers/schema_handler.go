package handlers

import (
	"context"
	"fmt"
	"net/http"

	"sayu-ops/internal/responses"

	"github.com/gin-gonic/gin"
)

type SchemaVisualizer interface {
	Mermaid(ctx context.Context, schema string) (string, error)
}

type SchemaHandler struct {
	databases map[string]SchemaVisualizer
}

// NewSchemaHandler takes the visualizers by database name ("source", "target").
func NewSchemaHandler(databases map[string]SchemaVisualizer) *SchemaHandler {
	return &SchemaHandler{databases: databases}
}

// VisualizeSchema handles GET /api/v1/schema/visualize
func (h *SchemaHandler) VisualizeSchema(c *gin.Context) {
	db := c.DefaultQuery("db", "target")
	schema := c.DefaultQuery("schema", "public")

	svc, ok := h.databases[db]
	if !ok || svc == nil {
		responses.Fail(c, http.StatusBadRequest, nil, fmt.Sprintf("Unknown or unconfigured database %q", db))
		return
	}

	mermaidDiagram, err := svc.Mermaid(c.Request.Context(), schema)
	if err != nil {
		responses.Fail(c, http.StatusInternalServerError, err, "Failed to visualize schema")
		return
	}

	responses.Success(c, http.StatusOK, gin.H{
		"mermaid": mermaidDiagram,
		"schema":  schema,
		"db":      db,
	}, "Schema visualization generated successfully")
}
