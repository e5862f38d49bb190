package handler

import (
	"net/http"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
)

// Schemas handles GET api/schemas: the full schema catalog, one entry per
// configured database.
func Schemas(catalog *schema.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			writeJSON(w, http.StatusOK, map[string]any{"databases": []model.DatabaseSchemaInfo{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"databases": catalog.All()})
	}
}
