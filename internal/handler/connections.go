package handler

import (
	"net/http"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
)

// connectionSummary is one configured database's connection/analysis
// status, the shape GET api/connections returns per spec §6.
type connectionSummary struct {
	Name          string                `json:"name"`
	Type          model.DatabaseDialect `json:"type"`
	IsValid       bool                  `json:"isValid"`
	TableCount    int                   `json:"tableCount"`
	TotalRowCount int64                 `json:"totalRowCount"`
	Status        model.AnalysisStatus  `json:"status"`
}

// Connections handles GET api/connections. A connection is IsValid
// whenever its schema analysis did not fail — the catalog marks a
// database Failed only when the connection itself, or its introspection,
// could not complete (spec §4.5: the database stays queryable for
// connection validation even if analysis never completes).
func Connections(catalog *schema.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			writeJSON(w, http.StatusOK, map[string]any{"connections": []connectionSummary{}})
			return
		}
		entries := catalog.All()
		summaries := make([]connectionSummary, len(entries))
		for i, e := range entries {
			summaries[i] = connectionSummary{
				Name:          e.Name,
				Type:          e.Type,
				IsValid:       e.Status != model.AnalysisFailed,
				TableCount:    len(e.Tables),
				TotalRowCount: e.TotalRowCount,
				Status:        e.Status,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"connections": summaries})
	}
}
