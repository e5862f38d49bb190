package handler

import (
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
	"github.com/connexus-ai/smartrag-orchestrator/internal/dbcoordinator"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
	"github.com/connexus-ai/smartrag-orchestrator/internal/service"
)

// QueryAnalysis backs POST api/query-analysis: run intent classification
// and, for any database targets, SQL generation/validation — without
// executing anything — so operators can inspect what the orchestrator
// would do for a given query.
type QueryAnalysis struct {
	intent  *service.IntentAnalyzer
	dbcoord *dbcoordinator.Coordinator // nil when the database path is disabled
	catalog *schema.Catalog            // nil when the database path is disabled
}

// NewQueryAnalysis builds the QueryAnalysis handler.
func NewQueryAnalysis(intent *service.IntentAnalyzer, dbcoord *dbcoordinator.Coordinator, catalog *schema.Catalog) *QueryAnalysis {
	return &QueryAnalysis{intent: intent, dbcoord: dbcoord, catalog: catalog}
}

type queryAnalysisRequest struct {
	Query   string `json:"query"`
	History string `json:"history,omitempty"`
}

type queryAnalysisResponse struct {
	Intent       *model.QueryIntentAnalysisResult `json:"intent"`
	GeneratedSQL []dbcoordinator.PreparedSQL       `json:"generatedSql,omitempty"`
}

// Handle handles POST api/query-analysis.
func (h *QueryAnalysis) Handle(w http.ResponseWriter, r *http.Request) {
	var req queryAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if req.Query == "" {
		writeError(w, apperr.New(apperr.KindValidation, "query is required"))
		return
	}

	analysis, err := h.intent.Analyze(r.Context(), req.Query, req.History, h.databaseNameToID())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := queryAnalysisResponse{Intent: analysis}
	if !analysis.IsConversation && analysis.Intent.HasDatabaseTargets() && h.dbcoord != nil {
		prepared, err := h.dbcoord.Prepare(r.Context(), analysis.Intent)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.GeneratedSQL = prepared
	}

	writeJSON(w, http.StatusOK, resp)
}

// databaseNameToID mirrors service.Engine's mapping of routable database
// display names to ids, the only databases the coordinator may target.
func (h *QueryAnalysis) databaseNameToID() map[string]string {
	if h.catalog == nil {
		return nil
	}
	routable := make(map[string]bool)
	for _, id := range h.catalog.Routable() {
		routable[id] = true
	}
	out := make(map[string]string)
	for _, entry := range h.catalog.All() {
		if routable[entry.ID] {
			out[entry.Name] = entry.ID
		}
	}
	return out
}
