package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
)

// probeTimeout bounds every individual dependency probe so one unreachable
// dependency cannot stall the others or the overall response.
const probeTimeout = 3 * time.Second

// AiPinger is the cheap AI-reachability probe a Health handler uses: a
// zero-token embedding or "ping" completion, not a real generation call.
type AiPinger interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// StoragePinger is an optional dependency check for a vector/object store
// distinct from the document/conversation repositories (e.g. a bucket or
// cache). Nil means the deployment has none configured, and the field is
// omitted from the response entirely.
type StoragePinger interface {
	Ping(ctx context.Context) error
}

// DependencyStatus is one probe's outcome.
type DependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// DatabaseStatus names one configured database's health.
type DatabaseStatus struct {
	DatabaseID string `json:"databaseId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// HealthResponse is the generalized probe report spec.md §4.15 names:
// {Ai, Storage?, Conversation, Databases[]}.
type HealthResponse struct {
	Ai           DependencyStatus  `json:"ai"`
	Storage      *DependencyStatus `json:"storage,omitempty"`
	Conversation DependencyStatus  `json:"conversation"`
	Databases    []DatabaseStatus  `json:"databases"`
}

// Health builds the /health handler. ai is required; storage is optional
// (pass nil when the deployment has no separate storage dependency).
// Every probe runs with its own bounded timeout; an unreachable
// dependency is reported unhealthy without affecting the other probes.
// The HTTP status is 503 when the AI, conversation or (if configured)
// storage probe is unhealthy; database entries never change it.
func Health(ai AiPinger, storage StoragePinger, conv repository.ConversationRepository, catalog *schema.Catalog, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Ai:           probeAi(r.Context(), ai),
			Conversation: probeConversation(r.Context(), conv),
			Databases:    probeDatabases(catalog),
		}
		if storage != nil {
			s := probeStorage(r.Context(), storage)
			resp.Storage = &s
		}

		httpStatus := http.StatusOK
		if resp.Ai.Status != "healthy" || resp.Conversation.Status != "healthy" || (resp.Storage != nil && resp.Storage.Status != "healthy") {
			httpStatus = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Service-Version", version)
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(resp)
	}
}

func probeAi(ctx context.Context, ai AiPinger) DependencyStatus {
	if ai == nil {
		return DependencyStatus{Status: "unhealthy", Error: "no AI provider configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if _, err := ai.GenerateEmbedding(ctx, "ping"); err != nil {
		return DependencyStatus{Status: "unhealthy", Error: err.Error()}
	}
	return DependencyStatus{Status: "healthy"}
}

func probeStorage(ctx context.Context, storage StoragePinger) DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := storage.Ping(ctx); err != nil {
		return DependencyStatus{Status: "unhealthy", Error: err.Error()}
	}
	return DependencyStatus{Status: "healthy"}
}

func probeConversation(ctx context.Context, conv repository.ConversationRepository) DependencyStatus {
	if conv == nil {
		return DependencyStatus{Status: "unhealthy", Error: "no conversation store configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if _, err := conv.Exists(ctx, "healthcheck-probe"); err != nil {
		return DependencyStatus{Status: "unhealthy", Error: err.Error()}
	}
	return DependencyStatus{Status: "healthy"}
}

func probeDatabases(catalog *schema.Catalog) []DatabaseStatus {
	if catalog == nil {
		return nil
	}
	entries := catalog.All()
	statuses := make([]DatabaseStatus, 0, len(entries))
	for _, e := range entries {
		s := DatabaseStatus{DatabaseID: e.ID}
		if e.Status == model.AnalysisFailed {
			s.Status = "unhealthy"
			s.Error = e.Error
		} else {
			s.Status = "healthy"
		}
		statuses = append(statuses, s)
	}
	return statuses
}
