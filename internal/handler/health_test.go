package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
)

type fakeAiPinger struct{ err error }

func (f fakeAiPinger) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1}, nil
}

type fakeStoragePinger struct{ err error }

func (f fakeStoragePinger) Ping(ctx context.Context) error { return f.err }

func TestHealth_AllHealthy(t *testing.T) {
	conv := repository.NewInMemoryConversationRepository(10)
	h := Health(fakeAiPinger{}, nil, conv, nil, "1.0.0")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.Ai.Status != "healthy" || resp.Conversation.Status != "healthy" {
		t.Errorf("expected healthy probes, got %+v", resp)
	}
	if resp.Storage != nil {
		t.Errorf("expected omitted storage when nil, got %+v", resp.Storage)
	}
}

func TestHealth_AiFailureDoesNotAffectConversation(t *testing.T) {
	conv := repository.NewInMemoryConversationRepository(10)
	h := Health(fakeAiPinger{err: errors.New("provider down")}, nil, conv, nil, "1.0.0")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Ai.Status != "unhealthy" {
		t.Errorf("expected unhealthy AI probe, got %+v", resp.Ai)
	}
	if resp.Conversation.Status != "healthy" {
		t.Errorf("expected conversation probe unaffected, got %+v", resp.Conversation)
	}
}

func TestHealth_StorageIncludedWhenConfigured(t *testing.T) {
	conv := repository.NewInMemoryConversationRepository(10)
	h := Health(fakeAiPinger{}, fakeStoragePinger{err: errors.New("bucket unreachable")}, conv, nil, "1.0.0")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Storage == nil || resp.Storage.Status != "unhealthy" {
		t.Errorf("expected unhealthy storage probe, got %+v", resp.Storage)
	}
}

func TestHealth_DatabasesReflectCatalogStatus(t *testing.T) {
	opener := func(model.DatabaseConnectionConfig) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	}
	catalog := schema.NewCatalog([]model.DatabaseConnectionConfig{{ID: "db1", Enabled: true}}, opener)
	catalog.AnalyzeAll(context.Background())

	conv := repository.NewInMemoryConversationRepository(10)
	h := Health(fakeAiPinger{}, nil, conv, catalog, "1.0.0")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Databases) != 1 || resp.Databases[0].Status != "unhealthy" {
		t.Errorf("expected db1 reported unhealthy, got %+v", resp.Databases)
	}
}
