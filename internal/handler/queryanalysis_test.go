package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/connexus-ai/smartrag-orchestrator/internal/service"
)

type fakeTextGenerator struct {
	response string
	err      error
}

func (f fakeTextGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestQueryAnalysis_RejectsEmptyQuery(t *testing.T) {
	h := NewQueryAnalysis(service.NewIntentAnalyzer(fakeTextGenerator{}), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/query-analysis", bytes.NewBufferString(`{"query":""}`))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestQueryAnalysis_ConversationalSkipsSQLGeneration(t *testing.T) {
	gateway := fakeTextGenerator{response: `{
		"isConversation": true,
		"conversationalAnswer": "Hi there!",
		"understanding": "",
		"confidence": 1,
		"reasoning": "greeting",
		"requiresCrossDatabaseJoin": false,
		"databaseIntents": []
	}`}

	h := NewQueryAnalysis(service.NewIntentAnalyzer(gateway), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/query-analysis", bytes.NewBufferString(`{"query":"hello there"}`))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp queryAnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Intent.IsConversation {
		t.Errorf("expected conversational result, got %+v", resp.Intent)
	}
	if len(resp.GeneratedSQL) != 0 {
		t.Errorf("expected no SQL generation for a conversational query, got %+v", resp.GeneratedSQL)
	}
}
