package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
)

type fakeQueryEngine struct {
	resp      *model.RagResponse
	sessionID string
	err       error
}

func (f fakeQueryEngine) Ask(ctx context.Context, sessionID, query, preferredLanguage string) (*model.RagResponse, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	sid := f.sessionID
	if sid == "" {
		sid = sessionID
	}
	return f.resp, sid, nil
}

func TestChatPostMessage_RejectsEmptyMessage(t *testing.T) {
	conv := repository.NewInMemoryConversationRepository(10)
	h := NewChat(fakeQueryEngine{}, conv)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", bytes.NewBufferString(`{"message":""}`))
	rec := httptest.NewRecorder()
	h.PostMessage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestChatPostMessage_ReturnsEngineAnswer(t *testing.T) {
	conv := repository.NewInMemoryConversationRepository(10)
	sessionID := repository.NewSessionID()
	conv.Append(context.Background(), sessionID, "hello", "hi there", nil)

	engine := fakeQueryEngine{
		resp:      &model.RagResponse{Answer: "hi there", Sources: []model.Source{}},
		sessionID: sessionID,
	}
	h := NewChat(engine, conv)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", bytes.NewBufferString(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	h.PostMessage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp postMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Answer != "hi there" || resp.SessionID != sessionID {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestChatGetSession_NotFound(t *testing.T) {
	conv := repository.NewInMemoryConversationRepository(10)
	h := NewChat(fakeQueryEngine{}, conv)

	r := chi.NewRouter()
	r.Get("/{id}", h.GetSession)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestChatListSessions(t *testing.T) {
	conv := repository.NewInMemoryConversationRepository(10)
	sessionID := repository.NewSessionID()
	conv.Append(context.Background(), sessionID, "q", "a", nil)

	h := NewChat(fakeQueryEngine{}, conv)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/sessions", nil)
	rec := httptest.NewRecorder()
	h.ListSessions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string][]sessionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body["sessions"]) != 1 || body["sessions"][0].SessionID != sessionID {
		t.Errorf("unexpected sessions: %+v", body)
	}
}

func TestChatDeleteAllSessions(t *testing.T) {
	conv := repository.NewInMemoryConversationRepository(10)
	sessionID := repository.NewSessionID()
	conv.Append(context.Background(), sessionID, "q", "a", nil)

	h := NewChat(fakeQueryEngine{}, conv)

	req := httptest.NewRequest(http.MethodDelete, "/api/chat/sessions", nil)
	rec := httptest.NewRecorder()
	h.DeleteAllSessions(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	ids, _ := conv.AllSessionIDs(context.Background())
	if len(ids) != 0 {
		t.Errorf("expected sessions cleared, got %v", ids)
	}
}
