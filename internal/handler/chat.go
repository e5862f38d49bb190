package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
)

// QueryEngine is the narrow surface handler.Chat needs from service.Engine.
type QueryEngine interface {
	Ask(ctx context.Context, sessionID, query, preferredLanguage string) (*model.RagResponse, string, error)
}

// Chat bundles the chat/session handlers (§6) around the query engine
// (C11) and the conversation store (C4).
type Chat struct {
	engine QueryEngine
	conv   repository.ConversationRepository
}

// NewChat builds the Chat handler group.
func NewChat(engine QueryEngine, conv repository.ConversationRepository) *Chat {
	return &Chat{engine: engine, conv: conv}
}

type postMessageRequest struct {
	Message           string `json:"message"`
	SessionID         string `json:"sessionId,omitempty"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
}

type postMessageResponse struct {
	Answer      string          `json:"answer"`
	SessionID   string          `json:"sessionId"`
	Sources     []model.Source  `json:"sources"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// PostMessage handles POST api/chat/messages.
func (h *Chat) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if req.Message == "" {
		writeError(w, apperr.New(apperr.KindValidation, "message is required"))
		return
	}

	resp, sessionID, err := h.engine.Ask(r.Context(), req.SessionID, req.Message, req.PreferredLanguage)
	if err != nil {
		writeError(w, err)
		return
	}

	lastUpdated := resp.SearchTimestamp
	if h.conv != nil {
		if _, last, tErr := h.conv.GetTimestamps(r.Context(), sessionID); tErr == nil {
			lastUpdated = last
		}
	}

	writeJSON(w, http.StatusOK, postMessageResponse{
		Answer:      resp.Answer,
		SessionID:   sessionID,
		Sources:     resp.Sources,
		LastUpdated: lastUpdated,
	})
}

type sessionSummary struct {
	SessionID   string    `json:"sessionId"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ListSessions handles GET api/chat/sessions.
func (h *Chat) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.conv.AllSessionIDs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	summaries := make([]sessionSummary, 0, len(ids))
	for _, id := range ids {
		created, last, err := h.conv.GetTimestamps(r.Context(), id)
		if err != nil {
			continue
		}
		summaries = append(summaries, sessionSummary{SessionID: id, CreatedAt: created, LastUpdated: last})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

type sessionDetail struct {
	SessionID   string          `json:"sessionId"`
	History     string          `json:"history"`
	Sources     [][]model.Source `json:"sources,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// GetSession handles GET api/chat/sessions/{id}.
func (h *Chat) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exists, err := h.conv.Exists(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !exists {
		writeError(w, apperr.New(apperr.KindNotFound, "session not found"))
		return
	}

	history, err := h.conv.GetHistory(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	created, last, err := h.conv.GetTimestamps(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	sources, _ := h.conv.GetSources(r.Context(), id)

	writeJSON(w, http.StatusOK, sessionDetail{
		SessionID:   id,
		History:     history,
		Sources:     sources,
		CreatedAt:   created,
		LastUpdated: last,
	})
}

// DeleteSession handles DELETE api/chat/sessions/{id}.
func (h *Chat) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.conv.Clear(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllSessions handles DELETE api/chat/sessions.
func (h *Chat) DeleteAllSessions(w http.ResponseWriter, r *http.Request) {
	if err := h.conv.ClearAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
