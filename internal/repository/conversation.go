package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// ConversationRepository tracks per-session chat history and the citation
// sources returned with each assistant turn.
type ConversationRepository interface {
	GetHistory(ctx context.Context, sessionID string) (string, error)
	Append(ctx context.Context, sessionID, userText, assistantText string, sources []model.Source) error
	SetHistory(ctx context.Context, sessionID, text string) error
	Clear(ctx context.Context, sessionID string) error
	ClearAll(ctx context.Context) error
	Exists(ctx context.Context, sessionID string) (bool, error)
	AllSessionIDs(ctx context.Context) ([]string, error)
	GetTimestamps(ctx context.Context, sessionID string) (createdAt, lastUpdated time.Time, err error)
	GetSources(ctx context.Context, sessionID string) ([][]model.Source, error)
}

// sessionState is the in-memory record for one session. One mutex per
// session serializes writes without blocking reads/writes to other
// sessions.
type sessionState struct {
	mu          sync.Mutex
	history     string
	sources     [][]model.Source
	createdAt   time.Time
	lastUpdated time.Time
}

// InMemoryConversationRepository is the reference ConversationRepository
// driver: a map of per-session states guarded by a single global map mutex
// (for session creation) plus one write mutex per session (for Append).
type InMemoryConversationRepository struct {
	initMu      sync.Mutex
	sessions    map[string]*sessionState
	maxLength   int
}

// NewInMemoryConversationRepository creates a repository truncating history
// to maxLength characters, dropping oldest complete turns first.
func NewInMemoryConversationRepository(maxLength int) *InMemoryConversationRepository {
	if maxLength <= 0 {
		maxLength = 8000
	}
	return &InMemoryConversationRepository{
		sessions:  make(map[string]*sessionState),
		maxLength: maxLength,
	}
}

var _ ConversationRepository = (*InMemoryConversationRepository)(nil)

func (r *InMemoryConversationRepository) getOrCreate(sessionID string) *sessionState {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		now := time.Now().UTC()
		s = &sessionState{createdAt: now, lastUpdated: now}
		r.sessions[sessionID] = s
	}
	return s
}

func (r *InMemoryConversationRepository) GetHistory(ctx context.Context, sessionID string) (string, error) {
	r.initMu.Lock()
	s, ok := r.sessions[sessionID]
	r.initMu.Unlock()
	if !ok {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history, nil
}

// Append concatenates "\nUser: {q}\nAssistant: {a}" onto the session's
// history, truncating oldest complete turns (never splitting a turn) once
// the result exceeds maxLength characters, and records the sources for
// this assistant turn. Newline-joined history never ends up with a partial
// "User:"/"Assistant:" pair.
func (r *InMemoryConversationRepository) Append(ctx context.Context, sessionID, userText, assistantText string, sources []model.Source) error {
	s := r.getOrCreate(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := fmt.Sprintf("User: %s\nAssistant: %s", userText, assistantText)
	if s.history == "" {
		s.history = turn
	} else {
		s.history = s.history + "\n" + turn
	}
	s.history = truncateOldestTurns(s.history, r.maxLength)
	s.sources = append(s.sources, sources)
	s.lastUpdated = time.Now().UTC()
	return nil
}

func (r *InMemoryConversationRepository) SetHistory(ctx context.Context, sessionID, text string) error {
	s := r.getOrCreate(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = text
	s.lastUpdated = time.Now().UTC()
	return nil
}

func (r *InMemoryConversationRepository) Clear(ctx context.Context, sessionID string) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *InMemoryConversationRepository) ClearAll(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	r.sessions = make(map[string]*sessionState)
	return nil
}

func (r *InMemoryConversationRepository) Exists(ctx context.Context, sessionID string) (bool, error) {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	_, ok := r.sessions[sessionID]
	return ok, nil
}

func (r *InMemoryConversationRepository) AllSessionIDs(ctx context.Context) ([]string, error) {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *InMemoryConversationRepository) GetTimestamps(ctx context.Context, sessionID string) (time.Time, time.Time, error) {
	r.initMu.Lock()
	s, ok := r.sessions[sessionID]
	r.initMu.Unlock()
	if !ok {
		return time.Time{}, time.Time{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("session %s not found", sessionID))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt, s.lastUpdated, nil
}

func (r *InMemoryConversationRepository) GetSources(ctx context.Context, sessionID string) ([][]model.Source, error) {
	r.initMu.Lock()
	s, ok := r.sessions[sessionID]
	r.initMu.Unlock()
	if !ok {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]model.Source(nil), s.sources...), nil
}

// NewSessionID mints a fresh session UUID, used by callers starting a
// session implicitly on first user message.
func NewSessionID() string {
	return uuid.New().String()
}

// truncateOldestTurns drops whole "User:"/"Assistant:" line pairs from the
// front of history until it fits within maxLength characters. A turn is a
// pair of lines; lines are never split mid-turn.
func truncateOldestTurns(history string, maxLength int) string {
	if len(history) <= maxLength {
		return history
	}
	lines := strings.Split(history, "\n")
	for len(lines) >= 2 && len(strings.Join(lines, "\n")) > maxLength {
		lines = lines[2:]
	}
	return strings.Join(lines, "\n")
}

// sourcesJSON round-trips Sources through the list-of-lists JSON encoding
// used to persist one turn's worth of citations per row.
func sourcesJSON(sources [][]model.Source) ([]byte, error) {
	return json.Marshal(sources)
}

// unmarshalSources decodes a sourcesJSON payload back into its nested form.
func unmarshalSources(raw []byte, out *[][]model.Source) error {
	return json.Unmarshal(raw, out)
}
