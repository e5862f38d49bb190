package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// PgConversationRepository is the durable ConversationRepository driver: a
// conversations table (session_id primary key, history text, timestamps)
// upserted on conflict, plus a companion conversation_sources table storing
// one JSON row per assistant turn so citations survive without re-encoding
// the whole history on every append.
type PgConversationRepository struct {
	pool      *pgxpool.Pool
	maxLength int
}

func NewPgConversationRepository(pool *pgxpool.Pool, maxLength int) *PgConversationRepository {
	if maxLength <= 0 {
		maxLength = 8000
	}
	return &PgConversationRepository{pool: pool, maxLength: maxLength}
}

var _ ConversationRepository = (*PgConversationRepository)(nil)

func (r *PgConversationRepository) GetHistory(ctx context.Context, sessionID string) (string, error) {
	var history string
	err := r.pool.QueryRow(ctx, `SELECT history FROM conversations WHERE session_id = $1`, sessionID).Scan(&history)
	if err != nil {
		return "", nil // unknown session has empty history, not an error
	}
	return history, nil
}

func (r *PgConversationRepository) Append(ctx context.Context, sessionID, userText, assistantText string, sources []model.Source) error {
	existing, _ := r.GetHistory(ctx, sessionID)
	turn := fmt.Sprintf("User: %s\nAssistant: %s", userText, assistantText)
	var history string
	if existing == "" {
		history = turn
	} else {
		history = existing + "\n" + turn
	}
	history = truncateOldestTurns(history, r.maxLength)

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (session_id, history, created_at, last_updated)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (session_id) DO UPDATE SET history = EXCLUDED.history, last_updated = EXCLUDED.last_updated`,
		sessionID, history, now)
	if err != nil {
		return fmt.Errorf("repository.PgConversationRepository.Append: %w", err)
	}

	payload, err := sourcesJSON([][]model.Source{sources})
	if err != nil {
		return fmt.Errorf("repository.PgConversationRepository.Append: sources: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO conversation_sources (session_id, turn_index, sources)
		VALUES ($1, (SELECT COALESCE(MAX(turn_index), -1) + 1 FROM conversation_sources WHERE session_id = $1), $2)`,
		sessionID, payload)
	if err != nil {
		return fmt.Errorf("repository.PgConversationRepository.Append: sources insert: %w", err)
	}
	return nil
}

func (r *PgConversationRepository) SetHistory(ctx context.Context, sessionID, text string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (session_id, history, created_at, last_updated)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (session_id) DO UPDATE SET history = EXCLUDED.history, last_updated = EXCLUDED.last_updated`,
		sessionID, text, now)
	if err != nil {
		return fmt.Errorf("repository.PgConversationRepository.SetHistory: %w", err)
	}
	return nil
}

func (r *PgConversationRepository) Clear(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM conversation_sources WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("repository.PgConversationRepository.Clear: sources: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("repository.PgConversationRepository.Clear: %w", err)
	}
	return nil
}

func (r *PgConversationRepository) ClearAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM conversation_sources`); err != nil {
		return fmt.Errorf("repository.PgConversationRepository.ClearAll: sources: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("repository.PgConversationRepository.ClearAll: %w", err)
	}
	return nil
}

func (r *PgConversationRepository) Exists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE session_id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository.PgConversationRepository.Exists: %w", err)
	}
	return exists, nil
}

func (r *PgConversationRepository) AllSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT session_id FROM conversations ORDER BY last_updated DESC`)
	if err != nil {
		return nil, fmt.Errorf("repository.PgConversationRepository.AllSessionIDs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository.PgConversationRepository.AllSessionIDs: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *PgConversationRepository) GetTimestamps(ctx context.Context, sessionID string) (time.Time, time.Time, error) {
	var created, updated time.Time
	err := r.pool.QueryRow(ctx, `SELECT created_at, last_updated FROM conversations WHERE session_id = $1`, sessionID).Scan(&created, &updated)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("session %s not found", sessionID), err)
	}
	return created, updated, nil
}

func (r *PgConversationRepository) GetSources(ctx context.Context, sessionID string) ([][]model.Source, error) {
	rows, err := r.pool.Query(ctx, `SELECT sources FROM conversation_sources WHERE session_id = $1 ORDER BY turn_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repository.PgConversationRepository.GetSources: %w", err)
	}
	defer rows.Close()

	var all [][]model.Source
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("repository.PgConversationRepository.GetSources: scan: %w", err)
		}
		var nested [][]model.Source
		if err := unmarshalSources(raw, &nested); err != nil {
			return nil, fmt.Errorf("repository.PgConversationRepository.GetSources: decode: %w", err)
		}
		for _, turn := range nested {
			all = append(all, turn)
		}
	}
	return all, nil
}
