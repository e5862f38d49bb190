package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/connexus-ai/smartrag-orchestrator/internal/cache"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// EmbeddingProvider abstracts the AI gateway's embedding surface so the
// engine can be tested without a live provider.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderService batches chunk embedding requests up to a configured
// per-provider batch size, zips results back to chunks by index, and falls
// back to per-item embedding for indices the batch call dropped. A chunk
// that still fails is stored with an empty vector, never a partial one,
// and is expected to be picked up by a later regeneration pass.
type EmbedderService struct {
	provider  EmbeddingProvider
	batchSize int
	cache     cache.QueryCache // optional; nil disables query-embedding caching
	inflight  singleflight.Group
}

// NewEmbedderService creates an EmbedderService. batchSize <= 0 falls back
// to 250, the teacher's Vertex AI recommended batch size.
func NewEmbedderService(provider EmbeddingProvider, batchSize int, embCache cache.QueryCache) *EmbedderService {
	if batchSize <= 0 {
		batchSize = 250
	}
	return &EmbedderService{provider: provider, batchSize: batchSize, cache: embCache}
}

// EmbedChunks embeds content for every chunk in place, batching up to
// batchSize per provider call.
func (s *EmbedderService) EmbedChunks(ctx context.Context, chunks []model.Chunk) error {
	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		s.embedBatch(ctx, chunks[start:end])
	}
	return nil
}

func (s *EmbedderService) embedBatch(ctx context.Context, batch []model.Chunk) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vecs, err := s.provider.GenerateEmbeddings(ctx, texts)
	if err != nil {
		slog.Warn("service.embedBatch: batch failed, falling back to per-item", "size", len(batch), "error", err)
		s.embedEachItem(ctx, batch)
		return
	}
	if len(vecs) != len(batch) {
		slog.Warn("service.embedBatch: result count mismatch, falling back for missing indices",
			"want", len(batch), "got", len(vecs))
		for i := range batch {
			if i < len(vecs) {
				batch[i].Embedding = vecs[i]
				continue
			}
			s.embedOne(ctx, &batch[i])
		}
		return
	}

	for i := range batch {
		batch[i].Embedding = vecs[i]
	}
}

func (s *EmbedderService) embedEachItem(ctx context.Context, batch []model.Chunk) {
	for i := range batch {
		s.embedOne(ctx, &batch[i])
	}
}

// embedOne embeds a single chunk; on failure the chunk keeps a nil
// embedding rather than a partial one.
func (s *EmbedderService) embedOne(ctx context.Context, c *model.Chunk) {
	vec, err := s.provider.GenerateEmbedding(ctx, c.Content)
	if err != nil {
		slog.Error("service.embedOne: chunk embedding failed, flagged for regeneration", "chunk_id", c.ID, "error", err)
		c.Embedding = nil
		return
	}
	c.Embedding = vec
}

// EmbedQuery embeds a single query string, consulting the cache first when
// one is configured. Concurrent calls for the same query share a single
// in-flight provider call via singleflight rather than each issuing their
// own, since near-simultaneous duplicate queries (a fanned-out conversation,
// a retried request) are otherwise billed as separate embedding calls.
func (s *EmbedderService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.cache != nil {
		key := cache.EmbeddingQueryHash(query)
		if vec, ok := s.cache.Get(key); ok {
			return vec, nil
		}
		v, err, _ := s.inflight.Do(key, func() (any, error) {
			return s.provider.GenerateEmbedding(ctx, query)
		})
		if err != nil {
			return nil, err
		}
		vec := v.([]float32)
		s.cache.Set(key, vec)
		return vec, nil
	}
	v, err, _ := s.inflight.Do(query, func() (any, error) {
		return s.provider.GenerateEmbedding(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}
