// Package repository holds the document and conversation storage contracts
// plus reference drivers (in-memory and pgx/PostgreSQL). Callers may swap in
// any driver that satisfies DocumentRepository or ConversationRepository.
package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// DocumentRepository covers upsert, get, list, delete, count and search.
// Implementations own Chunk persistence transitively: a Document exclusively
// owns its Chunks, which never outlive or outscope their parent.
type DocumentRepository interface {
	Upsert(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	GetChunks(ctx context.Context, documentID string) ([]model.Chunk, error)
	List(ctx context.Context, skip, take int, schemaDocsOnly bool) ([]model.Document, int, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	FindByFileHash(ctx context.Context, hash string) (*model.Document, error)
	Search(ctx context.Context, queryVec []float32, query string, maxResults int) ([]SearchResult, error)
}

// SearchResult pairs a matched chunk with its parent document and score.
type SearchResult struct {
	Document model.Document
	Chunk    model.Chunk
	Score    float64
}

// InMemoryDocumentRepository is the reference DocumentRepository driver: a
// mutex-guarded map, sufficient for tests and for any deployment that
// doesn't need a durable backing store. Concrete production drivers
// (pgvector, Redis, Qdrant, ...) satisfy the same interface.
type InMemoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]*model.Document
}

// NewInMemoryDocumentRepository creates an empty repository.
func NewInMemoryDocumentRepository() *InMemoryDocumentRepository {
	return &InMemoryDocumentRepository{docs: make(map[string]*model.Document)}
}

var _ DocumentRepository = (*InMemoryDocumentRepository)(nil)

func (r *InMemoryDocumentRepository) Upsert(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	sort.Slice(doc.Chunks, func(i, j int) bool { return doc.Chunks[i].Index < doc.Chunks[j].Index })

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	cp.Chunks = append([]model.Chunk(nil), doc.Chunks...)
	r.docs[doc.ID] = &cp
	return nil
}

func (r *InMemoryDocumentRepository) Get(ctx context.Context, id string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("document %s not found", id))
	}
	cp := *d
	return &cp, nil
}

func (r *InMemoryDocumentRepository) GetChunks(ctx context.Context, documentID string) ([]model.Chunk, error) {
	d, err := r.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return d.Chunks, nil
}

func (r *InMemoryDocumentRepository) List(ctx context.Context, skip, take int, schemaDocsOnly bool) ([]model.Document, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []model.Document
	for _, d := range r.docs {
		if d.IsSchemaDocument() != schemaDocsOnly {
			continue
		}
		matched = append(matched, *d)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UploadedAt.After(matched[j].UploadedAt) })

	total := len(matched)
	if skip < 0 {
		skip = 0
	}
	if skip >= total {
		return []model.Document{}, total, nil
	}
	end := skip + take
	if take <= 0 || end > total {
		end = total
	}
	return matched[skip:end], total, nil
}

func (r *InMemoryDocumentRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("document %s not found", id))
	}
	delete(r.docs, id)
	return nil
}

func (r *InMemoryDocumentRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = make(map[string]*model.Document)
	return nil
}

func (r *InMemoryDocumentRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, d := range r.docs {
		if !d.IsSchemaDocument() {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryDocumentRepository) FindByFileHash(ctx context.Context, hash string) (*model.Document, error) {
	if hash == "" {
		return nil, apperr.New(apperr.KindNotFound, "empty file hash")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.docs {
		if d.FileHash() == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "no document with matching FileHash")
}

// Search scores by semantic cosine similarity when the query vector and
// chunk embeddings are present, falling back to lexical token-overlap
// scoring with OCR-tolerant normalization otherwise. When both signals are
// present the lexical score contributes a small boost on top of cosine
// similarity.
func (r *InMemoryDocumentRepository) Search(ctx context.Context, queryVec []float32, query string, maxResults int) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []SearchResult
	haveVec := len(queryVec) > 0
	tokens := TokenizeOCRTolerant(query)

	for _, d := range r.docs {
		if d.IsSchemaDocument() {
			continue
		}
		for _, c := range d.Chunks {
			var score float64
			var scored bool
			if haveVec && len(c.Embedding) > 0 {
				score = cosineSimilarity(queryVec, c.Embedding)
				scored = true
			}
			if lexScore, ok := lexicalScore(c.Content, tokens); ok {
				if scored {
					score = score + 0.05*lexScore // hybrid: lexical contributes a small boost
				} else {
					score = lexScore
					scored = true
				}
			}
			if !scored {
				continue
			}
			results = append(results, SearchResult{Document: *d, Chunk: c, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Document.ID != results[j].Document.ID {
			return results[i].Document.ID < results[j].Document.ID
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})

	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// lexicalScore counts token hits in content (tokenized with the same
// OCR-tolerant normalization) plus a small bonus for rare (longer) tokens.
func lexicalScore(content string, queryTokens []string) (float64, bool) {
	if len(queryTokens) == 0 {
		return 0, false
	}
	contentTokens := TokenizeOCRTolerant(content)
	set := make(map[string]int, len(contentTokens))
	for _, t := range contentTokens {
		set[t]++
	}

	var score float64
	var hit bool
	for _, qt := range queryTokens {
		if n, ok := set[qt]; ok && n > 0 {
			hit = true
			score += float64(n)
			if len(qt) > 6 {
				score += 0.5 // rare/longer keyword bonus
			}
		}
	}
	if !hit {
		return 0, false
	}
	return score, true
}

