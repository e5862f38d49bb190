package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// PgDocumentRepository is the durable DocumentRepository driver: documents
// and chunks stored in Postgres, vectors indexed by pgvector.
type PgDocumentRepository struct {
	pool *pgxpool.Pool
}

// NewPgDocumentRepository creates a PgDocumentRepository. Callers must have
// already run the schema migration creating `documents`/`document_chunks`.
func NewPgDocumentRepository(pool *pgxpool.Pool) *PgDocumentRepository {
	return &PgDocumentRepository{pool: pool}
}

var _ DocumentRepository = (*PgDocumentRepository)(nil)

func (r *PgDocumentRepository) Upsert(ctx context.Context, doc *model.Document) error {
	metaJSON, err := doc.MarshalMetadata()
	if err != nil {
		return fmt.Errorf("repository.PgDocumentRepository.Upsert: metadata: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.PgDocumentRepository.Upsert: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, filename, content_type, uploaded_by, uploaded_at, size_bytes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename, content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes, metadata = EXCLUDED.metadata`,
		doc.ID, doc.Filename, doc.ContentType, doc.UploadedBy, doc.UploadedAt, doc.SizeBytes, metaJSON)
	if err != nil {
		return fmt.Errorf("repository.PgDocumentRepository.Upsert: document: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("repository.PgDocumentRepository.Upsert: clear chunks: %w", err)
	}

	sort.Slice(doc.Chunks, func(i, j int) bool { return doc.Chunks[i].Index < doc.Chunks[j].Index })
	batch := &pgx.Batch{}
	for _, c := range doc.Chunks {
		var vec *pgvector.Vector
		if len(c.Embedding) > 0 {
			v := pgvector.NewVector(c.Embedding)
			vec = &v
		}
		batch.Queue(`
			INSERT INTO document_chunks (id, document_id, chunk_index, content, start_position, end_position, document_type, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, doc.ID, c.Index, c.Content, c.StartPosition, c.EndPosition, c.DocumentType, vec)
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("repository.PgDocumentRepository.Upsert: chunk %d: %w", i, err)
			}
		}
		br.Close()
	}

	return tx.Commit(ctx)
}

func (r *PgDocumentRepository) Get(ctx context.Context, id string) (*model.Document, error) {
	var d model.Document
	var metaJSON []byte
	err := r.pool.QueryRow(ctx, `SELECT id, filename, content_type, uploaded_by, uploaded_at, size_bytes, metadata FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.Filename, &d.ContentType, &d.UploadedBy, &d.UploadedAt, &d.SizeBytes, &metaJSON)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("document %s not found", id), err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &d.Metadata); err != nil {
			return nil, fmt.Errorf("repository.PgDocumentRepository.Get: metadata: %w", err)
		}
	}
	chunks, err := r.GetChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Chunks = chunks
	return &d, nil
}

func (r *PgDocumentRepository) GetChunks(ctx context.Context, documentID string) ([]model.Chunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, content, start_position, end_position, document_type
		FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("repository.PgDocumentRepository.GetChunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.StartPosition, &c.EndPosition, &c.DocumentType); err != nil {
			return nil, fmt.Errorf("repository.PgDocumentRepository.GetChunks: scan: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func (r *PgDocumentRepository) List(ctx context.Context, skip, take int, schemaDocsOnly bool) ([]model.Document, int, error) {
	typeFilter := "metadata->>'documentType' IS DISTINCT FROM 'Schema'"
	if schemaDocsOnly {
		typeFilter = "metadata->>'documentType' = 'Schema'"
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM documents WHERE %s`, typeFilter)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.PgDocumentRepository.List: count: %w", err)
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, filename, content_type, uploaded_by, uploaded_at, size_bytes, metadata
		FROM documents WHERE %s ORDER BY uploaded_at DESC OFFSET $1 LIMIT $2`, typeFilter), skip, take)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.PgDocumentRepository.List: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var metaJSON []byte
		if err := rows.Scan(&d.ID, &d.Filename, &d.ContentType, &d.UploadedBy, &d.UploadedAt, &d.SizeBytes, &metaJSON); err != nil {
			return nil, 0, fmt.Errorf("repository.PgDocumentRepository.List: scan: %w", err)
		}
		if len(metaJSON) > 0 {
			json.Unmarshal(metaJSON, &d.Metadata)
		}
		docs = append(docs, d)
	}
	return docs, total, nil
}

func (r *PgDocumentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository.PgDocumentRepository.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("document %s not found", id))
	}
	return nil
}

func (r *PgDocumentRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("repository.PgDocumentRepository.DeleteAll: %w", err)
	}
	return nil
}

func (r *PgDocumentRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE metadata->>'documentType' IS DISTINCT FROM 'Schema'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("repository.PgDocumentRepository.Count: %w", err)
	}
	return n, nil
}

func (r *PgDocumentRepository) FindByFileHash(ctx context.Context, hash string) (*model.Document, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT id FROM documents WHERE metadata->>'FileHash' = $1 LIMIT 1`, hash).Scan(&id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "no document with matching FileHash", err)
	}
	return r.Get(ctx, id)
}

// Search runs pgvector cosine similarity when queryVec is non-empty,
// falling back to the shared lexical tokenizer against chunk content
// fetched into memory otherwise. The vector path ranks by cosine
// similarity alone: unlike InMemoryDocumentRepository.Search it adds no
// lexical boost from the query text, and chunks without an embedding are
// not returned.
func (r *PgDocumentRepository) Search(ctx context.Context, queryVec []float32, query string, maxResults int) ([]SearchResult, error) {
	if len(queryVec) > 0 {
		return r.vectorSearch(ctx, queryVec, query, maxResults)
	}
	return r.lexicalSearch(ctx, query, maxResults)
}

func (r *PgDocumentRepository) vectorSearch(ctx context.Context, queryVec []float32, query string, maxResults int) ([]SearchResult, error) {
	vec := pgvector.NewVector(queryVec)
	rows, err := r.pool.Query(ctx, `
		SELECT dc.id, dc.document_id, dc.chunk_index, dc.content, dc.start_position, dc.end_position, dc.document_type,
		       1 - (dc.embedding <=> $1::vector) AS similarity,
		       d.id, d.filename, d.content_type, d.uploaded_by, d.uploaded_at, d.size_bytes, d.metadata
		FROM document_chunks dc
		JOIN documents d ON dc.document_id = d.id
		WHERE dc.embedding IS NOT NULL AND d.metadata->>'documentType' IS DISTINCT FROM 'Schema'
		ORDER BY dc.embedding <=> $1::vector
		LIMIT $2`, vec, maxResults)
	if err != nil {
		return nil, fmt.Errorf("repository.PgDocumentRepository.vectorSearch: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var sr SearchResult
		var metaJSON []byte
		if err := rows.Scan(
			&sr.Chunk.ID, &sr.Chunk.DocumentID, &sr.Chunk.Index, &sr.Chunk.Content, &sr.Chunk.StartPosition, &sr.Chunk.EndPosition, &sr.Chunk.DocumentType,
			&sr.Score,
			&sr.Document.ID, &sr.Document.Filename, &sr.Document.ContentType, &sr.Document.UploadedBy, &sr.Document.UploadedAt, &sr.Document.SizeBytes, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("repository.PgDocumentRepository.vectorSearch: scan: %w", err)
		}
		if len(metaJSON) > 0 {
			json.Unmarshal(metaJSON, &sr.Document.Metadata)
		}
		results = append(results, sr)
	}
	return results, nil
}

// lexicalSearch is the PostgreSQL-backed OCR-tolerant fallback used when no
// query embedding is available: every non-schema chunk is loaded in a single
// unpaged query and scored in-process with the shared tokenizer, since lexical scoring is a
// property of the tokenizer, not the store.
func (r *PgDocumentRepository) lexicalSearch(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT dc.id, dc.document_id, dc.chunk_index, dc.content, dc.start_position, dc.end_position, dc.document_type,
		       d.id, d.filename, d.content_type, d.uploaded_by, d.uploaded_at, d.size_bytes, d.metadata
		FROM document_chunks dc
		JOIN documents d ON dc.document_id = d.id
		WHERE d.metadata->>'documentType' IS DISTINCT FROM 'Schema'`)
	if err != nil {
		return nil, fmt.Errorf("repository.PgDocumentRepository.lexicalSearch: %w", err)
	}
	defer rows.Close()

	tokens := TokenizeOCRTolerant(query)
	var results []SearchResult
	for rows.Next() {
		var sr SearchResult
		var metaJSON []byte
		if err := rows.Scan(
			&sr.Chunk.ID, &sr.Chunk.DocumentID, &sr.Chunk.Index, &sr.Chunk.Content, &sr.Chunk.StartPosition, &sr.Chunk.EndPosition, &sr.Chunk.DocumentType,
			&sr.Document.ID, &sr.Document.Filename, &sr.Document.ContentType, &sr.Document.UploadedBy, &sr.Document.UploadedAt, &sr.Document.SizeBytes, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("repository.PgDocumentRepository.lexicalSearch: scan: %w", err)
		}
		score, ok := lexicalScore(sr.Chunk.Content, tokens)
		if !ok {
			continue
		}
		sr.Score = score
		if len(metaJSON) > 0 {
			json.Unmarshal(metaJSON, &sr.Document.Metadata)
		}
		results = append(results, sr)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}
