package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
)

// IngestService runs the upload-to-index pipeline shared by every entry
// point that hands a document to the store: chunk, embed, upsert. Mirrors
// the teacher's PipelineService parse-to-index sequencing, minus the
// parse/PII stages no longer needed since callers already hand over text.
type IngestService struct {
	docs     repository.DocumentRepository
	chunker  *ChunkerService
	embedder *EmbedderService

	mu         sync.Mutex
	processing map[string]bool
}

// NewIngestService builds an IngestService around the document store and
// the chunking/embedding engines (C2/C3).
func NewIngestService(docs repository.DocumentRepository, chunker *ChunkerService, embedder *EmbedderService) *IngestService {
	return &IngestService{docs: docs, chunker: chunker, embedder: embedder, processing: make(map[string]bool)}
}

// Ingest chunks and embeds text and upserts the resulting Document. The
// caller is responsible for any duplicate-detection (FileHash lookup)
// before calling — Ingest always performs an ordinary insert.
func (s *IngestService) Ingest(ctx context.Context, filename, contentType, uploadedBy, text string, sizeBytes int64, metadata map[string]string) (*model.Document, error) {
	docID := uuid.New().String()

	s.mu.Lock()
	if s.processing[docID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("service.Ingest: document %s is already being processed", docID)
	}
	s.processing[docID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.processing, docID)
		s.mu.Unlock()
	}()

	slog.Info("ingest starting", "document_id", docID, "filename", filename)

	documentType := metadata[model.MetaDocumentType]
	chunks, err := s.chunker.Chunk(text, docID, documentType)
	if err != nil {
		return nil, fmt.Errorf("service.Ingest: chunk: %w", err)
	}
	slog.Info("ingest chunked", "document_id", docID, "chunk_count", len(chunks))

	if err := s.embedder.EmbedChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("service.Ingest: embed: %w", err)
	}

	doc := &model.Document{
		ID:          docID,
		Filename:    filename,
		ContentType: contentType,
		UploadedBy:  uploadedBy,
		UploadedAt:  time.Now(),
		SizeBytes:   sizeBytes,
		Metadata:    metadata,
		Chunks:      chunks,
	}
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("service.Ingest: upsert: %w", err)
	}

	slog.Info("ingest completed", "document_id", docID, "chunk_count", len(chunks))
	return doc, nil
}
