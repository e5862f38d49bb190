package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/smartrag-orchestrator/internal/cache"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/service"
)

type fakeEmbeddingProvider struct{}

func (fakeEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbeddingProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func newTestIngest(docs repository.DocumentRepository) *service.IngestService {
	chunker := service.NewChunkerService(service.ChunkerConfig{})
	embedder := service.NewEmbedderService(fakeEmbeddingProvider{}, 0, cache.NewEmbeddingCache(0))
	return service.NewIngestService(docs, chunker, embedder)
}

func newMultipartUpload(t *testing.T, uploadedBy, filename, contentType, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if uploadedBy != "" {
		if err := w.WriteField("uploadedBy", uploadedBy); err != nil {
			t.Fatal(err)
		}
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestDocumentsUpload_RejectsMissingUploadedBy(t *testing.T) {
	docs := repository.NewInMemoryDocumentRepository()
	h := NewDocuments(docs, newTestIngest(docs))

	req := newMultipartUpload(t, "", "notes.txt", "text/plain", "hello world")
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestDocumentsUpload_RejectsUnsupportedContentType(t *testing.T) {
	docs := repository.NewInMemoryDocumentRepository()
	h := NewDocuments(docs, newTestIngest(docs))

	req := newMultipartUpload(t, "alice", "notes.bin", "application/x-unknown", "hello world")
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestDocumentsUpload_Succeeds(t *testing.T) {
	docs := repository.NewInMemoryDocumentRepository()
	h := NewDocuments(docs, newTestIngest(docs))

	req := newMultipartUpload(t, "alice", "notes.txt", "text/plain", "hello world, this is a test document.")
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	list, total, err := docs.List(context.Background(), 0, 20, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("expected 1 stored document, got %d", total)
	}
}

func TestDocumentsUpload_DuplicateFileHashIsSkipped(t *testing.T) {
	docs := repository.NewInMemoryDocumentRepository()
	h := NewDocuments(docs, newTestIngest(docs))

	body := "duplicate content for hashing"
	req1 := newMultipartUpload(t, "alice", "a.txt", "text/plain", body)
	rec1 := httptest.NewRecorder()
	h.Upload(rec1, req1)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first upload status = %d, body=%s", rec1.Code, rec1.Body.String())
	}

	req2 := newMultipartUpload(t, "bob", "b.txt", "text/plain", body)
	rec2 := httptest.NewRecorder()
	h.Upload(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("duplicate upload status = %d, want %d, body=%s", rec2.Code, http.StatusOK, rec2.Body.String())
	}
	if !strings.Contains(rec2.Body.String(), `"skipped":true`) {
		t.Errorf("expected skipped:true in response, got %s", rec2.Body.String())
	}
}

func TestDocumentsGet_InvalidID(t *testing.T) {
	docs := repository.NewInMemoryDocumentRepository()
	h := NewDocuments(docs, newTestIngest(docs))

	r := chi.NewRouter()
	r.Get("/{id}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDocumentsList_DefaultsPageSize(t *testing.T) {
	docs := repository.NewInMemoryDocumentRepository()
	h := NewDocuments(docs, newTestIngest(docs))

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"take":20`) {
		t.Errorf("expected default take=20, got %s", rec.Body.String())
	}
}

func TestSupportedTypes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/upload/supported-types", nil)
	rec := httptest.NewRecorder()
	SupportedTypes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "application/pdf") {
		t.Errorf("expected pdf in supported types, got %s", rec.Body.String())
	}
}
