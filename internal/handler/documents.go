package handler

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/service"
)

// Documents bundles the document-surface handlers (§6) around the
// document repository and the shared ingest pipeline (C3 upload path).
type Documents struct {
	docs   repository.DocumentRepository
	ingest *service.IngestService
}

// NewDocuments builds the Documents handler group.
func NewDocuments(docs repository.DocumentRepository, ingest *service.IngestService) *Documents {
	return &Documents{docs: docs, ingest: ingest}
}

func pageParams(r *http.Request) (skip, take int) {
	skip, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	take, _ = strconv.Atoi(r.URL.Query().Get("take"))
	if take <= 0 {
		take = 20
	}
	if skip < 0 {
		skip = 0
	}
	return skip, take
}

type documentListResponse struct {
	Items []model.DocumentSummary `json:"items"`
	Total int                     `json:"total"`
	Skip  int                     `json:"skip"`
	Take  int                     `json:"take"`
}

// List handles GET api/documents?skip&take — non-schema documents, newest
// first.
func (h *Documents) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// ListSchemas handles GET api/documents/schemas?skip&take.
func (h *Documents) ListSchemas(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *Documents) list(w http.ResponseWriter, r *http.Request, schemaDocsOnly bool) {
	skip, take := pageParams(r)
	docs, total, err := h.docs.List(r.Context(), skip, take, schemaDocsOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]model.DocumentSummary, len(docs))
	for i, d := range docs {
		items[i] = d.ToSummary()
	}
	writeJSON(w, http.StatusOK, documentListResponse{Items: items, Total: total, Skip: skip, Take: take})
}

// Get handles GET api/documents/{id}.
func (h *Documents) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validateUUID(id) {
		writeError(w, apperr.New(apperr.KindValidation, "invalid document id"))
		return
	}
	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.ToSummary())
}

// GetChunks handles GET api/documents/{id}/chunks.
func (h *Documents) GetChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validateUUID(id) {
		writeError(w, apperr.New(apperr.KindValidation, "invalid document id"))
		return
	}
	chunks, err := h.docs.GetChunks(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

// Upload handles POST api/documents — a multipart form with fields `file`,
// `uploadedBy` (required) and optional `language`. Duplicate uploads
// (matching FileHash metadata) are detected here and skipped per the
// idempotence contract in spec §4.3, which places duplicate-detection on
// the caller rather than the repository.
func (h *Documents) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(model.MaxFileSizeBytes); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "could not parse multipart form", err))
		return
	}

	uploadedBy := r.FormValue("uploadedBy")
	if uploadedBy == "" {
		writeError(w, apperr.New(apperr.KindValidation, "uploadedBy is required"))
		return
	}
	language := r.FormValue("language")

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "file is required", err))
		return
	}
	defer file.Close()

	if header.Size > model.MaxFileSizeBytes {
		writeError(w, apperr.New(apperr.KindValidation, "file exceeds maximum allowed size"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if !model.AllowedMimeTypes[contentType] {
		writeError(w, apperr.New(apperr.KindValidation, fmt.Sprintf("unsupported content type %q", contentType)))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "could not read uploaded file", err))
		return
	}

	sum := md5.Sum(data)
	hash := hex.EncodeToString(sum[:])

	if existing, err := h.docs.FindByFileHash(r.Context(), hash); err == nil && existing != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"skipped":  true,
			"reason":   "duplicate FileHash",
			"document": existing.ToSummary(),
		})
		return
	}

	metadata := map[string]string{model.MetaFileHash: hash}
	if language != "" {
		metadata[model.MetaLanguage] = language
	}

	// Extracting text from binary formats (PDF/DOCX/images via OCR) is an
	// external collaborator per spec §1; text/plain and text/csv are
	// ingested directly, everything else is treated as already-extracted
	// UTF-8 text handed over by that collaborator.
	doc, err := h.ingest.Ingest(r.Context(), header.Filename, contentType, uploadedBy, string(data), header.Size, metadata)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc.ToSummary())
}

// Delete handles DELETE api/documents/{id}.
func (h *Documents) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validateUUID(id) {
		writeError(w, apperr.New(apperr.KindValidation, "invalid document id"))
		return
	}
	if err := h.docs.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll handles DELETE api/documents.
func (h *Documents) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.DeleteAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// supportedTypeEntry is one entry in the supported-types listing.
type supportedTypeEntry struct {
	Extension string `json:"extension"`
	MimeType  string `json:"mimeType"`
}

var extensionsByMime = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"text/plain": ".txt",
	"text/csv":   ".csv",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// SupportedTypes handles GET api/upload/supported-types.
func SupportedTypes(w http.ResponseWriter, r *http.Request) {
	entries := make([]supportedTypeEntry, 0, len(model.AllowedMimeTypes))
	for mime := range model.AllowedMimeTypes {
		entries = append(entries, supportedTypeEntry{Extension: extensionsByMime[mime], MimeType: mime})
	}
	writeJSON(w, http.StatusOK, map[string]any{"supportedTypes": entries})
}
