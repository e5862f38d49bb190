package model

import (
	"encoding/json"
	"time"
)

// Reserved metadata keys. Every Document.Metadata map may carry these;
// callers must not repurpose them for other meanings.
const (
	MetaFileHash       = "FileHash"
	MetaFilePath       = "FilePath"
	MetaCollectionName = "CollectionName"
	MetaDocumentType   = "documentType"
	MetaDatabaseType   = "databaseType"
	MetaLanguage       = "Language"
)

// DocumentTypeSchema marks a document as a schema excerpt (catalog document),
// excluded from normal document listings per spec §3.
const DocumentTypeSchema = "Schema"

// AllowedMimeTypes lists the mime types accepted for upload.
var AllowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
	"text/csv":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"image/png":  true,
	"image/jpeg": true,
}

// MaxFileSizeBytes is the maximum allowed upload size (50 MB).
const MaxFileSizeBytes = 50 * 1024 * 1024

// Document is an uploaded or ingested source file, identified by a stable UUID.
// A Document exclusively owns its Chunks.
type Document struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"contentType"`
	UploadedBy  string            `json:"uploadedBy"`
	UploadedAt  time.Time         `json:"uploadedAt"`
	SizeBytes   int64             `json:"sizeBytes"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Chunks      []Chunk           `json:"-"`
}

// IsSchemaDocument reports whether this document is a catalog excerpt
// owned by the database subsystem rather than ordinary RAG content.
func (d *Document) IsSchemaDocument() bool {
	return d.Metadata[MetaDocumentType] == DocumentTypeSchema
}

// FileHash returns the reserved FileHash metadata value, or "" if absent.
func (d *Document) FileHash() string {
	return d.Metadata[MetaFileHash]
}

// Chunk is a contiguous substring of a Document's text used as the unit of
// retrieval. StartPosition/EndPosition are character offsets into the
// original document text; EndPosition > StartPosition always holds.
type Chunk struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"documentId"`
	Index         int       `json:"index"`
	Content       string    `json:"content"`
	StartPosition int       `json:"startPosition"`
	EndPosition   int       `json:"endPosition"`
	DocumentType  string    `json:"documentType,omitempty"`
	Embedding     []float32 `json:"-"`
}

// Length returns the character length of the chunk's content.
func (c *Chunk) Length() int {
	return c.EndPosition - c.StartPosition
}

// DocumentSummary is the lightweight projection returned by list endpoints.
type DocumentSummary struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"contentType"`
	UploadedBy  string            `json:"uploadedBy"`
	UploadedAt  time.Time         `json:"uploadedAt"`
	SizeBytes   int64             `json:"sizeBytes"`
	ChunkCount  int               `json:"chunkCount"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ToSummary projects a Document into a DocumentSummary.
func (d *Document) ToSummary() DocumentSummary {
	return DocumentSummary{
		ID:          d.ID,
		Filename:    d.Filename,
		ContentType: d.ContentType,
		UploadedBy:  d.UploadedBy,
		UploadedAt:  d.UploadedAt,
		SizeBytes:   d.SizeBytes,
		ChunkCount:  len(d.Chunks),
		Metadata:    d.Metadata,
	}
}

// MarshalMetadata round-trips Metadata through JSON for storage layers that
// persist it as a single JSON column.
func (d *Document) MarshalMetadata() (json.RawMessage, error) {
	if d.Metadata == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(d.Metadata)
}
