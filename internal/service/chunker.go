// Package service hosts the orchestrator's in-process components: chunking,
// embedding, intent analysis, strategy selection, and answer synthesis.
package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// ChunkerConfig carries the character-offset chunking parameters. All are
// measured in characters, not tokens.
type ChunkerConfig struct {
	MinChunkSize     int
	MaxChunkSize     int
	ChunkOverlap     int
	BoundaryLookback int
}

// ChunkerService splits document text into overlap-preserving chunks per
// the character-offset contract: each window is MaxChunkSize wide and
// advances by MaxChunkSize-ChunkOverlap characters, then its boundary is
// realigned backwards to the nearest paragraph break, then sentence
// boundary, then whitespace, within BoundaryLookback characters.
type ChunkerService struct {
	cfg ChunkerConfig
}

// NewChunkerService creates a ChunkerService. Zero/negative fields fall
// back to the teacher's historical defaults.
func NewChunkerService(cfg ChunkerConfig) *ChunkerService {
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = 200
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.MaxChunkSize {
		cfg.ChunkOverlap = cfg.MaxChunkSize / 10
	}
	if cfg.BoundaryLookback <= 0 {
		cfg.BoundaryLookback = 80
	}
	return &ChunkerService{cfg: cfg}
}

// Chunk splits text into model.Chunk values for the given document ID.
// Positions are original-text character offsets (rune-based); indices are
// 0-based and contiguous.
func (s *ChunkerService) Chunk(text, documentID, documentType string) ([]model.Chunk, error) {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, fmt.Errorf("service.Chunk: text is empty")
	}

	stride := s.cfg.MaxChunkSize - s.cfg.ChunkOverlap
	if stride <= 0 {
		stride = s.cfg.MaxChunkSize
	}

	var chunks []model.Chunk
	start := 0
	index := 0
	for start < n {
		end := start + s.cfg.MaxChunkSize
		if end >= n {
			end = n
		} else {
			end = s.realignBoundary(runes, start, end)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, model.Chunk{
				ID:            uuid.New().String(),
				DocumentID:    documentID,
				Index:         index,
				Content:       content,
				StartPosition: start,
				EndPosition:   end,
				DocumentType:  documentType,
			})
			index++
		}

		if end >= n {
			break
		}
		next := end - s.cfg.ChunkOverlap
		if next <= start {
			next = start + stride
		}
		start = next
	}

	return chunks, nil
}

// realignBoundary walks backwards from `end` within BoundaryLookback
// characters, preferring a paragraph break, then a sentence boundary,
// then whitespace. If none exists in the window, the hard limit is kept.
func (s *ChunkerService) realignBoundary(runes []rune, start, end int) int {
	lookback := s.cfg.BoundaryLookback
	floor := end - lookback
	if floor < start+s.cfg.MinChunkSize/2 {
		floor = start
	}
	if floor < 0 {
		floor = 0
	}

	if i := lastParagraphBreak(runes, floor, end); i > start {
		return i
	}
	if i := lastSentenceBoundary(runes, floor, end); i > start {
		return i
	}
	if i := lastWhitespace(runes, floor, end); i > start {
		return i
	}
	return end
}

// lastParagraphBreak returns the index just after the last "\n\n" found in
// runes[floor:end], or -1.
func lastParagraphBreak(runes []rune, floor, end int) int {
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && i-1 >= floor && runes[i-1] == '\n' {
			return i + 1
		}
	}
	return -1
}

// lastSentenceBoundary returns the index just after the last sentence-
// ending punctuation ('.', '!', '?') followed by whitespace, or -1.
func lastSentenceBoundary(runes []rune, floor, end int) int {
	for i := end - 1; i > floor; i-- {
		if (runes[i] == '.' || runes[i] == '!' || runes[i] == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}
	return -1
}

// lastWhitespace returns the index just after the last whitespace rune in
// runes[floor:end], or -1.
func lastWhitespace(runes []rune, floor, end int) int {
	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return -1
}
