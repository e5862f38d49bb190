package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/connexus-ai/smartrag-orchestrator/internal/dbcoordinator"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/promptbuilder"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
)

// extractionFailurePhrases flags an answer that claims missing data even
// though sources were supplied, the trigger for the extraction-retry pass.
var extractionFailurePhrases = []string{
	"don't have", "do not have", "no information", "not available", "cannot find", "unable to find",
}

// synthesisJSON is the expected JSON response contract for every prompt
// variant: answer text, per-citation excerpts tied back to a 1-based
// index into the chunks/sections passed in, and a confidence score.
type synthesisJSON struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Citations  []struct {
		Index     int    `json:"index"`
		Excerpt   string `json:"excerpt"`
		Relevance float64 `json:"relevance"`
	} `json:"citations"`
}

// Synthesizer builds the final answer from whichever combination of
// documents, database results and conversation history the orchestrator
// selected, assembles provenance Sources, and persists the turn.
type Synthesizer struct {
	gateway TextGenerator
	conv    repository.ConversationRepository
}

// NewSynthesizer builds a Synthesizer around the AI gateway and the
// conversation store the finished turn is persisted through (C4).
func NewSynthesizer(gateway TextGenerator, conv repository.ConversationRepository) *Synthesizer {
	return &Synthesizer{gateway: gateway, conv: conv}
}

// AnswerGate lets a caller (the Silence Protocol, in Engine) inspect and
// possibly replace an answer before it is persisted to the conversation
// log, so the stored turn never diverges from what was returned.
// excerpts is the chunk content the answer was grounded in.
type AnswerGate func(answer string, excerpts []string) string

// SynthesizeDocuments answers purely from retrieved chunks. If the first
// pass's answer reads like a refusal despite sources being present, it
// retries once in extraction-retry mode, which instructs the model more
// strictly to extract only from what was given. gate, if non-nil, runs
// against the final answer before it is persisted; it is skipped when no
// chunks were retrieved (nothing to gate against).
func (s *Synthesizer) SynthesizeDocuments(ctx context.Context, sessionID, query string, results []repository.SearchResult, preferredLanguage string, gate AnswerGate) (*model.RagResponse, error) {
	contexts := make([]promptbuilder.DocumentContext, len(results))
	for i, r := range results {
		contexts[i] = promptbuilder.DocumentContext{Filename: r.Document.Filename, Excerpt: r.Chunk.Content}
	}

	system, user := promptbuilder.BuildDocumentRagPrompt(query, contexts, preferredLanguage, false)
	raw, err := s.gateway.GenerateText(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("service.SynthesizeDocuments: %w", err)
	}
	parsed, err := parseSynthesis(raw)
	if err != nil {
		return nil, fmt.Errorf("service.SynthesizeDocuments: %w", err)
	}

	if len(results) > 0 && looksLikeRefusal(parsed.Answer) {
		system, user = promptbuilder.BuildDocumentRagPrompt(query, contexts, preferredLanguage, true)
		raw, err = s.gateway.GenerateText(ctx, system, user)
		if err != nil {
			return nil, fmt.Errorf("service.SynthesizeDocuments: extraction retry: %w", err)
		}
		if retried, rerr := parseSynthesis(raw); rerr == nil {
			parsed = retried
		}
	}

	answer := parsed.Answer
	if gate != nil && len(results) > 0 {
		answer = gate(answer, excerptsOf(results))
	}

	sources := sourcesFromDocuments(results, parsed)
	sortSources(sources)
	meta := model.SearchMetadata{DocumentSearchPerformed: true, DocumentResultsFound: len(results)}
	return s.finish(ctx, sessionID, query, answer, sources, meta)
}

// SynthesizeDatabases answers purely from per-database query results.
func (s *Synthesizer) SynthesizeDatabases(ctx context.Context, sessionID, query string, results []dbcoordinator.Result, preferredLanguage string) (*model.RagResponse, error) {
	contexts := databaseContexts(results)
	system, user := promptbuilder.BuildHybridMergePrompt(query, nil, contexts, nil, preferredLanguage)
	raw, err := s.gateway.GenerateText(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("service.SynthesizeDatabases: %w", err)
	}
	parsed, err := parseSynthesis(raw)
	if err != nil {
		return nil, fmt.Errorf("service.SynthesizeDatabases: %w", err)
	}

	sources := sourcesFromDatabases(results)
	sortSources(sources)
	meta := model.SearchMetadata{DatabaseSearchPerformed: true, DatabaseResultsFound: countSuccessful(results)}
	return s.finish(ctx, sessionID, query, parsed.Answer, sources, meta)
}

// SynthesizeHybrid merges document excerpts, database results, and (when
// any tools were invoked) MCP tool results in one prompt and labels every
// contribution in the resulting Sources. mcpResults is additive: pass nil
// when MCP is disabled or no connected server had a relevant tool. gate,
// if non-nil, runs against the final answer before it is persisted; it is
// skipped when no document excerpts contributed (nothing to gate against).
func (s *Synthesizer) SynthesizeHybrid(ctx context.Context, sessionID, query string, docResults []repository.SearchResult, dbResults []dbcoordinator.Result, mcpResults []McpResult, preferredLanguage string, gate AnswerGate) (*model.RagResponse, error) {
	docContexts := make([]promptbuilder.DocumentContext, len(docResults))
	for i, r := range docResults {
		docContexts[i] = promptbuilder.DocumentContext{Filename: r.Document.Filename, Excerpt: r.Chunk.Content}
	}
	dbContexts := databaseContexts(dbResults)
	mcpContexts := mcpPromptContexts(mcpResults)

	system, user := promptbuilder.BuildHybridMergePrompt(query, docContexts, dbContexts, mcpContexts, preferredLanguage)
	raw, err := s.gateway.GenerateText(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("service.SynthesizeHybrid: %w", err)
	}
	parsed, err := parseSynthesis(raw)
	if err != nil {
		return nil, fmt.Errorf("service.SynthesizeHybrid: %w", err)
	}

	answer := parsed.Answer
	if gate != nil && len(docResults) > 0 {
		answer = gate(answer, excerptsOf(docResults))
	}

	sources := append(sourcesFromDocuments(docResults, parsed), sourcesFromDatabases(dbResults)...)
	sources = append(sources, sourcesFromMcp(mcpResults)...)
	sortSources(sources)
	meta := model.SearchMetadata{
		DocumentSearchPerformed: true, DocumentResultsFound: len(docResults),
		DatabaseSearchPerformed: true, DatabaseResultsFound: countSuccessful(dbResults),
		McpSearchPerformed: len(mcpResults) > 0, McpResultsFound: countSuccessfulMcp(mcpResults),
	}
	return s.finish(ctx, sessionID, query, answer, sources, meta)
}

// SynthesizeConversation answers a conversational turn ungrounded, using
// the session's prior history for continuity. No Sources are attached.
func (s *Synthesizer) SynthesizeConversation(ctx context.Context, sessionID, query, history, preferredLanguage string) (*model.RagResponse, error) {
	system, user := promptbuilder.BuildConversationPrompt(query, history, preferredLanguage)
	answer, err := s.gateway.GenerateText(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("service.SynthesizeConversation: %w", err)
	}
	return s.finish(ctx, sessionID, query, answer, nil, model.SearchMetadata{})
}

func (s *Synthesizer) finish(ctx context.Context, sessionID, query, answer string, sources []model.Source, meta model.SearchMetadata) (*model.RagResponse, error) {
	if sessionID != "" && s.conv != nil {
		if err := s.conv.Append(ctx, sessionID, query, answer, sources); err != nil {
			return nil, fmt.Errorf("service.finish: persist turn: %w", err)
		}
	}
	return &model.RagResponse{
		OriginalQuery:   query,
		Answer:          answer,
		Sources:         sources,
		SearchTimestamp: time.Now(),
		SearchMetadata:  meta,
	}, nil
}

func looksLikeRefusal(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range extractionFailurePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func parseSynthesis(raw string) (*synthesisJSON, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) >= 3 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	cleaned = strings.TrimSpace(cleaned)

	var parsed synthesisJSON
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		// Non-JSON responses are treated as the answer verbatim, with no
		// citation-driven source enrichment — matches the teacher's
		// parseGenerationResponse fallback for the same failure mode.
		return &synthesisJSON{Answer: raw, Confidence: 0.5}, nil
	}
	return &parsed, nil
}

// excerptsOf pulls the raw chunk content out of a set of search results,
// the shape the Silence Protocol's support check takes as grounding.
func excerptsOf(results []repository.SearchResult) []string {
	excerpts := make([]string, len(results))
	for i, r := range results {
		excerpts[i] = r.Chunk.Content
	}
	return excerpts
}

func databaseContexts(results []dbcoordinator.Result) []promptbuilder.DatabaseContext {
	contexts := make([]promptbuilder.DatabaseContext, len(results))
	for i, r := range results {
		rendered := r.Rendered
		if !r.Success {
			rendered = fmt.Sprintf("(query failed: %s)", r.Error)
		}
		contexts[i] = promptbuilder.DatabaseContext{DatabaseName: r.DatabaseName, Rendered: rendered}
	}
	return contexts
}

// sourcesFromDocuments builds one Source per retrieved chunk, using the
// model's own relevance citation when one exists for that index and
// falling back to the retrieval score otherwise.
func sourcesFromDocuments(results []repository.SearchResult, parsed *synthesisJSON) []model.Source {
	relevance := make(map[int]float64, len(parsed.Citations))
	for _, c := range parsed.Citations {
		relevance[c.Index] = c.Relevance
	}

	sources := make([]model.Source, 0, len(results))
	for i, r := range results {
		score := r.Score
		if rel, ok := relevance[i+1]; ok {
			score = rel
		}
		sources = append(sources, sourceFromChunk(r, score))
	}
	return sources
}

func sourceFromChunk(r repository.SearchResult, relevance float64) model.Source {
	src := model.Source{
		Type:           classifyContentType(r.Document.ContentType),
		RelevanceScore: relevance,
		Excerpt:        r.Chunk.Content,
		DocumentID:     r.Document.ID,
		Filename:       r.Document.Filename,
		ChunkIndex:     r.Chunk.Index,
	}
	if src.Type == model.SourceAudio {
		// Audio chunks carry a [start,end] seconds interval rather than a
		// character span; the upstream (opaque) transcription engine is
		// the one non-goal component that writes StartPosition/EndPosition
		// in centiseconds for audio documents instead of character offsets.
		src.AudioStart = float64(r.Chunk.StartPosition) / 100
		src.AudioEnd = float64(r.Chunk.EndPosition) / 100
		src.Location = fmt.Sprintf("%.1fs-%.1fs", src.AudioStart, src.AudioEnd)
	} else {
		src.StartChar = r.Chunk.StartPosition
		src.EndChar = r.Chunk.EndPosition
		src.Location = fmt.Sprintf("chars %d-%d", r.Chunk.StartPosition, r.Chunk.EndPosition)
	}
	return src
}

func classifyContentType(contentType string) model.SourceType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return model.SourceImage
	case strings.HasPrefix(contentType, "audio/"):
		return model.SourceAudio
	default:
		return model.SourceDocument
	}
}

func sourcesFromDatabases(results []dbcoordinator.Result) []model.Source {
	sources := make([]model.Source, 0, len(results))
	for _, r := range results {
		if !r.Success {
			continue
		}
		rel := 1.0
		if r.RowCount == 0 {
			rel = 0.3
		}
		sources = append(sources, model.Source{
			Type:           model.SourceDatabase,
			RelevanceScore: rel,
			Excerpt:        r.Rendered,
			Location:       fmt.Sprintf("%d row(s) in %.0fms", r.RowCount, r.Duration.Seconds()*1000),
			DatabaseID:     r.DatabaseID,
			DatabaseName:   r.DatabaseName,
			SQL:            r.SQL,
		})
	}
	return sources
}

func countSuccessful(results []dbcoordinator.Result) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

func mcpPromptContexts(results []McpResult) []promptbuilder.McpContext {
	if len(results) == 0 {
		return nil
	}
	contexts := make([]promptbuilder.McpContext, len(results))
	for i, r := range results {
		contexts[i] = promptbuilder.McpContext{ServerID: r.ServerID, ToolName: r.ToolName, Rendered: r.Rendered}
	}
	return contexts
}

// sourcesFromMcp attributes each successful tool invocation to a System
// source; failed calls are already surfaced inline in the prompt and don't
// need a citation of their own.
func sourcesFromMcp(results []McpResult) []model.Source {
	sources := make([]model.Source, 0, len(results))
	for _, r := range results {
		if !r.Success {
			continue
		}
		sources = append(sources, model.Source{
			Type:           model.SourceSystem,
			RelevanceScore: 0.8,
			Excerpt:        r.Rendered,
			Location:       fmt.Sprintf("tool %s on %s", r.ToolName, r.ServerID),
		})
	}
	return sources
}

func countSuccessfulMcp(results []McpResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

// sortSources orders by relevance descending, tie-broken by id (document
// id, falling back to database id) for a stable, deterministic order.
func sortSources(sources []model.Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].RelevanceScore != sources[j].RelevanceScore {
			return sources[i].RelevanceScore > sources[j].RelevanceScore
		}
		return sourceID(sources[i]) < sourceID(sources[j])
	})
}

func sourceID(s model.Source) string {
	if s.DocumentID != "" {
		return s.DocumentID
	}
	return s.DatabaseID
}
