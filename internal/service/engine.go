package service

import (
	"context"
	"fmt"

	"github.com/connexus-ai/smartrag-orchestrator/internal/dbcoordinator"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
)

// SilenceMetrics is the narrow counter surface the Engine reports a
// triggered Silence Protocol refusal through. middleware.Metrics already
// satisfies this.
type SilenceMetrics interface {
	IncrementSilenceTrigger()
}

// noopSilenceMetrics is used when the Engine is built without a metrics
// sink (e.g. in tests).
type noopSilenceMetrics struct{}

func (noopSilenceMetrics) IncrementSilenceTrigger() {}

// Engine is the single entry point a query-serving handler calls: it
// classifies intent, picks a path, fans out to whichever of documents,
// databases or both the path calls for, synthesizes one answer, and
// gates it through the Silence Protocol when documents were involved.
type Engine struct {
	intent       *IntentAnalyzer
	orchestrator *Orchestrator
	embedder     *EmbedderService
	docs         repository.DocumentRepository
	dbcoord      *dbcoordinator.Coordinator
	synth        *Synthesizer
	conv         repository.ConversationRepository
	catalog      *schema.Catalog
	silence      *SilenceGate
	metrics      SilenceMetrics
	tools        *ToolInvoker

	documentsEnabled bool
	databasesEnabled bool
	mcpEnabled       bool
	documentSearchK  int

	effectiveConfig model.EffectiveConfig
}

// EngineDeps bundles everything Engine needs, mirroring how the rest of
// this package's constructors take their collaborators explicitly rather
// than reaching into a shared container.
type EngineDeps struct {
	Intent       *IntentAnalyzer
	Orchestrator *Orchestrator
	Embedder     *EmbedderService
	Docs         repository.DocumentRepository
	DBCoord      *dbcoordinator.Coordinator // nil disables the database path entirely
	Synth        *Synthesizer
	Conv         repository.ConversationRepository
	Catalog      *schema.Catalog // nil disables the database path entirely
	Silence      *SilenceGate
	Metrics      SilenceMetrics
	Tools        *ToolInvoker // nil disables MCP tool invocation entirely

	DocumentsEnabled bool
	DatabasesEnabled bool
	McpEnabled       bool
	DocumentSearchK  int // chunks requested per document-path retrieval; <=0 defaults to 5

	EffectiveConfig model.EffectiveConfig
}

// NewEngine builds an Engine from its dependency bundle.
func NewEngine(d EngineDeps) *Engine {
	k := d.DocumentSearchK
	if k <= 0 {
		k = 5
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = noopSilenceMetrics{}
	}
	return &Engine{
		intent:           d.Intent,
		orchestrator:     d.Orchestrator,
		embedder:         d.Embedder,
		docs:             d.Docs,
		dbcoord:          d.DBCoord,
		synth:            d.Synth,
		conv:             d.Conv,
		catalog:          d.Catalog,
		silence:          d.Silence,
		metrics:          metrics,
		tools:            d.Tools,
		documentsEnabled: d.DocumentsEnabled,
		databasesEnabled: d.DatabasesEnabled && d.DBCoord != nil && d.Catalog != nil,
		mcpEnabled:       d.McpEnabled && d.Tools != nil,
		documentSearchK:  k,
		effectiveConfig:  d.EffectiveConfig,
	}
}

// Ask answers one query. sessionID may be empty, in which case a new
// session is minted and returned alongside the answer so the caller can
// thread follow-up turns through the same conversation. preferredLanguage
// may be empty to let the prompt builder fall back to its own default.
func (e *Engine) Ask(ctx context.Context, sessionID, query, preferredLanguage string) (*model.RagResponse, string, error) {
	if sessionID == "" {
		sessionID = repository.NewSessionID()
	}

	history := ""
	if e.conv != nil {
		h, err := e.conv.GetHistory(ctx, sessionID)
		if err != nil {
			return nil, sessionID, fmt.Errorf("service.Engine.Ask: load history: %w", err)
		}
		history = h
	}

	analysis, err := e.intent.Analyze(ctx, query, history, e.databaseNameToID())
	if err != nil {
		return nil, sessionID, fmt.Errorf("service.Engine.Ask: analyze: %w", err)
	}

	req := QueryStrategyRequest{
		Query:            query,
		Analysis:         analysis,
		DocumentsEnabled: e.documentsEnabled,
		DatabasesEnabled: e.databasesEnabled,
		McpEnabled:       e.mcpEnabled,
	}

	if !analysis.IsConversation && e.documentsEnabled {
		// CanAnswerFromDocuments reports "yes" on a store error and returns
		// the error alongside; only its candidate list is used here.
		_, candidates, _ := e.orchestrator.CanAnswerFromDocuments(ctx, query)
		req.CandidateDocs = candidates
		req.DocsFetchAttempted = true
	}

	path := e.orchestrator.SelectPath(req)

	resp, err := e.answerForPath(ctx, path, sessionID, query, history, analysis, preferredLanguage)
	if err != nil {
		return nil, sessionID, err
	}

	resp.Config = e.effectiveConfig
	return resp, sessionID, nil
}

func (e *Engine) answerForPath(ctx context.Context, path Path, sessionID, query, history string, analysis *model.QueryIntentAnalysisResult, preferredLanguage string) (*model.RagResponse, error) {
	switch path {
	case PathConversational:
		if analysis.ConversationalAnswer != "" {
			return e.synth.finish(ctx, sessionID, query, analysis.ConversationalAnswer, nil, model.SearchMetadata{})
		}
		return e.synth.SynthesizeConversation(ctx, sessionID, query, history, preferredLanguage)

	case PathDocumentOnly:
		results, err := e.searchDocuments(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("service.Engine.answerForPath: document search: %w", err)
		}
		return e.synth.SynthesizeDocuments(ctx, sessionID, query, results, preferredLanguage, e.silenceGate(query))

	case PathDatabaseOnly:
		results, err := e.dbcoord.Execute(ctx, analysis.Intent)
		if err != nil {
			return nil, fmt.Errorf("service.Engine.answerForPath: database execution: %w", err)
		}
		return e.synth.SynthesizeDatabases(ctx, sessionID, query, results, preferredLanguage)

	default: // PathHybrid
		var docResults []repository.SearchResult
		if e.documentsEnabled {
			results, err := e.searchDocuments(ctx, query)
			if err != nil {
				return nil, fmt.Errorf("service.Engine.answerForPath: document search: %w", err)
			}
			docResults = results
		}

		var dbResults []dbcoordinator.Result
		if e.databasesEnabled && analysis.Intent != nil && analysis.Intent.HasDatabaseTargets() {
			results, err := e.dbcoord.Execute(ctx, analysis.Intent)
			if err != nil {
				return nil, fmt.Errorf("service.Engine.answerForPath: database execution: %w", err)
			}
			dbResults = results
		}

		mcpResults := e.maybeInvokeTools(ctx, query, analysis)

		return e.synth.SynthesizeHybrid(ctx, sessionID, query, docResults, dbResults, mcpResults, preferredLanguage, e.silenceGate(query))
	}
}

// maybeInvokeTools runs the MCP tool invoker against the query's tokens
// when MCP is enabled, additive to whatever documents/databases already
// contributed to the hybrid path. Returns nil when MCP is disabled.
func (e *Engine) maybeInvokeTools(ctx context.Context, query string, analysis *model.QueryIntentAnalysisResult) []McpResult {
	if !e.mcpEnabled {
		return nil
	}
	return e.tools.Invoke(ctx, query, analysis.Tokens)
}

// silenceGate builds an AnswerGate closure around the configured
// SilenceGate, bumping the trigger metric when it fires. Returns nil when
// no SilenceGate is configured, so callers can pass the result straight
// through without a nil check of their own.
func (e *Engine) silenceGate(query string) AnswerGate {
	if e.silence == nil {
		return nil
	}
	return func(answer string, excerpts []string) string {
		confidence, ok := e.silence.Check(query, answer, excerpts)
		if ok {
			return answer
		}
		e.metrics.IncrementSilenceTrigger()
		return e.silence.Silence(confidence).Message
	}
}

// searchDocuments embeds the query (cache-first) and runs a vector search
// against the document store for documentSearchK chunks.
func (e *Engine) searchDocuments(ctx context.Context, query string) ([]repository.SearchResult, error) {
	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return e.docs.Search(ctx, vec, query, e.documentSearchK)
}

// databaseNameToID builds the display-name-to-id map the intent
// classifier needs, restricted to databases whose schema analysis
// completed successfully (the only ones the coordinator can route to).
func (e *Engine) databaseNameToID() map[string]string {
	if e.catalog == nil {
		return nil
	}
	routable := make(map[string]bool)
	for _, id := range e.catalog.Routable() {
		routable[id] = true
	}

	out := make(map[string]string)
	for _, entry := range e.catalog.All() {
		if routable[entry.ID] {
			out[entry.Name] = entry.ID
		}
	}
	return out
}
