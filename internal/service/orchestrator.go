package service

import (
	"context"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
)

// Path names the single route the orchestrator selects for one query.
type Path string

const (
	PathConversational Path = "conversational"
	PathDocumentOnly   Path = "document-only"
	PathDatabaseOnly   Path = "database-only"
	PathHybrid         Path = "hybrid"
)

// QueryStrategyRequest carries the work C10 already did (tokenize once,
// fetch candidate chunks once) through path selection so later stages
// never repeat it.
type QueryStrategyRequest struct {
	Query              string
	Analysis           *model.QueryIntentAnalysisResult
	DocumentsEnabled   bool
	DatabasesEnabled   bool
	McpEnabled         bool
	CandidateDocs      []repository.SearchResult
	DocsFetchAttempted bool
}

// Orchestrator selects exactly one path per query and exposes the cheap
// CanAnswerFromDocuments overlap check the database-only branch needs.
type Orchestrator struct {
	docs                 repository.DocumentRepository
	routeToDocsThreshold float64
}

// NewOrchestrator builds an Orchestrator around the document repository
// consulted for the cheap overlap check. routeToDocsThreshold is the
// confidence bar a query must clear for the document-only path to apply
// (config.RouteToDocsThreshold).
func NewOrchestrator(docs repository.DocumentRepository, routeToDocsThreshold float64) *Orchestrator {
	return &Orchestrator{docs: docs, routeToDocsThreshold: routeToDocsThreshold}
}

// candidateFetchLimit is how many lexical hits CanAnswerFromDocuments asks
// for — enough to judge overlap without the cost of a real retrieval pass.
const candidateFetchLimit = 3

// CanAnswerFromDocuments runs a cheap, embedding-free lexical search
// against the document store and reports whether any chunk scored above
// zero. On a store error, it assumes yes: a transient document-store
// failure should degrade to "try documents too," not silently exclude
// them (mirrors the spec's documented error-bias decision for routing).
func (o *Orchestrator) CanAnswerFromDocuments(ctx context.Context, query string) (bool, []repository.SearchResult, error) {
	results, err := o.docs.Search(ctx, nil, query, candidateFetchLimit)
	if err != nil {
		return true, nil, err
	}
	return len(results) > 0, results, nil
}

// SelectPath decides the single path for this query. req.Analysis must be
// non-nil and, for non-conversational queries, req.CandidateDocs should
// already hold the result of CanAnswerFromDocuments so this call never
// triggers a second document-store round trip.
func (o *Orchestrator) SelectPath(req QueryStrategyRequest) Path {
	if req.Analysis.IsConversation {
		return PathConversational
	}

	intent := req.Analysis.Intent
	hasDBRows := intent != nil && intent.HasDatabaseTargets()
	docsCanAnswer := len(req.CandidateDocs) > 0

	documentOnly := req.DocumentsEnabled && intent != nil && intent.Confidence >= o.routeToDocsThreshold && !hasDBRows
	databaseOnly := req.DatabasesEnabled && hasDBRows && !docsCanAnswer

	switch {
	case documentOnly:
		return PathDocumentOnly
	case databaseOnly:
		return PathDatabaseOnly
	default:
		return PathHybrid
	}
}
