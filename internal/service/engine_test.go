package service

import (
	"context"
	"testing"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
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

func newTestEngine(t *testing.T, gw *fakeTextGenerator, docs repository.DocumentRepository) (*Engine, repository.ConversationRepository) {
	t.Helper()
	conv := repository.NewInMemoryConversationRepository(1000)
	return NewEngine(EngineDeps{
		Intent:           NewIntentAnalyzer(gw),
		Orchestrator:     NewOrchestrator(docs, 0.5),
		Embedder:         NewEmbedderService(fakeEmbeddingProvider{}, 0, nil),
		Docs:             docs,
		Synth:            NewSynthesizer(gw, conv),
		Conv:             conv,
		Silence:          NewSilenceGate(0),
		DocumentsEnabled: true,
		DatabasesEnabled: true,
		EffectiveConfig:  model.EffectiveConfig{AIProvider: "test-provider", ModelName: "test-model"},
	}), conv
}

func TestEngine_ConversationalPathMintsSessionAndPersists(t *testing.T) {
	gw := &fakeTextGenerator{response: `{"isConversation": true, "conversationalAnswer": "hi"}`}
	docs := &fakeDocSearcher{}
	e, conv := newTestEngine(t, gw, docs)

	resp, sessionID, err := e.Ask(context.Background(), "", "hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a minted session id")
	}
	if resp.Config.AIProvider != "test-provider" {
		t.Errorf("expected effective config to be attached, got %+v", resp.Config)
	}

	exists, err := conv.Exists(context.Background(), sessionID)
	if err != nil || !exists {
		t.Errorf("expected the turn to be persisted, exists=%v err=%v", exists, err)
	}
}

func TestEngine_DocumentOnlyPathSearchesAndSynthesizes(t *testing.T) {
	gw := &fakeTextGenerator{response: `{"isConversation": false, "understanding": "wants policy", "confidence": 0.9}` }
	docs := &fakeDocSearcher{results: []repository.SearchResult{
		{
			Document: model.Document{ID: "doc1", Filename: "policy.txt", ContentType: "text/plain"},
			Chunk:    model.Chunk{Index: 0, Content: "Refunds within 30 days."},
			Score:    0.8,
		},
	}}
	e, _ := newTestEngine(t, gw, docs)

	// Every call to the fake gateway now returns this synthesis JSON; the
	// intent classification reads only its confidence and isConversation.
	gw.response = `{"answer": "Refunds are processed within 30 days.", "confidence": 0.9, "citations": [{"index": 1, "excerpt": "Refunds within 30 days.", "relevance": 0.9}]}`

	resp, _, err := e.Ask(context.Background(), "", "what is the refund window", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("expected one source, got %d", len(resp.Sources))
	}
	if resp.SearchMetadata.DocumentResultsFound != 1 {
		t.Errorf("expected 1 document result recorded, got %+v", resp.SearchMetadata)
	}
}

func TestEngine_SilenceGateReplacesUnsupportedAnswer(t *testing.T) {
	gw := &fakeTextGenerator{response: `{"isConversation": false, "understanding": "wants refund window", "confidence": 0.9}`}
	docs := &fakeDocSearcher{results: []repository.SearchResult{
		{
			Document: model.Document{ID: "doc1", Filename: "unrelated.txt", ContentType: "text/plain"},
			Chunk:    model.Chunk{Index: 0, Content: "The warehouse is located in Ohio."},
			Score:    0.6,
		},
	}}
	conv := repository.NewInMemoryConversationRepository(1000)
	e := NewEngine(EngineDeps{
		Intent:           NewIntentAnalyzer(gw),
		Orchestrator:     NewOrchestrator(docs, 0.5),
		Embedder:         NewEmbedderService(fakeEmbeddingProvider{}, 0, nil),
		Docs:             docs,
		Synth:            NewSynthesizer(gw, conv),
		Conv:             conv,
		Silence:          NewSilenceGate(0.9),
		DocumentsEnabled: true,
	})

	gw.response = `{"answer": "Giraffes are the tallest living terrestrial animal.", "confidence": 0.9}`

	resp, _, err := e.Ask(context.Background(), "", "what is the refund window", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "I cannot provide a sufficiently grounded answer to this query based on your documents." {
		t.Errorf("expected the silence response, got %q", resp.Answer)
	}
}

func TestEngine_ReusesSuppliedSessionID(t *testing.T) {
	gw := &fakeTextGenerator{response: `{"isConversation": true, "conversationalAnswer": "hi again"}`}
	docs := &fakeDocSearcher{}
	e, _ := newTestEngine(t, gw, docs)

	_, sessionID, err := e.Ask(context.Background(), "existing-session", "hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessionID != "existing-session" {
		t.Errorf("sessionID = %q, want %q", sessionID, "existing-session")
	}
}
