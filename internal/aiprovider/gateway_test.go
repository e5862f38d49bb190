package aiprovider

import (
	"context"
	"errors"
	"testing"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
)

// fakeProvider is a lightweight in-package stand-in for Provider; no mocking
// framework is used anywhere in this module.
type fakeProvider struct {
	name string

	textErr  error
	textResp string
	textCalls int
	lastSystemPrompt string

	embedErr  error
	embedResp []float32

	embedsErr  error
	embedsResp [][]float32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.textCalls++
	f.lastSystemPrompt = systemPrompt
	if f.textErr != nil {
		return "", f.textErr
	}
	return f.textResp, nil
}

func (f *fakeProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedResp, nil
}

func (f *fakeProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedsErr != nil {
		return nil, f.embedsErr
	}
	return f.embedsResp, nil
}

func TestGateway_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "vertex-ai", textResp: "hello"}
	gw := NewGateway(primary, nil, true, "be nice")

	got, err := gw.GenerateText(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
	if primary.textCalls != 1 {
		t.Fatalf("expected 1 call to primary, got %d", primary.textCalls)
	}
}

func TestGateway_FallsBackOnRetryableError(t *testing.T) {
	primary := &fakeProvider{name: "vertex-ai", textErr: apperr.Wrap(apperr.KindProvider, "boom", errors.New("exhausted"))}
	fallback := &fakeProvider{name: "openai", textResp: "fallback answer"}
	gw := NewGateway(primary, []Provider{fallback}, true, "be nice")

	got, err := gw.GenerateText(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fallback answer" {
		t.Fatalf("got %q, want fallback answer", got)
	}
}

func TestGateway_AllProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "vertex-ai", textErr: apperr.Wrap(apperr.KindProvider, "boom", errors.New("exhausted"))}
	fallback := &fakeProvider{name: "openai", textErr: apperr.Wrap(apperr.KindProvider, "also boom", errors.New("exhausted"))}
	gw := NewGateway(primary, []Provider{fallback}, true, "be nice")

	_, err := gw.GenerateText(context.Background(), "", "hi")
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestGateway_FallbackDisabledShortCircuits(t *testing.T) {
	primary := &fakeProvider{name: "vertex-ai", textErr: apperr.Wrap(apperr.KindProvider, "boom", errors.New("exhausted"))}
	fallback := &fakeProvider{name: "openai", textResp: "should not be reached"}
	gw := NewGateway(primary, []Provider{fallback}, false, "be nice")

	_, err := gw.GenerateText(context.Background(), "", "hi")
	if err == nil {
		t.Fatal("expected error with fallback disabled")
	}
}

func TestGateway_NonRetryableErrorSkipsFallback(t *testing.T) {
	primary := &fakeProvider{name: "vertex-ai", textErr: apperr.New(apperr.KindValidation, "bad input")}
	fallback := &fakeProvider{name: "openai", textResp: "should not be reached"}
	gw := NewGateway(primary, []Provider{fallback}, true, "be nice")

	_, err := gw.GenerateText(context.Background(), "", "hi")
	if err == nil {
		t.Fatal("expected the validation error to surface directly")
	}
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected KindValidation, got %v", apperr.KindOf(err))
	}
}

func TestGateway_DefaultSystemMessageIsUsedWhenCallerSuppliesNone(t *testing.T) {
	primary := &fakeProvider{name: "vertex-ai", textResp: "ok"}
	gw := NewGateway(primary, nil, false, "default system prompt")

	if _, err := gw.GenerateText(context.Background(), "", "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.lastSystemPrompt != "default system prompt" {
		t.Fatalf("system prompt = %q, want the gateway default", primary.lastSystemPrompt)
	}
}

func TestGateway_GenerateEmbeddingFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "vertex-ai", embedErr: apperr.Wrap(apperr.KindProvider, "boom", errors.New("exhausted"))}
	fallback := &fakeProvider{name: "openai", embedResp: []float32{0.1, 0.2}}
	gw := NewGateway(primary, []Provider{fallback}, true, "")

	vec, err := gw.GenerateEmbedding(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("expected 2-dim vector, got %d", len(vec))
	}
}

func TestGateway_GenerateEmbeddingsFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "vertex-ai", embedsErr: apperr.Wrap(apperr.KindProvider, "boom", errors.New("exhausted"))}
	fallback := &fakeProvider{name: "openai", embedsResp: [][]float32{{0.1}, {0.2}}}
	gw := NewGateway(primary, []Provider{fallback}, true, "")

	vecs, err := gw.GenerateEmbeddings(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
}

func TestGateway_ActiveProviderName(t *testing.T) {
	primary := &fakeProvider{name: "vertex-ai"}
	gw := NewGateway(primary, nil, false, "")
	if gw.ActiveProviderName() != "vertex-ai" {
		t.Fatalf("got %q, want vertex-ai", gw.ActiveProviderName())
	}
}
