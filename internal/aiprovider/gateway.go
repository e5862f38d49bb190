package aiprovider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
)

// Gateway is the process-wide façade over the configured provider: it
// resolves the active provider and, when enabled, fans out to fallback
// providers exactly once each after the primary's own retries are exhausted.
type Gateway struct {
	primary          Provider
	fallbacks        []Provider
	enableFallback   bool
	defaultSystemMsg string
}

// NewGateway builds a Gateway around an already-constructed primary and an
// ordered list of fallbacks. Fallback fan-out only happens if enableFallback
// is true.
func NewGateway(primary Provider, fallbacks []Provider, enableFallback bool, defaultSystemMsg string) *Gateway {
	return &Gateway{
		primary:          primary,
		fallbacks:        fallbacks,
		enableFallback:   enableFallback,
		defaultSystemMsg: defaultSystemMsg,
	}
}

// ActiveProviderName reports the primary provider's name, embedded in
// RagResponse.Config.AIProvider.
func (g *Gateway) ActiveProviderName() string {
	return g.primary.Name()
}

// GenerateText prepends the gateway's default system message when the
// caller supplies none, then tries the primary and, on failure, each
// fallback exactly once (no nested retries inside the fallback attempt —
// NewGatewayFromConfig builds each fallback with a single-attempt retrier).
func (g *Gateway) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = g.defaultSystemMsg
	}

	text, err := g.primary.GenerateText(ctx, systemPrompt, userPrompt)
	if err == nil {
		return text, nil
	}
	if !g.enableFallback || !apperr.Retryable(err) {
		return "", err
	}

	for _, fb := range g.fallbacks {
		slog.Warn("aiprovider: falling back", "provider", fb.Name(), "primary_error", err.Error())
		text, fbErr := fb.GenerateText(ctx, systemPrompt, userPrompt)
		if fbErr == nil {
			return text, nil
		}
		err = fbErr
	}
	return "", fmt.Errorf("aiprovider.Gateway.GenerateText: all providers exhausted: %w", err)
}

func (g *Gateway) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.primary.GenerateEmbedding(ctx, text)
	if err == nil {
		return vec, nil
	}
	if !g.enableFallback || !apperr.Retryable(err) {
		return nil, err
	}
	for _, fb := range g.fallbacks {
		vec, fbErr := fb.GenerateEmbedding(ctx, text)
		if fbErr == nil {
			return vec, nil
		}
		err = fbErr
	}
	return nil, fmt.Errorf("aiprovider.Gateway.GenerateEmbedding: all providers exhausted: %w", err)
}

func (g *Gateway) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := g.primary.GenerateEmbeddings(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	if !g.enableFallback || !apperr.Retryable(err) {
		return nil, err
	}
	for _, fb := range g.fallbacks {
		vecs, fbErr := fb.GenerateEmbeddings(ctx, texts)
		if fbErr == nil {
			return vecs, nil
		}
		err = fbErr
	}
	return nil, fmt.Errorf("aiprovider.Gateway.GenerateEmbeddings: all providers exhausted: %w", err)
}
