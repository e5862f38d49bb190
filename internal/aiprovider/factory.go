package aiprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/connexus-ai/smartrag-orchestrator/internal/config"
)

// defaultSystemMessage is prepended by the gateway when a caller supplies
// no system prompt of its own (C1's "system-message policy").
const defaultSystemMessage = "You are a helpful assistant that answers questions using the information provided to you."

// NewGatewayFromConfig resolves the active (Vertex AI) provider and, when
// ENABLE_FALLBACK_PROVIDERS is set and an OpenAI key is configured, an
// OpenAI fallback, wiring both to the shared retry policy and an
// embedding rate limiter built from Config.
func NewGatewayFromConfig(ctx context.Context, cfg *config.Config) (*Gateway, func(), error) {
	retrier := NewRetrier(cfg)
	rateLimiter := NewEmbeddingRateLimiter(time.Duration(cfg.EmbeddingMinIntervalMs) * time.Millisecond)

	primary, err := NewVertexProvider(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel, cfg.EmbeddingModel, retrier, rateLimiter)
	if err != nil {
		return nil, func() {}, fmt.Errorf("aiprovider.NewGatewayFromConfig: %w", err)
	}

	var fallbacks []Provider
	if cfg.EnableFallbackProviders && cfg.OpenAIAPIKey != "" {
		// A fallback is attempted exactly once: it gets a single-attempt
		// retrier so it never retries inside the gateway's fallback pass.
		fbRetrier := &Retrier{MaxAttempts: 1, BaseDelay: retrier.BaseDelay, Policy: retrier.Policy}
		fb, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIModel, fbRetrier, rateLimiter)
		if err != nil {
			primary.Close()
			return nil, func() {}, fmt.Errorf("aiprovider.NewGatewayFromConfig: fallback: %w", err)
		}
		fallbacks = append(fallbacks, fb)
	}

	gw := NewGateway(primary, fallbacks, cfg.EnableFallbackProviders, defaultSystemMessage)
	cleanup := func() { primary.Close() }
	return gw, cleanup, nil
}
