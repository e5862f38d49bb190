// Package aiprovider is the uniform façade over chat-completion and
// embedding providers named C1 in the orchestrator design. Concrete
// providers (Vertex AI, OpenAI-compatible) implement Provider; Gateway
// resolves the active provider plus any configured fallbacks and applies
// the shared retry policy around every call.
package aiprovider

import "context"

// Provider is the uniform interface every AI backend implements: generate
// text, generate one embedding, generate a batch of embeddings.
type Provider interface {
	// Name identifies the provider in RagResponse.Config.AIProvider.
	Name() string

	// GenerateText produces an answer string from a system prompt plus
	// user/context prompt.
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// GenerateEmbedding embeds a single string.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateEmbeddings embeds a batch of strings in one call.
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}
