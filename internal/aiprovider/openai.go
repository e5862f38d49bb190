package aiprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
)

// OpenAIProvider is the fallback AI provider: a thin wrapper over
// openai-go/v3, exercised when EnableFallbackProviders is set and the
// Vertex primary exhausts its retries. Grounded on Tangerg-lynx's direct
// client-per-provider shape rather than the teacher (which has none).
type OpenAIProvider struct {
	client         openai.Client
	chatModel      string
	embeddingModel string
	retrier        *Retrier
	rateLimiter    *EmbeddingRateLimiter
}

func NewOpenAIProvider(apiKey, chatModel, embeddingModel string, retrier *Retrier, rateLimiter *EmbeddingRateLimiter) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("aiprovider.NewOpenAIProvider: apiKey is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client:         client,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		retrier:        retrier,
		rateLimiter:    rateLimiter,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return Do(ctx, p.retrier, "OpenAIProvider.GenerateText", func() (string, error) {
		messages := []openai.ChatCompletionMessageParamUnion{}
		if systemPrompt != "" {
			messages = append(messages, openai.SystemMessage(systemPrompt))
		}
		messages = append(messages, openai.UserMessage(userPrompt))

		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    p.chatModel,
			Messages: messages,
		})
		if err != nil {
			return "", wrapOpenAIError("GenerateText", err)
		}
		if len(resp.Choices) == 0 {
			return "", apperr.New(apperr.KindProvider, "openai returned an empty response")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, apperr.New(apperr.KindProvider, "openai embedding returned no vectors")
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if p.rateLimiter != nil {
		if err := p.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("aiprovider.OpenAIProvider.GenerateEmbeddings: rate limiter: %w", err)
		}
	}

	return Do(ctx, p.retrier, "OpenAIProvider.GenerateEmbeddings", func() ([][]float32, error) {
		resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: p.embeddingModel,
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		})
		if err != nil {
			return nil, wrapOpenAIError("GenerateEmbeddings", err)
		}

		results := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for j, v := range d.Embedding {
				vec[j] = float32(v)
			}
			results[i] = vec
		}
		return results, nil
	})
}

func wrapOpenAIError(operation string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &RetryableError{
			StatusCode: apiErr.StatusCode,
			RetryAfter: ParseRetryAfter(apiErr.Response.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("aiprovider.OpenAIProvider.%s: %w", operation, err),
		}
	}
	return &RetryableError{StatusCode: http.StatusInternalServerError, Cause: fmt.Errorf("aiprovider.OpenAIProvider.%s: %w", operation, err)}
}
