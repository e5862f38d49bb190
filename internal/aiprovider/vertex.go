package aiprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/oauth2/google"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
)

// VertexProvider wraps the Vertex AI Gemini client for text generation and
// the Vertex text-embedding REST API for embeddings. Regional locations use
// the Go SDK; the "global" location has no SDK support and falls back to
// direct REST calls, mirroring the teacher's gcpclient.GenAIAdapter.
type VertexProvider struct {
	project  string
	location string
	model    string

	embeddingModel string

	genaiClient *genai.Client // nil when useREST
	httpClient  *http.Client
	useREST     bool

	retrier     *Retrier
	rateLimiter *EmbeddingRateLimiter
}

// NewVertexProvider creates a VertexProvider. For location "global" it uses
// the REST API directly since the vertexai/genai SDK doesn't support the
// global endpoint.
func NewVertexProvider(ctx context.Context, project, location, model, embeddingModel string, retrier *Retrier, rateLimiter *EmbeddingRateLimiter) (*VertexProvider, error) {
	p := &VertexProvider{
		project:        project,
		location:       location,
		model:          model,
		embeddingModel: embeddingModel,
		retrier:        retrier,
		rateLimiter:    rateLimiter,
	}

	if location == "global" {
		httpClient, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("aiprovider.NewVertexProvider: default credentials: %w", err)
		}
		p.httpClient = httpClient
		p.useREST = true
		return p, nil
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("aiprovider.NewVertexProvider: %w", err)
	}
	p.genaiClient = client

	// The embedding REST call always needs an authorized client even on
	// regional locations, since there is no embedding SDK surface.
	httpClient, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("aiprovider.NewVertexProvider: embedding credentials: %w", err)
	}
	p.httpClient = httpClient
	return p, nil
}

func (p *VertexProvider) Name() string { return "vertex-ai" }

func (p *VertexProvider) Close() {
	if p.genaiClient != nil {
		p.genaiClient.Close()
	}
}

func (p *VertexProvider) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return Do(ctx, p.retrier, "VertexProvider.GenerateText", func() (string, error) {
		if p.useREST {
			return p.generateContentREST(ctx, systemPrompt, userPrompt)
		}
		return p.generateContentSDK(ctx, systemPrompt, userPrompt)
	})
}

func (p *VertexProvider) generateContentSDK(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := p.genaiClient.GenerativeModel(p.model)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", &RetryableError{Cause: fmt.Errorf("aiprovider.generateContentSDK: %w", err)}
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", apperr.New(apperr.KindProvider, "vertex returned an empty response")
	}

	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

type vertexContent struct {
	Role  string       `json:"role"`
	Parts []vertexPart `json:"parts"`
}

type vertexPart struct {
	Text string `json:"text"`
}

type vertexGenerateRequest struct {
	Contents          []vertexContent `json:"contents"`
	SystemInstruction *vertexContent  `json:"systemInstruction,omitempty"`
}

type vertexGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *VertexProvider) generateContentREST(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:generateContent",
		p.project, p.model,
	)

	reqBody := vertexGenerateRequest{
		Contents: []vertexContent{{Role: "user", Parts: []vertexPart{{Text: userPrompt}}}},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &vertexContent{Role: "user", Parts: []vertexPart{{Text: systemPrompt}}}
	}

	respBody, status, err := p.postJSON(ctx, url, reqBody)
	if err != nil {
		return "", err
	}

	var genResp vertexGenerateResponse
	if jsonErr := json.Unmarshal(respBody, &genResp); jsonErr != nil {
		return "", fmt.Errorf("aiprovider.generateContentREST: decode: %w", jsonErr)
	}
	if genResp.Error != nil {
		return "", &RetryableError{StatusCode: status, Cause: fmt.Errorf("vertex API error %d: %s", genResp.Error.Code, genResp.Error.Message)}
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", apperr.New(apperr.KindProvider, "vertex returned an empty response")
	}

	var parts []string
	for _, part := range genResp.Candidates[0].Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	if len(parts) == 0 {
		return "", apperr.New(apperr.KindProvider, "vertex returned no text parts")
	}
	return strings.Join(parts, ""), nil
}

func (p *VertexProvider) postJSON(ctx context.Context, url string, body any) ([]byte, int, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("aiprovider.postJSON: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("aiprovider.postJSON: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, &RetryableError{Cause: fmt.Errorf("aiprovider.postJSON: call: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("aiprovider.postJSON: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, resp.StatusCode, &RetryableError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Cause:      fmt.Errorf("status %d: %s", resp.StatusCode, respBody),
		}
	}
	return respBody, resp.StatusCode, nil
}

type vertexEmbedRequest struct {
	Instances []vertexEmbedInstance `json:"instances"`
}

type vertexEmbedInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type vertexEmbedResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

func (p *VertexProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, apperr.New(apperr.KindProvider, "vertex embedding returned no vectors")
	}
	return vecs[0], nil
}

func (p *VertexProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if p.rateLimiter != nil {
		if err := p.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("aiprovider.GenerateEmbeddings: rate limiter: %w", err)
		}
	}

	return Do(ctx, p.retrier, "VertexProvider.GenerateEmbeddings", func() ([][]float32, error) {
		return p.doEmbed(ctx, texts)
	})
}

func (p *VertexProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	instances := make([]vertexEmbedInstance, len(texts))
	for i, t := range texts {
		instances[i] = vertexEmbedInstance{Content: t, TaskType: "RETRIEVAL_DOCUMENT"}
	}

	respBody, _, err := p.postJSON(ctx, p.embeddingEndpoint(), vertexEmbedRequest{Instances: instances})
	if err != nil {
		return nil, err
	}

	var embResp vertexEmbedResponse
	if jsonErr := json.Unmarshal(respBody, &embResp); jsonErr != nil {
		return nil, fmt.Errorf("aiprovider.doEmbed: decode: %w", jsonErr)
	}

	results := make([][]float32, len(embResp.Predictions))
	for i, pr := range embResp.Predictions {
		results[i] = pr.Embeddings.Values
	}
	return results, nil
}

func (p *VertexProvider) embeddingEndpoint() string {
	if p.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			p.project, p.embeddingModel,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		p.location, p.project, p.location, p.embeddingModel,
	)
}
