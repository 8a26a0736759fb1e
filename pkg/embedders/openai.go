package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/meridiandb/meridian/pkg/retry"
)

// OpenAIEmbedder generates embeddings through the OpenAI embeddings
// API. Batch requests are split to honor both the per-request text
// limit and the token budget, and transient failures are retried with
// exponential backoff.
type OpenAIEmbedder struct {
	client    *http.Client
	counter   *TokenCounter
	policy    retry.Policy
	apiKey    string
	baseURL   string
	model     string
	dimension int
	batchSize int
	maxTokens int
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIEmbedder creates an OpenAI-backed embedder.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}

	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	// Token counting refines batching but is not required for
	// correctness; without it batches split by count alone.
	counter, err := NewTokenCounter(cfg.Model)
	if err != nil {
		counter = nil
	}

	return &OpenAIEmbedder{
		client:    &http.Client{Timeout: cfg.timeout()},
		counter:   counter,
		policy:    cfg.Retry,
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		maxTokens: cfg.MaxBatchTokens,
	}, nil
}

func (e *OpenAIEmbedder) Embed(text string) ([]float32, error) {
	vectors, err := e.EmbedBatch([]string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, NewProviderError("openai", e.model, "received empty embedding", nil)
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	return e.EmbedBatchWithContext(context.Background(), texts)
}

// EmbedBatchWithContext embeds texts in input order. Requests are
// split into sub-batches; each sub-batch is retried independently.
func (e *OpenAIEmbedder) EmbedBatchWithContext(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for _, batch := range e.splitBatches(texts) {
		vectors, err := retry.Do(ctx, e.policy, func(ctx context.Context) ([][]float32, error) {
			return e.embedOnce(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		results = append(results, vectors...)
	}
	return results, nil
}

// splitBatches partitions texts so each batch stays within both the
// text-count limit and the token budget. A single text over the token
// budget still goes out alone rather than being dropped.
func (e *OpenAIEmbedder) splitBatches(texts []string) [][]string {
	var batches [][]string
	var current []string
	currentTokens := 0

	for _, text := range texts {
		tokens := 0
		if e.counter != nil {
			tokens = e.counter.Count(text)
		}
		if len(current) > 0 && (len(current) >= e.batchSize || currentTokens+tokens > e.maxTokens) {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, text)
		currentTokens += tokens
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (e *OpenAIEmbedder) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: e.model, Input: batch})
	if err != nil {
		return nil, NewProviderError("openai", e.model, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, NewProviderError("openai", e.model, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError("openai", e.model, "failed to send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError("openai", e.model, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp openAIErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return nil, NewProviderError("openai", e.model,
				fmt.Sprintf("API error: %s (type: %s, code: %s)", errorResp.Error.Message, errorResp.Error.Type, errorResp.Error.Code), nil)
		}
		return nil, NewProviderError("openai", e.model,
			fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var response openAIEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, NewProviderError("openai", e.model, "failed to decode response", err)
	}
	if len(response.Data) != len(batch) {
		return nil, NewProviderError("openai", e.model,
			fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(response.Data)), nil)
	}

	// The API may reorder items; restore input order by index.
	vectors := make([][]float32, len(batch))
	for _, item := range response.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, NewProviderError("openai", e.model,
				fmt.Sprintf("embedding index %d out of range", item.Index), nil)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) GetDimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) GetModelName() string {
	return e.model
}

func (e *OpenAIEmbedder) Close() error {
	return nil
}
