// Package cohere implements embedding and generation over the Cohere REST API.
package cohere

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"docqa/internal/provider"
)

const (
	providerName   = "cohere"
	defaultBaseURL = "https://api.cohere.ai"
	// maxBatch is the embed endpoint texts limit.
	maxBatch = 96
)

// Input types tell the embed model which side of retrieval a text is on.
const (
	InputSearchDocument = "search_document"
	InputSearchQuery    = "search_query"
)

type Config struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	InputType      string
	Dimension      int
	BatchSize      int
	Concurrency    int
	MaxInputTokens int
	Temperature    float32
	Policy         provider.RetryPolicy
	Limiter        *provider.Limiter
}

type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "embed-multilingual-v3.0"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "command-r"
	}
	if cfg.InputType == "" {
		cfg.InputType = InputSearchDocument
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatch {
		cfg.BatchSize = maxBatch
	}
	return &Client{cfg: cfg, client: &http.Client{}}
}

// SetBaseURL points the client at another host, mostly for tests.
func (c *Client) SetBaseURL(url string) {
	c.cfg.BaseURL = strings.TrimRight(url, "/")
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := provider.CheckInputs(texts, c.cfg.MaxInputTokens); err != nil {
		return nil, err
	}
	return provider.EmbedInBatches(ctx, texts, c.cfg.BatchSize, c.cfg.Concurrency, c.embed)
}

func (c *Client) embed(ctx context.Context, batch []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model":           c.cfg.EmbeddingModel,
		"texts":           batch,
		"input_type":      c.cfg.InputType,
		"embedding_types": []string{"float"},
		"truncate":        "NONE",
	}

	var vectors [][]float32
	err := c.cfg.Policy.Do(ctx, providerName, "embed", func(ctx context.Context) error {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
		var result struct {
			Embeddings struct {
				Float [][]float32 `json:"float"`
			} `json:"embeddings"`
		}
		if err := provider.PostJSON(ctx, c.client, c.cfg.BaseURL+"/v1/embed", c.headers(), reqBody, &result); err != nil {
			return err
		}
		if err := provider.CheckVectors(result.Embeddings.Float, len(batch), c.cfg.Dimension); err != nil {
			return err
		}
		vectors = result.Embeddings.Float
		return nil
	})
	return vectors, err
}

func (c *Client) Generate(ctx context.Context, prompt provider.Prompt, maxTokens int) (string, error) {
	reqBody := map[string]interface{}{
		"model":       c.cfg.ChatModel,
		"message":     prompt.User,
		"temperature": c.cfg.Temperature,
	}
	if prompt.System != "" {
		reqBody["preamble"] = prompt.System
	}
	if maxTokens > 0 {
		reqBody["max_tokens"] = maxTokens
	}

	var out string
	err := c.cfg.Policy.Do(ctx, providerName, "generate", func(ctx context.Context) error {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
		var result struct {
			Text string `json:"text"`
		}
		if err := provider.PostJSON(ctx, c.client, c.cfg.BaseURL+"/v1/chat", c.headers(), reqBody, &result); err != nil {
			return err
		}
		if result.Text == "" {
			return fmt.Errorf("empty chat response")
		}
		out = result.Text
		return nil
	})
	return out, err
}
