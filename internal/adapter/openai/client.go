// Package openai implements embedding and generation over the
// OpenAI-compatible REST API. Any server speaking the same protocol can be
// targeted through BaseURL.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"docqa/internal/provider"
)

const (
	providerName   = "openai"
	defaultBaseURL = "https://api.openai.com/v1"
	// maxBatch is the embeddings endpoint input array limit.
	maxBatch = 2048
)

type Config struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Dimension      int
	BatchSize      int
	Concurrency    int
	MaxInputTokens int
	Temperature    float32
	Policy         provider.RetryPolicy
	Limiter        *provider.Limiter
}

// Client serves both provider.Embedder and provider.Generator.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatch {
		cfg.BatchSize = 128
	}
	// Per-attempt deadlines come from the retry policy.
	return &Client{cfg: cfg, http: &http.Client{}}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := provider.CheckInputs(texts, c.cfg.MaxInputTokens); err != nil {
		return nil, err
	}
	return provider.EmbedInBatches(ctx, texts, c.cfg.BatchSize, c.cfg.Concurrency, c.embed)
}

func (c *Client) embed(ctx context.Context, batch []string) ([][]float32, error) {
	req := embeddingRequest{Model: c.cfg.EmbeddingModel, Input: batch}
	if strings.HasPrefix(c.cfg.EmbeddingModel, "text-embedding-3") {
		req.Dimensions = c.cfg.Dimension
	}

	var vectors [][]float32
	err := c.cfg.Policy.Do(ctx, providerName, "embed", func(ctx context.Context) error {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
		var resp embeddingResponse
		if err := provider.PostJSON(ctx, c.http, c.cfg.BaseURL+"/embeddings", c.headers(), req, &resp); err != nil {
			return err
		}

		// The API may return items out of order; index is authoritative.
		sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		out := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			if d.Index != i {
				return fmt.Errorf("embedding response is missing index %d", i)
			}
			out[i] = d.Embedding
		}
		if err := provider.CheckVectors(out, len(batch), c.cfg.Dimension); err != nil {
			return err
		}
		vectors = out
		return nil
	})
	return vectors, err
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Generate(ctx context.Context, prompt provider.Prompt, maxTokens int) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt.User})

	req := chatRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
	}

	var out string
	err := c.cfg.Policy.Do(ctx, providerName, "generate", func(ctx context.Context) error {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
		var resp chatResponse
		if err := provider.PostJSON(ctx, c.http, c.cfg.BaseURL+"/chat/completions", c.headers(), req, &resp); err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	return out, err
}
