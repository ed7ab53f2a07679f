package app

import (
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"

	"docqa/internal/adapter/cohere"
	"docqa/internal/adapter/gemini"
	"docqa/internal/adapter/openai"
	"docqa/internal/config"
	"docqa/internal/provider"
)

func RetryPolicy(cfg *config.Config) provider.RetryPolicy {
	p := provider.DefaultRetryPolicy()
	if cfg.ProviderRetryAttempts > 0 {
		p.Attempts = cfg.ProviderRetryAttempts
	}
	if cfg.ProviderRetryBaseMS > 0 {
		p.BaseDelay = time.Duration(cfg.ProviderRetryBaseMS) * time.Millisecond
	}
	if cfg.ProviderTimeoutSeconds > 0 {
		p.CallTimeout = time.Duration(cfg.ProviderTimeoutSeconds) * time.Second
	}
	return p
}

// Embedders holds one embedder for indexing documents and one for queries.
// Providers that distinguish the two sides get differently configured
// instances; the others share one.
type Embedders struct {
	Documents provider.Embedder
	Queries   provider.Embedder
}

// NewEmbedders builds the configured embedding provider. keys supplies a
// Gemini key edited at runtime through settings.
func NewEmbedders(cfg *config.Config, keys gemini.KeySource, limiter *provider.Limiter) (Embedders, error) {
	policy := RetryPolicy(cfg)
	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		base := gemini.EmbedderConfig{
			Model:          cfg.EmbeddingModel,
			Dimension:      cfg.EmbeddingDimension,
			BatchSize:      cfg.EmbedBatchSize,
			Concurrency:    cfg.EmbedConcurrency,
			MaxInputTokens: cfg.MaxInputTokens,
			Policy:         policy,
			Limiter:        limiter,
		}
		docs, queries := base, base
		docs.TaskType = genai.TaskTypeRetrievalDocument
		queries.TaskType = genai.TaskTypeRetrievalQuery
		return Embedders{
			Documents: gemini.NewEmbedder(keys, cfg.GeminiAPIKey, docs),
			Queries:   gemini.NewEmbedder(keys, cfg.GeminiAPIKey, queries),
		}, nil
	case config.ProviderOpenAI:
		c := openai.NewClient(openAIConfig(cfg, policy, limiter))
		return Embedders{Documents: c, Queries: c}, nil
	case config.ProviderCohere:
		docs, queries := cohereConfig(cfg, policy, limiter), cohereConfig(cfg, policy, limiter)
		docs.InputType = cohere.InputSearchDocument
		queries.InputType = cohere.InputSearchQuery
		return Embedders{Documents: cohere.NewClient(docs), Queries: cohere.NewClient(queries)}, nil
	default:
		return Embedders{}, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func NewGenerator(cfg *config.Config, keys gemini.KeySource, limiter *provider.Limiter) (provider.Generator, error) {
	policy := RetryPolicy(cfg)
	switch cfg.GenerationProvider {
	case config.ProviderGemini:
		return gemini.NewGenerator(keys, cfg.GeminiAPIKey, gemini.GeneratorConfig{
			Model:   cfg.GenerationModel,
			Policy:  policy,
			Limiter: limiter,
		}), nil
	case config.ProviderOpenAI:
		return openai.NewClient(openAIConfig(cfg, policy, limiter)), nil
	case config.ProviderCohere:
		return cohere.NewClient(cohereConfig(cfg, policy, limiter)), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
	}
}

func openAIConfig(cfg *config.Config, policy provider.RetryPolicy, limiter *provider.Limiter) openai.Config {
	c := openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		ChatModel:      cfg.GenerationModel,
		Dimension:      cfg.EmbeddingDimension,
		BatchSize:      cfg.EmbedBatchSize,
		Concurrency:    cfg.EmbedConcurrency,
		MaxInputTokens: cfg.MaxInputTokens,
		Policy:         policy,
		Limiter:        limiter,
	}
	if cfg.EmbeddingProvider == config.ProviderOpenAI {
		c.EmbeddingModel = cfg.EmbeddingModel
	}
	return c
}

func cohereConfig(cfg *config.Config, policy provider.RetryPolicy, limiter *provider.Limiter) cohere.Config {
	c := cohere.Config{
		APIKey:         cfg.CohereAPIKey,
		BaseURL:        cfg.CohereBaseURL,
		ChatModel:      cfg.GenerationModel,
		Dimension:      cfg.EmbeddingDimension,
		BatchSize:      cfg.EmbedBatchSize,
		Concurrency:    cfg.EmbedConcurrency,
		MaxInputTokens: cfg.MaxInputTokens,
		Policy:         policy,
		Limiter:        limiter,
	}
	if cfg.EmbeddingProvider == config.ProviderCohere {
		c.EmbeddingModel = cfg.EmbeddingModel
	}
	return c
}
