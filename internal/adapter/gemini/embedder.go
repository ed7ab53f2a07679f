package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docqa/internal/provider"
)

// maxBatch is the BatchEmbedContents request limit.
const maxBatch = 100

type EmbedderConfig struct {
	Model          string
	Dimension      int
	TaskType       genai.TaskType
	BatchSize      int
	Concurrency    int
	MaxInputTokens int
	Policy         provider.RetryPolicy
	Limiter        *provider.Limiter
}

// Embedder embeds for one task type. Documents and queries use separate
// instances (TaskTypeRetrievalDocument and TaskTypeRetrievalQuery).
type Embedder struct {
	clients *clientCache
	cfg     EmbedderConfig
}

func NewEmbedder(keys KeySource, fallbackKey string, cfg EmbedderConfig, opts ...option.ClientOption) *Embedder {
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatch {
		cfg.BatchSize = maxBatch
	}
	return &Embedder{clients: newClientCache(keys, fallbackKey, opts), cfg: cfg}
}

func (e *Embedder) Dimension() int {
	return e.cfg.Dimension
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := provider.CheckInputs(texts, e.cfg.MaxInputTokens); err != nil {
		return nil, err
	}
	return provider.EmbedInBatches(ctx, texts, e.cfg.BatchSize, e.cfg.Concurrency, e.embed)
}

func (e *Embedder) embed(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	err := e.cfg.Policy.Do(ctx, providerName, "embed", func(ctx context.Context) error {
		if err := e.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
		client, err := e.clients.get(ctx)
		if err != nil {
			return err
		}

		model := client.EmbeddingModel(e.cfg.Model)
		model.TaskType = e.cfg.TaskType
		b := model.NewBatch()
		for _, t := range batch {
			b.AddContent(genai.Text(t))
		}

		res, err := model.BatchEmbedContents(ctx, b)
		if err != nil {
			return classify(err)
		}

		out := make([][]float32, len(res.Embeddings))
		for i, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return fmt.Errorf("empty embedding received for item %d", i)
			}
			out[i] = emb.Values
		}
		if err := provider.CheckVectors(out, len(batch), e.cfg.Dimension); err != nil {
			return err
		}
		vectors = out
		return nil
	})
	return vectors, err
}

func (e *Embedder) Close() error {
	return e.clients.Close()
}
