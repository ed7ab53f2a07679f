package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/adapter/cohere"
	"docqa/internal/adapter/gemini"
	"docqa/internal/adapter/memory"
	"docqa/internal/adapter/openai"
	"docqa/internal/adapter/qdrant"
	wstore "docqa/internal/adapter/weaviate"
	"docqa/internal/blob"
	"docqa/internal/config"
)

type statefulPinger struct {
	callCount int
	failUntil int
}

func (p *statefulPinger) Ping(ctx context.Context) error {
	p.callCount++
	if p.callCount <= p.failUntil {
		return errors.New("not ready")
	}
	return nil
}

func TestPingWithRetry(t *testing.T) {
	t.Run("Retries", func(t *testing.T) {
		p := &statefulPinger{failUntil: 2}
		assert.NoError(t, PingWithRetry(context.Background(), p, 5, time.Millisecond))
		assert.Equal(t, 3, p.callCount)
	})

	t.Run("Fail", func(t *testing.T) {
		p := &statefulPinger{failUntil: 10}
		assert.Error(t, PingWithRetry(context.Background(), p, 3, time.Millisecond))
		assert.Equal(t, 3, p.callCount)
	})
}

func TestNewVectorIndex(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		provider string
		check    func(t *testing.T, v interface{})
	}{
		{config.VectorMemory, func(t *testing.T, v interface{}) { assert.IsType(t, &memory.Index{}, v) }},
		{config.VectorQdrant, func(t *testing.T, v interface{}) { assert.IsType(t, &qdrant.Store{}, v) }},
		{config.VectorWeaviate, func(t *testing.T, v interface{}) { assert.IsType(t, &wstore.Store{}, v) }},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := &config.Config{VectorProvider: tt.provider, WeaviateHost: "localhost:8080", WeaviateScheme: "http", QdrantURL: "http://localhost:6333"}
			idx, err := NewVectorIndex(ctx, cfg, nil)
			require.NoError(t, err)
			tt.check(t, idx)
		})
	}

	_, err := NewVectorIndex(ctx, &config.Config{VectorProvider: "faiss"}, nil)
	assert.Error(t, err)

	_, err = NewVectorIndex(ctx, &config.Config{VectorProvider: config.VectorPgvector}, nil)
	assert.Error(t, err)
}

func TestNewBlobStore(t *testing.T) {
	s, err := NewBlobStore(context.Background(), &config.Config{BlobProvider: config.BlobDisk, UploadDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &blob.DiskStore{}, s)

	_, err = NewBlobStore(context.Background(), &config.Config{BlobProvider: "s3"})
	assert.Error(t, err)
}

func TestNewEmbedders(t *testing.T) {
	base := config.Config{EmbeddingDimension: 8, GeminiAPIKey: "k", OpenAIAPIKey: "k", CohereAPIKey: "k"}

	cfg := base
	cfg.EmbeddingProvider = config.ProviderGemini
	e, err := NewEmbedders(&cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &gemini.Embedder{}, e.Documents)
	assert.NotSame(t, e.Documents, e.Queries)

	cfg = base
	cfg.EmbeddingProvider = config.ProviderOpenAI
	e, err = NewEmbedders(&cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, e.Documents)
	assert.Same(t, e.Documents, e.Queries)

	cfg = base
	cfg.EmbeddingProvider = config.ProviderCohere
	e, err = NewEmbedders(&cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &cohere.Client{}, e.Queries)
	assert.NotSame(t, e.Documents, e.Queries)
	assert.Equal(t, 8, e.Queries.Dimension())

	cfg = base
	cfg.EmbeddingProvider = "word2vec"
	_, err = NewEmbedders(&cfg, nil, nil)
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	for _, p := range []string{config.ProviderGemini, config.ProviderOpenAI, config.ProviderCohere} {
		g, err := NewGenerator(&config.Config{GenerationProvider: p}, nil, nil)
		require.NoError(t, err, p)
		assert.NotNil(t, g)
	}
	_, err := NewGenerator(&config.Config{GenerationProvider: "llama"}, nil, nil)
	assert.Error(t, err)
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy(&config.Config{ProviderRetryAttempts: 5, ProviderRetryBaseMS: 50, ProviderTimeoutSeconds: 7})
	assert.Equal(t, 5, p.Attempts)
	assert.Equal(t, 50*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 7*time.Second, p.CallTimeout)

	d := RetryPolicy(&config.Config{})
	assert.Equal(t, 3, d.Attempts)
}
