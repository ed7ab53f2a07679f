// Package provider holds the capability interfaces the pipeline is written
// against, plus the call policy (retry, batching, limits) shared by every
// backend adapter.
package provider

import (
	"context"

	"docqa/internal/rag"
)

// Embedder turns texts into fixed-dimension vectors. The returned slice has
// the same length and order as texts, or the call fails as a whole. A text
// exceeding the backend input limit fails with a *rag.ItemError wrapping
// rag.ErrValidation.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Prompt is a generation request. System carries the standing instructions
// and goes out as the backend's system role, User the per-request content.
type Prompt struct {
	System string
	User   string
}

// Generator turns a prompt into a completion.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, maxTokens int) (string, error)
}

// VectorIndex stores vectors per project collection and serves similarity search.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, projectID string, dimension int) error
	Upsert(ctx context.Context, projectID string, records []rag.VectorRecord) (int, error)
	Search(ctx context.Context, projectID string, vector []float32, topK int, threshold float32) ([]rag.RetrievedChunk, error)
	CollectionInfo(ctx context.Context, projectID string) (rag.CollectionInfo, error)
	// DeleteAssetChunks removes the asset's vectors with ordinal >= fromOrdinal.
	DeleteAssetChunks(ctx context.Context, projectID, assetID string, fromOrdinal int) error
	// DeleteAssetOrdinals removes the asset's vectors at exactly the given ordinals.
	DeleteAssetOrdinals(ctx context.Context, projectID, assetID string, ordinals []int) error
	DeleteCollection(ctx context.Context, projectID string) error
}
