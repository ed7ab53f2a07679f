// Package memory is an in-process vector index used by tests and local runs
// without a vector database.
package memory

import (
	"context"
	"math"
	"sync"

	"docqa/internal/rag"
)

type collection struct {
	dimension int
	records   map[string]rag.VectorRecord
}

type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewIndex() *Index {
	return &Index{collections: make(map[string]*collection)}
}

func (i *Index) EnsureCollection(ctx context.Context, projectID string, dimension int) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if c, ok := i.collections[projectID]; ok {
		if c.dimension != dimension {
			return rag.DimensionMismatch(projectID, c.dimension, dimension)
		}
		return nil
	}
	i.collections[projectID] = &collection{dimension: dimension, records: make(map[string]rag.VectorRecord)}
	return nil
}

func (i *Index) Upsert(ctx context.Context, projectID string, records []rag.VectorRecord) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, ok := i.collections[projectID]
	if !ok {
		return 0, rag.MissingCollection(projectID)
	}
	for _, r := range records {
		if len(r.Vector) != c.dimension {
			return 0, rag.DimensionMismatch(projectID, c.dimension, len(r.Vector))
		}
	}
	for _, r := range records {
		v := make([]float32, len(r.Vector))
		copy(v, r.Vector)
		r.Vector = v
		c.records[r.ID] = r
	}
	return len(records), nil
}

func (i *Index) Search(ctx context.Context, projectID string, vector []float32, topK int, threshold float32) ([]rag.RetrievedChunk, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	c, ok := i.collections[projectID]
	if !ok {
		return nil, rag.MissingCollection(projectID)
	}
	if len(vector) != c.dimension {
		return nil, rag.DimensionMismatch(projectID, c.dimension, len(vector))
	}

	results := make([]rag.RetrievedChunk, 0, len(c.records))
	for id, r := range c.records {
		results = append(results, rag.RetrievedChunk{
			ID:      id,
			Payload: r.Payload,
			Score:   cosine(vector, r.Vector),
		})
	}
	return rag.Rank(results, topK, threshold), nil
}

func (i *Index) CollectionInfo(ctx context.Context, projectID string) (rag.CollectionInfo, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	c, ok := i.collections[projectID]
	if !ok {
		return rag.CollectionInfo{}, rag.MissingCollection(projectID)
	}
	return rag.CollectionInfo{VectorCount: len(c.records), Dimension: c.dimension}, nil
}

func (i *Index) DeleteAssetChunks(ctx context.Context, projectID, assetID string, fromOrdinal int) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, ok := i.collections[projectID]
	if !ok {
		return nil
	}
	for id, r := range c.records {
		if r.Payload.AssetID == assetID && r.Payload.Ordinal >= fromOrdinal {
			delete(c.records, id)
		}
	}
	return nil
}

func (i *Index) DeleteAssetOrdinals(ctx context.Context, projectID, assetID string, ordinals []int) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, ok := i.collections[projectID]
	if !ok {
		return nil
	}
	drop := make(map[int]bool, len(ordinals))
	for _, o := range ordinals {
		drop[o] = true
	}
	for id, r := range c.records {
		if r.Payload.AssetID == assetID && drop[r.Payload.Ordinal] {
			delete(c.records, id)
		}
	}
	return nil
}

func (i *Index) DeleteCollection(ctx context.Context, projectID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.collections, projectID)
	return nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for k := range a {
		dot += float64(a[k]) * float64(b[k])
		na += float64(a[k]) * float64(a[k])
		nb += float64(b[k]) * float64(b[k])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
