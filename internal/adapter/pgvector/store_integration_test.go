package pgvector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/adapter/pgvector"
	"docqa/internal/provider"
	"docqa/internal/rag"
	"docqa/internal/testutils"
)

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	store, err := pgvector.NewStore(ctx, s.DB, provider.DefaultRetryPolicy())
	require.NoError(t, err)

	_, err = store.CollectionInfo(ctx, "p1")
	assert.ErrorIs(t, err, rag.ErrIndexing)

	require.NoError(t, store.EnsureCollection(ctx, "p1", 2))
	require.NoError(t, store.EnsureCollection(ctx, "p1", 2))
	assert.ErrorIs(t, store.EnsureCollection(ctx, "p1", 3), rag.ErrConfiguration)

	records := []rag.VectorRecord{
		{ID: rag.ChunkID("a", 0), Vector: []float32{1, 0}, Payload: rag.Payload{Content: "first", AssetID: "a", ProjectID: "p1", Ordinal: 0}},
		{ID: rag.ChunkID("a", 1), Vector: []float32{0.6, 0.8}, Payload: rag.Payload{Content: "second", AssetID: "a", ProjectID: "p1", Ordinal: 1}},
		{ID: rag.ChunkID("b", 0), Vector: []float32{0, 1}, Payload: rag.Payload{Content: "other", AssetID: "b", ProjectID: "p1", Ordinal: 0}},
	}
	n, err := store.Upsert(ctx, "p1", records)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Upserting again replaces rows
	_, err = store.Upsert(ctx, "p1", records)
	require.NoError(t, err)

	info, err := store.CollectionInfo(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, rag.CollectionInfo{VectorCount: 3, Dimension: 2}, info)

	res, err := store.Search(ctx, "p1", []float32{1, 0}, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, rag.ChunkID("a", 0), res[0].ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-4)
	assert.Equal(t, rag.ChunkID("a", 1), res[1].ID)
	assert.InDelta(t, 0.6, res[1].Score, 1e-4)
	assert.Equal(t, "second", res[1].Content)

	require.NoError(t, store.DeleteAssetChunks(ctx, "p1", "a", 1))
	info, err = store.CollectionInfo(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, info.VectorCount)

	require.NoError(t, store.DeleteCollection(ctx, "p1"))
	_, err = store.Search(ctx, "p1", []float32{1, 0}, 2, 0)
	assert.ErrorIs(t, err, rag.ErrIndexing)
}
