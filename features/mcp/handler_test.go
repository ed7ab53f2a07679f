package mcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docqa/features/asset"
	"docqa/internal/rag"
	"docqa/internal/retrieval"
)

func chunk(id string, score float32) rag.RetrievedChunk {
	return rag.RetrievedChunk{
		ID:      id,
		Payload: rag.Payload{Content: "content " + id, AssetID: "a1", ProjectID: "proj1", Ordinal: 2},
		Score:   score,
	}
}

func TestHandleSearch(t *testing.T) {
	ctx := context.Background()
	limit := 3

	t.Run("Returns Results", func(t *testing.T) {
		r := new(MockRetriever)
		h := NewHandler(r, new(MockAssetLister))
		r.On("Search", mock.Anything, "proj1", "leave policy", &retrieval.SearchOptions{TopK: &limit}).
			Return([]rag.RetrievedChunk{chunk("c1", 0.91), chunk("c2", 0.5)}, nil)

		res, out, err := h.handleSearch(ctx, nil, SearchInput{ProjectID: "proj1", Query: "leave policy", Limit: &limit})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Count)
		assert.Equal(t, "c1", out.Results[0].ChunkID)
		assert.Equal(t, "content c1", out.Results[0].Text)
		assert.Equal(t, 2, out.Results[0].Ordinal)

		text := res.Content[0].(*mcp.TextContent).Text
		assert.Contains(t, text, "Result 1 (Score: 0.91)")
	})

	t.Run("No Results", func(t *testing.T) {
		r := new(MockRetriever)
		h := NewHandler(r, new(MockAssetLister))
		r.On("Search", mock.Anything, "proj1", "q", mock.Anything).Return([]rag.RetrievedChunk{}, nil)

		res, out, err := h.handleSearch(ctx, nil, SearchInput{ProjectID: "proj1", Query: "q"})
		require.NoError(t, err)
		assert.Zero(t, out.Count)
		assert.Equal(t, "No results found.", res.Content[0].(*mcp.TextContent).Text)
	})

	t.Run("Provider Detail Hidden", func(t *testing.T) {
		r := new(MockRetriever)
		h := NewHandler(r, new(MockAssetLister))
		r.On("Search", mock.Anything, "proj1", "q", mock.Anything).
			Return(nil, &rag.ProviderError{Provider: "gemini", Op: "embed", Err: errors.New("secret key rejected")})

		_, _, err := h.handleSearch(ctx, nil, SearchInput{ProjectID: "proj1", Query: "q"})
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "secret")
	})

	t.Run("Validation Passed Through", func(t *testing.T) {
		r := new(MockRetriever)
		h := NewHandler(r, new(MockAssetLister))
		r.On("Search", mock.Anything, "", "q", mock.Anything).Return(nil, rag.NewFieldError("project_id", "is required"))

		_, _, err := h.handleSearch(ctx, nil, SearchInput{Query: "q"})
		assert.ErrorIs(t, err, rag.ErrValidation)
	})
}

func TestHandleAnswer(t *testing.T) {
	r := new(MockRetriever)
	h := NewHandler(r, new(MockAssetLister))
	budget := 100

	r.On("Answer", mock.Anything, "proj1", "why?", mock.MatchedBy(func(o *retrieval.AnswerOptions) bool {
		return o.MaxContextTokens != nil && *o.MaxContextTokens == 100
	})).Return(&rag.Answer{Text: "Because.", Question: "why?", Citations: []rag.RetrievedChunk{chunk("c1", 0.8)}}, nil)

	res, out, err := h.handleAnswer(context.Background(), nil, AnswerInput{
		ProjectID:        "proj1",
		Query:            "why?",
		MaxContextTokens: &budget,
	})
	require.NoError(t, err)
	assert.Equal(t, "Because.", out.Answer)
	require.Len(t, out.Citations, 1)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "Sources:")
}

func TestHandleListAssets(t *testing.T) {
	lister := new(MockAssetLister)
	h := NewHandler(new(MockRetriever), lister)
	lister.On("List", mock.Anything, "proj1").Return([]asset.Asset{{ID: "a1", Name: "doc.txt", Length: 42}}, nil)

	_, out, err := h.handleListAssets(context.Background(), nil, ListAssetsInput{ProjectID: "proj1"})
	require.NoError(t, err)
	assert.Equal(t, []AssetOutput{{AssetID: "a1", Name: "doc.txt", Length: 42}}, out.Assets)
}

func TestServeHTTP_ToolsOverStreamableHTTP(t *testing.T) {
	r := new(MockRetriever)
	h := NewHandler(r, new(MockAssetLister))
	r.On("Search", mock.Anything, "proj1", "hello", mock.Anything).Return([]rag.RetrievedChunk{chunk("c1", 0.7)}, nil)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx := context.Background()
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: srv.URL, HTTPClient: http.DefaultClient}, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, len(tools.Tools))
	for i, tool := range tools.Tools {
		names[i] = tool.Name
	}
	assert.ElementsMatch(t, []string{"docqa_search", "docqa_answer", "docqa_list_assets"}, names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "docqa_search",
		Arguments: map[string]any{"project_id": "proj1", "query": "hello"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "content c1")
}
