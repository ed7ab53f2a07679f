// Package mcp exposes project search and answering as MCP tools over
// streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"docqa/features/asset"
	"docqa/internal/rag"
	"docqa/internal/retrieval"
)

const Version = "1.0.0"

type Retriever interface {
	Search(ctx context.Context, projectID, question string, opts *retrieval.SearchOptions) ([]rag.RetrievedChunk, error)
	Answer(ctx context.Context, projectID, question string, opts *retrieval.AnswerOptions) (*rag.Answer, error)
}

type AssetLister interface {
	List(ctx context.Context, projectID string) ([]asset.Asset, error)
}

type Handler struct {
	retriever Retriever
	assets    AssetLister
	server    *mcp.Server
	http      http.Handler
}

func NewHandler(r Retriever, a AssetLister) *Handler {
	h := &Handler{
		retriever: r,
		assets:    a,
		server:    mcp.NewServer(&mcp.Implementation{Name: "docqa-mcp", Version: Version}, nil),
	}
	h.registerTools()
	h.http = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return h.server }, nil)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.http.ServeHTTP(w, r)
}

type SearchInput struct {
	ProjectID      string   `json:"project_id" jsonschema:"the project whose documents are searched"`
	Query          string   `json:"query" jsonschema:"the question or phrase to search for"`
	Limit          *int     `json:"limit,omitempty" jsonschema:"maximum number of chunks to return"`
	ScoreThreshold *float32 `json:"score_threshold,omitempty" jsonschema:"minimum cosine similarity between -1 and 1"`
}

type ChunkOutput struct {
	ChunkID string  `json:"chunk_id"`
	AssetID string  `json:"asset_id"`
	Ordinal int     `json:"ordinal"`
	Score   float32 `json:"score"`
	Text    string  `json:"text"`
}

type SearchOutput struct {
	Results []ChunkOutput `json:"results"`
	Count   int           `json:"count"`
}

type AnswerInput struct {
	ProjectID        string   `json:"project_id" jsonschema:"the project whose documents answer the question"`
	Query            string   `json:"query" jsonschema:"the question to answer"`
	Limit            *int     `json:"limit,omitempty" jsonschema:"maximum number of chunks to consider"`
	ScoreThreshold   *float32 `json:"score_threshold,omitempty" jsonschema:"minimum cosine similarity between -1 and 1"`
	MaxContextTokens *int     `json:"max_context_tokens,omitempty" jsonschema:"token budget for the context packed into the prompt"`
}

type AnswerOutput struct {
	Answer    string        `json:"answer"`
	Citations []ChunkOutput `json:"citations"`
}

type ListAssetsInput struct {
	ProjectID string `json:"project_id" jsonschema:"the project to list"`
}

type AssetOutput struct {
	AssetID string `json:"asset_id"`
	Name    string `json:"name"`
	Length  int    `json:"length"`
}

type ListAssetsOutput struct {
	Assets []AssetOutput `json:"assets"`
}

func (h *Handler) registerTools() {
	mcp.AddTool(h.server, &mcp.Tool{
		Name: "docqa_search",
		Description: `Retrieval tool. Returns the chunks of a project's documents most similar to the query, best first.

Use this to look up passages and quote them. Each result carries the asset and ordinal it came from.

USAGE EXAMPLE:
docqa_search(project_id="handbook", query="parental leave policy", limit=5)`,
	}, h.handleSearch)

	mcp.AddTool(h.server, &mcp.Tool{
		Name: "docqa_answer",
		Description: `Question answering tool. Retrieves the relevant chunks of a project and generates an answer grounded in them, with the chunks used as citations.

If nothing relevant is indexed the answer says so instead of guessing.

USAGE EXAMPLE:
docqa_answer(project_id="handbook", query="How many days of parental leave do I get?")`,
	}, h.handleAnswer)

	mcp.AddTool(h.server, &mcp.Tool{
		Name: "docqa_list_assets",
		Description: `Discovery tool. Lists the documents uploaded to a project.

USAGE EXAMPLE:
docqa_list_assets(project_id="handbook")`,
	}, h.handleListAssets)
}

func chunkOutputs(chunks []rag.RetrievedChunk) []ChunkOutput {
	out := make([]ChunkOutput, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkOutput{ChunkID: c.ID, AssetID: c.AssetID, Ordinal: c.Ordinal, Score: c.Score, Text: c.Content}
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// toolError keeps provider and internal failure details out of tool output.
func toolError(ctx context.Context, tool string, err error) error {
	slog.ErrorContext(ctx, "tool execution failed", "tool", tool, "error", err)
	switch {
	case errors.Is(err, rag.ErrValidation), errors.Is(err, rag.ErrNotFound):
		return err
	case errors.Is(err, rag.ErrProvider):
		return errors.New("an upstream provider is unavailable, try again later")
	default:
		return errors.New("internal error")
	}
}

func (h *Handler) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	results, err := h.retriever.Search(ctx, in.ProjectID, in.Query, &retrieval.SearchOptions{TopK: in.Limit, ScoreThreshold: in.ScoreThreshold})
	if err != nil {
		return nil, SearchOutput{}, toolError(ctx, "docqa_search", err)
	}

	var sb strings.Builder
	if len(results) == 0 {
		sb.WriteString("No results found.")
	}
	for i, r := range results {
		fmt.Fprintf(&sb, "Result %d (Score: %.2f):\nAsset: %s #%d\nContent:\n%s\n\n---\n", i+1, r.Score, r.AssetID, r.Ordinal, r.Content)
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", "docqa_search", "result_count", len(results))
	return textResult(sb.String()), SearchOutput{Results: chunkOutputs(results), Count: len(results)}, nil
}

func (h *Handler) handleAnswer(ctx context.Context, _ *mcp.CallToolRequest, in AnswerInput) (*mcp.CallToolResult, AnswerOutput, error) {
	opts := &retrieval.AnswerOptions{
		SearchOptions:    retrieval.SearchOptions{TopK: in.Limit, ScoreThreshold: in.ScoreThreshold},
		MaxContextTokens: in.MaxContextTokens,
	}
	answer, err := h.retriever.Answer(ctx, in.ProjectID, in.Query, opts)
	if err != nil {
		return nil, AnswerOutput{}, toolError(ctx, "docqa_answer", err)
	}

	var sb strings.Builder
	sb.WriteString(answer.Text)
	if len(answer.Citations) > 0 {
		sb.WriteString("\n\nSources:\n")
		for _, c := range answer.Citations {
			fmt.Fprintf(&sb, "- %s #%d (Score: %.2f)\n", c.AssetID, c.Ordinal, c.Score)
		}
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", "docqa_answer", "citations", len(answer.Citations))
	return textResult(sb.String()), AnswerOutput{Answer: answer.Text, Citations: chunkOutputs(answer.Citations)}, nil
}

func (h *Handler) handleListAssets(ctx context.Context, _ *mcp.CallToolRequest, in ListAssetsInput) (*mcp.CallToolResult, ListAssetsOutput, error) {
	assets, err := h.assets.List(ctx, in.ProjectID)
	if err != nil {
		return nil, ListAssetsOutput{}, toolError(ctx, "docqa_list_assets", err)
	}

	out := ListAssetsOutput{Assets: make([]AssetOutput, len(assets))}
	var sb strings.Builder
	if len(assets) == 0 {
		sb.WriteString("No assets found.")
	}
	for i, a := range assets {
		out.Assets[i] = AssetOutput{AssetID: a.ID, Name: a.Name, Length: a.Length}
		fmt.Fprintf(&sb, "%s\t%s\t%d chars\n", a.ID, a.Name, a.Length)
	}
	return textResult(sb.String()), out, nil
}
