// Package query serves search and answer requests for a project.
package query

import (
	"context"
	"net/http"

	"docqa/internal/middleware"
	"docqa/internal/rag"
	"docqa/internal/retrieval"
)

type Retriever interface {
	Search(ctx context.Context, projectID, question string, opts *retrieval.SearchOptions) ([]rag.RetrievedChunk, error)
	Answer(ctx context.Context, projectID, question string, opts *retrieval.AnswerOptions) (*rag.Answer, error)
}

type Handler struct {
	retriever Retriever
}

func NewHandler(r Retriever) *Handler {
	return &Handler{retriever: r}
}

type request struct {
	Text             string   `json:"text"`
	Limit            *int     `json:"limit"`
	ScoreThreshold   *float32 `json:"score_threshold"`
	MaxContextTokens *int     `json:"max_context_tokens"`
}

type SearchResult struct {
	Text    string  `json:"text"`
	Score   float32 `json:"score"`
	AssetID string  `json:"asset_id"`
	Ordinal int     `json:"ordinal"`
	ChunkID string  `json:"chunk_id"`
}

func toResults(chunks []rag.RetrievedChunk) []SearchResult {
	out := make([]SearchResult, len(chunks))
	for i, c := range chunks {
		out[i] = SearchResult{Text: c.Content, Score: c.Score, AssetID: c.AssetID, Ordinal: c.Ordinal, ChunkID: c.ID}
	}
	return out
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req request
	if err := middleware.DecodeOptionalJSON(r, &req); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	chunks, err := h.retriever.Search(ctx, r.PathValue("project_id"), req.Text, &retrieval.SearchOptions{
		TopK:           req.Limit,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toResults(chunks))
}

type answerResponse struct {
	Answer    string         `json:"answer"`
	Question  string         `json:"question"`
	Citations []SearchResult `json:"citations"`
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req request
	if err := middleware.DecodeOptionalJSON(r, &req); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	answer, err := h.retriever.Answer(ctx, r.PathValue("project_id"), req.Text, &retrieval.AnswerOptions{
		SearchOptions:    retrieval.SearchOptions{TopK: req.Limit, ScoreThreshold: req.ScoreThreshold},
		MaxContextTokens: req.MaxContextTokens,
	})
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, answerResponse{
		Answer:    answer.Text,
		Question:  answer.Question,
		Citations: toResults(answer.Citations),
	})
}
