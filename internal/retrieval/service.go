// Package retrieval answers questions from a project's indexed chunks.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docqa/internal/middleware"
	"docqa/internal/provider"
	"docqa/internal/rag"
	"docqa/internal/settings"
	"docqa/internal/text"
)

// Defaults apply when neither the request nor the stored settings say otherwise.
type Defaults struct {
	TopK             int
	ScoreThreshold   float32
	MaxContextTokens int
	MaxOutputTokens  int
}

type SettingsReader interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type SearchOptions struct {
	TopK           *int
	ScoreThreshold *float32
}

type AnswerOptions struct {
	SearchOptions
	MaxContextTokens *int
}

type Service struct {
	embedder  provider.Embedder
	index     provider.VectorIndex
	generator provider.Generator
	settings  SettingsReader
	defaults  Defaults
	logger    *QueryLogger
}

func NewService(e provider.Embedder, idx provider.VectorIndex, g provider.Generator, set SettingsReader, d Defaults, l *QueryLogger) *Service {
	return &Service{embedder: e, index: idx, generator: g, settings: set, defaults: d, logger: l}
}

type params struct {
	topK             int
	threshold        float32
	maxContextTokens int
}

func (s *Service) resolve(ctx context.Context, opts *AnswerOptions) (params, error) {
	p := params{
		topK:             s.defaults.TopK,
		threshold:        s.defaults.ScoreThreshold,
		maxContextTokens: s.defaults.MaxContextTokens,
	}
	if s.settings != nil {
		if cfg, err := s.settings.Get(ctx); err != nil {
			slog.WarnContext(ctx, "failed to load settings, using defaults", "error", err)
		} else {
			if cfg.SearchTopK > 0 {
				p.topK = cfg.SearchTopK
			}
			p.threshold = cfg.ScoreThreshold
			if cfg.MaxContextTokens > 0 {
				p.maxContextTokens = cfg.MaxContextTokens
			}
		}
	}

	if opts != nil {
		if opts.TopK != nil {
			p.topK = *opts.TopK
		}
		if opts.ScoreThreshold != nil {
			p.threshold = *opts.ScoreThreshold
		}
		if opts.MaxContextTokens != nil {
			p.maxContextTokens = *opts.MaxContextTokens
		}
	}

	if p.topK < 1 {
		return p, rag.NewFieldError("limit", "must be at least 1")
	}
	if p.threshold < -1 || p.threshold > 1 {
		return p, rag.NewFieldError("score_threshold", "must be between -1 and 1")
	}
	if p.maxContextTokens < 1 {
		return p, rag.NewFieldError("max_context_tokens", "must be at least 1")
	}
	return p, nil
}

// Search embeds question and returns the project's most similar chunks.
// A project without a collection yields ErrNotFound.
func (s *Service) Search(ctx context.Context, projectID, question string, opts *SearchOptions) ([]rag.RetrievedChunk, error) {
	start := time.Now()
	var aopts *AnswerOptions
	if opts != nil {
		aopts = &AnswerOptions{SearchOptions: *opts}
	}
	p, err := s.resolve(ctx, aopts)
	if err != nil {
		return nil, err
	}

	results, err := s.search(ctx, projectID, question, p)
	if err != nil {
		return nil, err
	}

	s.logger.Log(QueryLogEntry{
		Operation:     "search",
		ProjectID:     projectID,
		Query:         question,
		NumResults:    len(results),
		Duration:      time.Since(start),
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	return results, nil
}

func (s *Service) search(ctx context.Context, projectID, question string, p params) ([]rag.RetrievedChunk, error) {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, rag.NewFieldError("text", "question is required")
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one question", len(vectors))
	}

	results, err := s.index.Search(ctx, projectID, vectors[0], p.topK, p.threshold)
	if err != nil {
		if errors.Is(err, rag.ErrIndexing) {
			return nil, fmt.Errorf("%w: project %s has no index yet: %w", rag.ErrNotFound, projectID, err)
		}
		return nil, err
	}
	// Backends order by score already; this pins the id tie-break and bounds.
	return rag.Rank(results, p.topK, p.threshold), nil
}

// Answer generates a grounded answer. Without qualifying chunks it returns
// NoAnswerText and never calls the generator. Chunks are packed into the
// prompt whole, in score order, until the next one would exceed the token
// budget. Citations are exactly the packed chunks.
func (s *Service) Answer(ctx context.Context, projectID, question string, opts *AnswerOptions) (*rag.Answer, error) {
	start := time.Now()
	p, err := s.resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	results, err := s.search(ctx, projectID, question, p)
	if err != nil {
		return nil, err
	}

	included := SelectContext(results, p.maxContextTokens)
	answer := &rag.Answer{Question: question, Citations: included}

	if len(included) == 0 {
		answer.Text = NoAnswerText
	} else {
		prompt, err := BuildPrompt(question, included)
		if err != nil {
			return nil, fmt.Errorf("failed to build prompt: %w", err)
		}
		out, err := s.generator.Generate(ctx, prompt, s.defaults.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to generate answer: %w", err)
		}
		answer.Text = strings.TrimSpace(out)
	}

	s.logger.Log(QueryLogEntry{
		Operation:     "answer",
		ProjectID:     projectID,
		Query:         question,
		NumResults:    len(results),
		NumCited:      len(included),
		Duration:      time.Since(start),
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	return answer, nil
}

// SelectContext keeps the longest prefix of results whose estimated token
// total fits within budget.
func SelectContext(results []rag.RetrievedChunk, budget int) []rag.RetrievedChunk {
	used := 0
	for i, r := range results {
		used += text.EstimateTokens(r.Content)
		if used > budget {
			return results[:i:i]
		}
	}
	return results
}
