package settings

import (
	"context"

	"docqa/internal/rag"
)

const MaskedKey = "********"

// Settings are the runtime-tunable retrieval defaults. The single row is
// seeded from configuration at startup.
type Settings struct {
	ID               int     `json:"-"`
	SearchTopK       int     `json:"search_top_k"`
	ScoreThreshold   float32 `json:"score_threshold"`
	MaxContextTokens int     `json:"max_context_tokens"`
	GeminiAPIKey     string  `json:"gemini_api_key"`
}

func (s *Settings) Validate() error {
	if s.SearchTopK < 1 {
		return rag.NewFieldError("search_top_k", "must be at least 1")
	}
	if s.ScoreThreshold < -1 || s.ScoreThreshold > 1 {
		return rag.NewFieldError("score_threshold", "must be between -1 and 1")
	}
	if s.MaxContextTokens < 1 {
		return rag.NewFieldError("max_context_tokens", "must be at least 1")
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

// Update stores set. A masked key, as returned by the handler, keeps the stored one.
func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if set.GeminiAPIKey == MaskedKey {
		current, err := s.repo.Get(ctx)
		if err != nil {
			return err
		}
		set.GeminiAPIKey = current.GeminiAPIKey
	}
	return s.repo.Update(ctx, set)
}
