package provider

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"docqa/internal/rag"
	"docqa/internal/text"
)

// EmbedFunc embeds one backend-sized batch.
type EmbedFunc func(ctx context.Context, batch []string) ([][]float32, error)

// EmbedInBatches splits texts into batches of at most size, runs up to
// concurrency batches at once and reassembles vectors in input order. An
// *rag.ItemError from a batch is re-indexed against the full input.
func EmbedInBatches(ctx context.Context, texts []string, size, concurrency int, embed EmbedFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if size <= 0 {
		size = len(texts)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := embed(gctx, texts[start:end])
			if err != nil {
				var ie *rag.ItemError
				if errors.As(err, &ie) {
					return &rag.ItemError{Index: start + ie.Index, Err: ie.Err}
				}
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckInputs rejects the first text whose estimated token count exceeds maxTokens.
func CheckInputs(texts []string, maxTokens int) error {
	if maxTokens <= 0 {
		return nil
	}
	for i, t := range texts {
		if n := text.EstimateTokens(t); n > maxTokens {
			return &rag.ItemError{
				Index: i,
				Err:   rag.NewFieldError(fmt.Sprintf("texts[%d]", i), fmt.Sprintf("about %d tokens exceeds the limit of %d", n, maxTokens)),
			}
		}
	}
	return nil
}

// CheckVectors verifies a backend response is aligned with its request.
func CheckVectors(vectors [][]float32, want, dimension int) error {
	if len(vectors) != want {
		return fmt.Errorf("expected %d embeddings, got %d", want, len(vectors))
	}
	for i, v := range vectors {
		if dimension > 0 && len(v) != dimension {
			return fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), dimension)
		}
	}
	return nil
}

// Limiter throttles outbound calls. A nil *Limiter never waits.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter allows rps requests per second. rps <= 0 disables throttling.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.l.Wait(ctx)
}
