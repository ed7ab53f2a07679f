package text

import (
	"fmt"

	"docqa/internal/rag"
)

// Segment is one window of the input text.
type Segment struct {
	Ordinal int
	Offset  int // rune offset into the source text
	Content string
}

// ValidateChunking checks a (maxSize, overlap) pair.
func ValidateChunking(maxSize, overlap int) error {
	if maxSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", rag.ErrConfiguration, maxSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", rag.ErrConfiguration, overlap)
	}
	if overlap >= maxSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", rag.ErrConfiguration, overlap, maxSize)
	}
	return nil
}

// Split cuts text into windows of at most maxSize characters. Every window
// after the first starts overlap characters before the end of the previous one.
// Splitting stops once a window reaches the end of the text, so the last
// window may be shorter than maxSize.
func Split(text string, maxSize, overlap int) ([]Segment, error) {
	if err := ValidateChunking(maxSize, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []Segment{}, nil
	}

	step := maxSize - overlap
	segments := make([]Segment, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := start + maxSize
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, Segment{
			Ordinal: len(segments),
			Offset:  start,
			Content: string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return segments, nil
}

// ChunkAsset splits an asset and assigns deterministic chunk identifiers.
func ChunkAsset(asset rag.Asset, maxSize, overlap int) ([]rag.Chunk, error) {
	segments, err := Split(asset.Content, maxSize, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]rag.Chunk, len(segments))
	for i, s := range segments {
		chunks[i] = rag.Chunk{
			ID:      rag.ChunkID(asset.ID, s.Ordinal),
			AssetID: asset.ID,
			Ordinal: s.Ordinal,
			Content: s.Content,
		}
	}
	return chunks, nil
}

// EstimateTokens approximates the token count of text at ~4 characters per token.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}
