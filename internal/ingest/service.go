// Package ingest turns asset text into indexed chunk vectors.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"docqa/internal/provider"
	"docqa/internal/rag"
	"docqa/internal/text"
)

// Chunking is a resolved (size, overlap) pair.
type Chunking struct {
	Size    int `json:"chunk_size"`
	Overlap int `json:"overlap"`
}

type Options struct {
	Chunking    Chunking
	Concurrency int // assets processed at once by ProcessAll
}

// Report is the outcome of indexing one asset.
type Report struct {
	Inserted     int   `json:"inserted_chunks"`
	FailedChunks []int `json:"failed_chunks"`
}

// Summary folds the per-asset outcomes of ProcessAll. Counts only reflect
// assets that were fully indexed.
type Summary struct {
	TotalInserted   int      `json:"total_inserted_chunks"`
	ProcessedCount  int      `json:"processed_asset_count"`
	FailedAssetIDs  []string `json:"failed_asset_ids"`
	SkippedAssetIDs []string `json:"skipped_asset_ids"`
}

type Service struct {
	embedder provider.Embedder
	index    provider.VectorIndex
	opts     Options
}

func NewService(embedder provider.Embedder, index provider.VectorIndex, opts Options) (*Service, error) {
	if err := text.ValidateChunking(opts.Chunking.Size, opts.Chunking.Overlap); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Service{embedder: embedder, index: index, opts: opts}, nil
}

func (s *Service) DefaultChunking() Chunking {
	return s.opts.Chunking
}

// Process chunks, embeds and upserts one asset. Chunk ids are derived from
// (asset id, ordinal) so running it again overwrites instead of duplicating.
// Vectors of the asset are either all written or rolled back.
func (s *Service) Process(ctx context.Context, projectID string, asset rag.Asset, ch Chunking) (Report, error) {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return Report{}, err
	}
	if asset.ID == "" {
		return Report{}, rag.NewFieldError("asset_id", "is required")
	}
	if asset.ProjectID != "" && asset.ProjectID != projectID {
		return Report{}, rag.NewFieldError("asset_id", "belongs to another project")
	}
	if strings.TrimSpace(asset.Content) == "" {
		return Report{}, rag.NewFieldError("content", "asset has no text")
	}

	chunks, err := text.ChunkAsset(asset, ch.Size, ch.Overlap)
	if err != nil {
		return Report{}, err
	}

	if err := s.index.EnsureCollection(ctx, projectID, s.embedder.Dimension()); err != nil {
		return Report{}, fmt.Errorf("failed to ensure collection: %w", err)
	}

	vectors, kept, failed, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return Report{}, fmt.Errorf("failed to embed asset %s: %w", asset.ID, err)
	}
	if len(kept) == 0 {
		s.rollback(ctx, projectID, asset.ID)
		return Report{FailedChunks: failed}, fmt.Errorf("%w: no chunk of asset %s could be embedded", rag.ErrValidation, asset.ID)
	}

	records := make([]rag.VectorRecord, len(kept))
	for i, c := range kept {
		records[i] = rag.VectorRecord{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: rag.Payload{
				Content:   c.Content,
				AssetID:   asset.ID,
				ProjectID: projectID,
				Ordinal:   c.Ordinal,
			},
		}
	}

	inserted, err := s.index.Upsert(ctx, projectID, records)
	if err != nil {
		s.rollback(ctx, projectID, asset.ID)
		return Report{}, fmt.Errorf("failed to upsert asset %s: %w", asset.ID, err)
	}

	// Ordinals past the new chunk count belong to an older, longer chunking.
	if err := s.index.DeleteAssetChunks(ctx, projectID, asset.ID, len(chunks)); err != nil {
		slog.WarnContext(ctx, "failed to prune stale chunks", "project_id", projectID, "asset_id", asset.ID, "error", err)
	}
	// A rejected ordinal may still hold the vector of an earlier chunking.
	if err := s.index.DeleteAssetOrdinals(ctx, projectID, asset.ID, failed); err != nil {
		slog.WarnContext(ctx, "failed to drop rejected chunks", "project_id", projectID, "asset_id", asset.ID, "error", err)
	}

	slog.InfoContext(ctx, "asset indexed",
		"project_id", projectID, "asset_id", asset.ID, "chunks", len(chunks), "inserted", inserted, "failed_chunks", len(failed))
	return Report{Inserted: inserted, FailedChunks: failed}, nil
}

// embedChunks embeds every chunk it can. A chunk the embedder rejects as
// invalid is dropped and reported by ordinal, any other failure aborts.
func (s *Service) embedChunks(ctx context.Context, chunks []rag.Chunk) ([][]float32, []rag.Chunk, []int, error) {
	failed := []int{}
	pending := chunks
	for len(pending) > 0 {
		texts := make([]string, len(pending))
		for i, c := range pending {
			texts[i] = c.Content
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			if len(vectors) != len(pending) {
				return nil, nil, nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(pending))
			}
			return vectors, pending, failed, nil
		}

		var ie *rag.ItemError
		if !errors.As(err, &ie) || !errors.Is(err, rag.ErrValidation) || ie.Index < 0 || ie.Index >= len(pending) {
			return nil, nil, nil, err
		}
		bad := pending[ie.Index]
		slog.WarnContext(ctx, "chunk rejected by embedder", "asset_id", bad.AssetID, "ordinal", bad.Ordinal, "error", ie.Err)
		failed = append(failed, bad.Ordinal)

		next := make([]rag.Chunk, 0, len(pending)-1)
		next = append(next, pending[:ie.Index]...)
		pending = append(next, pending[ie.Index+1:]...)
	}
	return [][]float32{}, []rag.Chunk{}, failed, nil
}

func (s *Service) rollback(ctx context.Context, projectID, assetID string) {
	if err := s.index.DeleteAssetChunks(context.WithoutCancel(ctx), projectID, assetID, 0); err != nil {
		slog.ErrorContext(ctx, "failed to roll back asset vectors", "project_id", projectID, "asset_id", assetID, "error", err)
	}
}

type outcome struct {
	inserted int
	err      error
	skipped  bool
}

// ProcessAll indexes assets independently with bounded parallelism. One
// asset failing never stops the others. Once ctx is cancelled no new asset
// is started, while assets already running are allowed to finish.
func (s *Service) ProcessAll(ctx context.Context, projectID string, assets []rag.Asset, ch Chunking) (Summary, error) {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return Summary{}, err
	}
	if err := text.ValidateChunking(ch.Size, ch.Overlap); err != nil {
		return Summary{}, err
	}

	outcomes := make([]outcome, len(assets))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)

	for i, asset := range assets {
		if ctx.Err() != nil {
			outcomes[i].skipped = true
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i].skipped = true
				return nil
			}
			report, err := s.Process(context.WithoutCancel(ctx), projectID, asset, ch)
			outcomes[i] = outcome{inserted: report.Inserted, err: err}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{FailedAssetIDs: []string{}, SkippedAssetIDs: []string{}}
	for i, o := range outcomes {
		id := assets[i].ID
		switch {
		case o.skipped:
			summary.SkippedAssetIDs = append(summary.SkippedAssetIDs, id)
		case o.err != nil:
			slog.WarnContext(ctx, "asset failed to index", "project_id", projectID, "asset_id", id, "error", o.err)
			summary.FailedAssetIDs = append(summary.FailedAssetIDs, id)
		default:
			summary.ProcessedCount++
			summary.TotalInserted += o.inserted
		}
	}

	slog.InfoContext(ctx, "project indexed",
		"project_id", projectID,
		"processed", summary.ProcessedCount,
		"failed", len(summary.FailedAssetIDs),
		"skipped", len(summary.SkippedAssetIDs),
		"inserted", summary.TotalInserted)
	return summary, nil
}

// Reset drops the project collection.
func (s *Service) Reset(ctx context.Context, projectID string) error {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return err
	}
	return s.index.DeleteCollection(ctx, projectID)
}

// RemoveAsset deletes every vector of the asset.
func (s *Service) RemoveAsset(ctx context.Context, projectID, assetID string) error {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return err
	}
	return s.index.DeleteAssetChunks(ctx, projectID, assetID, 0)
}

// Info reports the project collection state. A missing collection is ErrNotFound.
func (s *Service) Info(ctx context.Context, projectID string) (rag.CollectionInfo, error) {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return rag.CollectionInfo{}, err
	}
	info, err := s.index.CollectionInfo(ctx, projectID)
	if errors.Is(err, rag.ErrIndexing) {
		return rag.CollectionInfo{}, fmt.Errorf("%w: %w", rag.ErrNotFound, err)
	}
	return info, err
}
