package asset

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docqa/internal/blob"
	"docqa/internal/config"
	"docqa/internal/extract"
	"docqa/internal/ingest"
	"docqa/internal/middleware"
	"docqa/internal/rag"
	"docqa/internal/text"
	"docqa/internal/worker"
)

type Asset struct {
	ID          string    `json:"asset_id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Length      int       `json:"length"`
	ContentHash string    `json:"content_hash"`
	BlobKey     string    `json:"-"`
	Text        string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a *Asset) domain() rag.Asset {
	return rag.Asset{ID: a.ID, ProjectID: a.ProjectID, Name: a.Name, Content: a.Text}
}

type Repository interface {
	Save(ctx context.Context, a *Asset) error
	ExistsByHash(ctx context.Context, projectID, hash string) (bool, error)
	Get(ctx context.Context, projectID, id string) (*Asset, error)
	List(ctx context.Context, projectID string) ([]Asset, error)
	ListContents(ctx context.Context, projectID string) ([]Asset, error)
	Delete(ctx context.Context, projectID, id string) error
	Count(ctx context.Context) (int, error)
	CountByProject(ctx context.Context, projectID string) (int, error)
}

// Indexer is the ingestion side the asset service drives.
type Indexer interface {
	Process(ctx context.Context, projectID string, asset rag.Asset, ch ingest.Chunking) (ingest.Report, error)
	ProcessAll(ctx context.Context, projectID string, assets []rag.Asset, ch ingest.Chunking) (ingest.Summary, error)
	Reset(ctx context.Context, projectID string) error
	RemoveAsset(ctx context.Context, projectID, assetID string) error
	DefaultChunking() ingest.Chunking
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo       Repository
	blobs      blob.Store
	indexer    Indexer
	pub        EventPublisher
	extensions map[string]bool
}

func NewService(repo Repository, blobs blob.Store, indexer Indexer, pub EventPublisher, allowedExtensions []string) *Service {
	exts := make(map[string]bool, len(allowedExtensions))
	for _, e := range allowedExtensions {
		if extract.Supported(e) {
			exts[strings.ToLower(e)] = true
		}
	}
	return &Service{repo: repo, blobs: blobs, indexer: indexer, pub: pub, extensions: exts}
}

// Upload stores the file bytes and its extracted text as a new asset.
// The same bytes uploaded twice to one project are rejected as duplicates.
func (s *Service) Upload(ctx context.Context, projectID, filename string, data []byte) (*Asset, error) {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, rag.NewFieldError("file", "is empty")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.extensions[ext] {
		return nil, rag.NewFieldError("file", fmt.Sprintf("unsupported file type %q", ext))
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.repo.ExistsByHash(ctx, projectID, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: file already uploaded to project %s", rag.ErrDuplicate, projectID)
	}

	content, err := extract.Text(data, ext)
	if err != nil {
		if errors.Is(err, rag.ErrValidation) {
			return nil, err
		}
		return nil, rag.NewFieldError("file", fmt.Sprintf("could not read %s: %v", ext, err))
	}

	a := &Asset{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        filepath.Base(filename),
		Size:        int64(len(data)),
		ContentHash: hash,
		Text:        content,
	}
	a.Length = a.domain().Length()
	a.BlobKey = blob.AssetKey(projectID, a.ID, filename)

	if err := s.blobs.Put(ctx, a.BlobKey, data, ""); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	if err := s.repo.Save(ctx, a); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), a.BlobKey); delErr != nil {
			slog.WarnContext(ctx, "failed to clean up uploaded file", "key", a.BlobKey, "error", delErr)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "asset uploaded", "asset_id", a.ID, "name", a.Name, "size", a.Size, "length", a.Length)
	return a, nil
}

func (s *Service) List(ctx context.Context, projectID string) ([]Asset, error) {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, projectID)
}

func (s *Service) Get(ctx context.Context, projectID, id string) (*Asset, error) {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, projectID, id)
}

// Delete removes the asset's vectors, row and stored file, in that order.
func (s *Service) Delete(ctx context.Context, projectID, id string) error {
	a, err := s.Get(ctx, projectID, id)
	if err != nil {
		return err
	}
	if err := s.indexer.RemoveAsset(ctx, projectID, id); err != nil {
		return fmt.Errorf("failed to remove asset vectors: %w", err)
	}
	if err := s.repo.Delete(ctx, projectID, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, a.BlobKey); err != nil && !errors.Is(err, rag.ErrNotFound) {
		slog.WarnContext(ctx, "failed to delete stored file", "key", a.BlobKey, "error", err)
	}
	return nil
}

// Chunking resolves optional per-request overrides against the configured
// defaults. An invalid pair is a validation error of the request.
func (s *Service) Chunking(size, overlap *int) (ingest.Chunking, error) {
	ch := s.indexer.DefaultChunking()
	if size != nil {
		ch.Size = *size
	}
	if overlap != nil {
		ch.Overlap = *overlap
	}
	if err := text.ValidateChunking(ch.Size, ch.Overlap); err != nil {
		if ch.Size <= 0 {
			return ch, rag.NewFieldError("chunk_size", "must be positive")
		}
		return ch, rag.NewFieldError("overlap", "must be non-negative and smaller than chunk_size")
	}
	return ch, nil
}

func (s *Service) ProcessAsset(ctx context.Context, projectID, assetID string, ch ingest.Chunking) (ingest.Report, error) {
	a, err := s.Get(ctx, projectID, assetID)
	if err != nil {
		return ingest.Report{}, err
	}
	return s.indexer.Process(ctx, projectID, a.domain(), ch)
}

// ProcessProject indexes every stored asset of the project, dropping the
// collection first when reset is set.
func (s *Service) ProcessProject(ctx context.Context, projectID string, ch ingest.Chunking, reset bool) (ingest.Summary, error) {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return ingest.Summary{}, err
	}
	stored, err := s.repo.ListContents(ctx, projectID)
	if err != nil {
		return ingest.Summary{}, err
	}
	if len(stored) == 0 {
		return ingest.Summary{}, fmt.Errorf("%w: project %s has no assets", rag.ErrNotFound, projectID)
	}

	if reset {
		if err := s.indexer.Reset(ctx, projectID); err != nil {
			return ingest.Summary{}, fmt.Errorf("failed to reset collection: %w", err)
		}
		slog.InfoContext(ctx, "collection reset", "project_id", projectID)
	}

	assets := make([]rag.Asset, len(stored))
	for i := range stored {
		assets[i] = stored[i].domain()
	}
	return s.indexer.ProcessAll(ctx, projectID, assets, ch)
}

// Enqueue hands processing to the ingestion worker. Empty assetIDs means
// the whole project.
func (s *Service) Enqueue(ctx context.Context, projectID string, assetIDs []string, ch ingest.Chunking, reset bool) error {
	if err := rag.ValidateProjectID(projectID); err != nil {
		return err
	}
	if s.pub == nil {
		return fmt.Errorf("%w: asynchronous processing is disabled", rag.ErrConfiguration)
	}
	payload, err := json.Marshal(worker.IngestAssetPayload{
		ProjectID:     projectID,
		AssetIDs:      assetIDs,
		ChunkSize:     ch.Size,
		Overlap:       ch.Overlap,
		DoReset:       reset,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicIngestAsset, payload); err != nil {
		return fmt.Errorf("failed to publish ingestion request: %w", err)
	}
	slog.InfoContext(ctx, "ingestion request queued", "project_id", projectID, "assets", len(assetIDs))
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) CountByProject(ctx context.Context, projectID string) (int, error) {
	return s.repo.CountByProject(ctx, projectID)
}
