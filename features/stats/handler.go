package stats

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"docqa/internal/middleware"
	"docqa/internal/rag"
)

type AssetRepo interface {
	Count(ctx context.Context) (int, error)
	CountByProject(ctx context.Context, projectID string) (int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
	CountByProject(ctx context.Context, projectID string) (int, error)
}

type Collection interface {
	Info(ctx context.Context, projectID string) (rag.CollectionInfo, error)
}

type Handler struct {
	assetRepo  AssetRepo
	jobRepo    JobRepo
	collection Collection
}

func NewHandler(a AssetRepo, j JobRepo, c Collection) *Handler {
	return &Handler{assetRepo: a, jobRepo: j, collection: c}
}

type StatsResponse struct {
	Assets     int `json:"assets"`
	FailedJobs int `json:"failed_jobs"`
}

type ProjectStatsResponse struct {
	ProjectID  string `json:"project_id"`
	Assets     int    `json:"assets"`
	Vectors    int    `json:"vectors"`
	Dimension  int    `json:"dimension"`
	FailedJobs int    `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	aCount, err := h.assetRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count assets", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count assets", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, StatsResponse{Assets: aCount, FailedJobs: jCount})
}

// GetProjectStats reports one project. A project that was never indexed
// has zero vectors rather than being an error.
func (h *Handler) GetProjectStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := r.PathValue("project_id")
	if err := rag.ValidateProjectID(projectID); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	resp := ProjectStatsResponse{ProjectID: projectID}
	var err error

	if resp.Assets, err = h.assetRepo.CountByProject(ctx, projectID); err != nil {
		slog.ErrorContext(ctx, "failed to count assets", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count assets", http.StatusInternalServerError)
		return
	}

	if resp.FailedJobs, err = h.jobRepo.CountByProject(ctx, projectID); err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	info, err := h.collection.Info(ctx, projectID)
	switch {
	case errors.Is(err, rag.ErrNotFound):
	case err != nil:
		middleware.WriteDomainError(ctx, w, err)
		return
	default:
		resp.Vectors, resp.Dimension = info.VectorCount, info.Dimension
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}
