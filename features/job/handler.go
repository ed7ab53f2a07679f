package job

import (
	"log/slog"
	"net/http"

	"docqa/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "listing failed jobs")

	jobs, err := h.service.List(ctx)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}
	middleware.WriteJSON(w, http.StatusOK, jobs)
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	slog.InfoContext(ctx, "retrying job", "id", id)

	if err := h.service.Retry(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to retry job", "id", id, "error", err)
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "job retried")
}
