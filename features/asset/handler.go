package asset

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"docqa/internal/middleware"
)

type Handler struct {
	service       *Service
	maxUploadSize int64
}

func NewHandler(service *Service, maxUploadSizeMB int64) *Handler {
	return &Handler{service: service, maxUploadSize: maxUploadSizeMB << 20}
}

type processRequest struct {
	ChunkSize *int `json:"chunk_size"`
	Overlap   *int `json:"overlap"`
	DoReset   bool `json:"do_reset"`
	Async     bool `json:"async"`
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := r.PathValue("project_id")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			middleware.WriteError(ctx, w, "VALIDATION_ERROR", "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", "unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", "unable to read file", http.StatusBadRequest)
		return
	}

	a, err := h.service.Upload(ctx, projectID, header.Filename, data)
	if err != nil {
		slog.WarnContext(ctx, "upload rejected", "filename", header.Filename, "error", err)
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assets, err := h.service.List(ctx, r.PathValue("project_id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	if assets == nil {
		assets = []Asset{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": assets,
		"meta": map[string]int{"count": len(assets)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.service.Get(ctx, r.PathValue("project_id"), r.PathValue("asset_id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Delete(ctx, r.PathValue("project_id"), r.PathValue("asset_id")); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, assetID := r.PathValue("project_id"), r.PathValue("asset_id")

	var req processRequest
	if err := middleware.DecodeOptionalJSON(r, &req); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	ch, err := h.service.Chunking(req.ChunkSize, req.Overlap)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	if req.Async {
		// Fail fast on unknown assets instead of queueing them.
		if _, err := h.service.Get(ctx, projectID, assetID); err != nil {
			middleware.WriteDomainError(ctx, w, err)
			return
		}
		if err := h.service.Enqueue(ctx, projectID, []string{assetID}, ch, false); err != nil {
			middleware.WriteDomainError(ctx, w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	report, err := h.service.ProcessAsset(ctx, projectID, assetID, ch)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) ProcessAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := r.PathValue("project_id")

	var req processRequest
	if err := middleware.DecodeOptionalJSON(r, &req); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	ch, err := h.service.Chunking(req.ChunkSize, req.Overlap)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	if req.Async {
		if err := h.service.Enqueue(ctx, projectID, nil, ch, req.DoReset); err != nil {
			middleware.WriteDomainError(ctx, w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	summary, err := h.service.ProcessProject(ctx, projectID, ch, req.DoReset)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}
