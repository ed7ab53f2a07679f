package index

import (
	"context"
	"net/http"

	"docqa/internal/ingest"
	"docqa/internal/middleware"
	"docqa/internal/rag"
)

// AssetIndexer re-indexes stored assets.
type AssetIndexer interface {
	ProcessProject(ctx context.Context, projectID string, ch ingest.Chunking, reset bool) (ingest.Summary, error)
	Chunking(size, overlap *int) (ingest.Chunking, error)
}

type Collection interface {
	Info(ctx context.Context, projectID string) (rag.CollectionInfo, error)
	Reset(ctx context.Context, projectID string) error
}

type Handler struct {
	assets     AssetIndexer
	collection Collection
}

func NewHandler(a AssetIndexer, c Collection) *Handler {
	return &Handler{assets: a, collection: c}
}

type pushRequest struct {
	ChunkSize *int `json:"chunk_size"`
	Overlap   *int `json:"overlap"`
	DoReset   bool `json:"do_reset"`
}

type pushResponse struct {
	InsertedItemsCount int      `json:"inserted_items_count"`
	FailedAssetIDs     []string `json:"failed_asset_ids"`
}

// Push re-indexes every stored asset of the project.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := r.PathValue("project_id")

	var req pushRequest
	if err := middleware.DecodeOptionalJSON(r, &req); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	ch, err := h.assets.Chunking(req.ChunkSize, req.Overlap)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	summary, err := h.assets.ProcessProject(ctx, projectID, ch, req.DoReset)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pushResponse{
		InsertedItemsCount: summary.TotalInserted,
		FailedAssetIDs:     summary.FailedAssetIDs,
	})
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, err := h.collection.Info(ctx, r.PathValue("project_id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, info)
}

// Delete drops the project collection. Deleting a missing one succeeds.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.collection.Reset(ctx, r.PathValue("project_id")); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
