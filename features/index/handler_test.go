package index

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"docqa/internal/ingest"
	"docqa/internal/rag"
)

type MockAssetIndexer struct {
	mock.Mock
}

func (m *MockAssetIndexer) ProcessProject(ctx context.Context, projectID string, ch ingest.Chunking, reset bool) (ingest.Summary, error) {
	args := m.Called(ctx, projectID, ch, reset)
	return args.Get(0).(ingest.Summary), args.Error(1)
}

func (m *MockAssetIndexer) Chunking(size, overlap *int) (ingest.Chunking, error) {
	args := m.Called(size, overlap)
	return args.Get(0).(ingest.Chunking), args.Error(1)
}

type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) Info(ctx context.Context, projectID string) (rag.CollectionInfo, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(rag.CollectionInfo), args.Error(1)
}

func (m *MockCollection) Reset(ctx context.Context, projectID string) error {
	return m.Called(ctx, projectID).Error(0)
}

func newMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /projects/{project_id}/index/push", h.Push)
	mux.HandleFunc("GET /projects/{project_id}/index/info", h.Info)
	mux.HandleFunc("DELETE /projects/{project_id}/index", h.Delete)
	return mux
}

func TestPush(t *testing.T) {
	defaults := ingest.Chunking{Size: 100, Overlap: 20}

	tests := []struct {
		name       string
		body       string
		reset      bool
		summary    ingest.Summary
		err        error
		wantStatus int
		wantBody   string
	}{
		{"Success", `{}`, false, ingest.Summary{TotalInserted: 12, FailedAssetIDs: []string{}}, nil, http.StatusOK, `"inserted_items_count":12`},
		{"Reset", `{"do_reset":true}`, true, ingest.Summary{TotalInserted: 4, FailedAssetIDs: []string{}}, nil, http.StatusOK, `"inserted_items_count":4`},
		{"Empty Body", ``, false, ingest.Summary{FailedAssetIDs: []string{}}, nil, http.StatusOK, `"inserted_items_count":0`},
		{"No Assets", `{}`, false, ingest.Summary{}, rag.ErrNotFound, http.StatusNotFound, `NOT_FOUND`},
		{"Dimension Conflict", `{}`, false, ingest.Summary{}, rag.DimensionMismatch("p1", 3, 768), http.StatusConflict, `CONFLICT`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assets := new(MockAssetIndexer)
			assets.On("Chunking", (*int)(nil), (*int)(nil)).Return(defaults, nil)
			assets.On("ProcessProject", mock.Anything, "p1", defaults, tt.reset).Return(tt.summary, tt.err)

			w := httptest.NewRecorder()
			newMux(NewHandler(assets, new(MockCollection))).
				ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/projects/p1/index/push", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assets.AssertExpectations(t)
		})
	}
}

func TestPush_MalformedBody(t *testing.T) {
	assets := new(MockAssetIndexer)
	w := httptest.NewRecorder()
	newMux(NewHandler(assets, new(MockCollection))).
		ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/projects/p1/index/push", strings.NewReader(`{"do_reset":`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assets.AssertNotCalled(t, "ProcessProject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInfo(t *testing.T) {
	coll := new(MockCollection)
	coll.On("Info", mock.Anything, "p1").Return(rag.CollectionInfo{VectorCount: 9, Dimension: 768}, nil)
	coll.On("Info", mock.Anything, "p2").Return(rag.CollectionInfo{}, rag.ErrNotFound)
	mux := newMux(NewHandler(new(MockAssetIndexer), coll))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/p1/index/info", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"vector_count":9,"dimension":768}}`, w.Body.String())

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/p2/index/info", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete(t *testing.T) {
	coll := new(MockCollection)
	coll.On("Reset", mock.Anything, "p1").Return(nil)
	coll.On("Reset", mock.Anything, "bad-id").Return(rag.NewFieldError("project_id", "must be 1-64 alphanumeric characters"))
	mux := newMux(NewHandler(new(MockAssetIndexer), coll))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/projects/p1/index", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/projects/bad-id/index", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
