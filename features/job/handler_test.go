package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"docqa/features/job"
	"docqa/internal/config"
	"docqa/internal/rag"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
func (m *MockRepo) List(ctx context.Context) ([]job.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}
func (m *MockRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}
func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *MockRepo) CountByProject(ctx context.Context, projectID string) (int, error) {
	args := m.Called(ctx, projectID)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

func TestHandler_List(t *testing.T) {
	tests := []struct {
		name       string
		jobs       []job.Job
		err        error
		wantStatus int
		wantCount  int
	}{
		{"Empty", nil, nil, http.StatusOK, 0},
		{"Two Jobs", []job.Job{{ID: "1"}, {ID: "2"}}, nil, http.StatusOK, 2},
		{"Repo Error", nil, errors.New("db down"), http.StatusInternalServerError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepo)
			repo.On("List", mock.Anything).Return(tt.jobs, tt.err)
			handler := job.NewHandler(job.NewService(repo, nil))

			w := httptest.NewRecorder()
			handler.List(w, httptest.NewRequest("GET", "/jobs/failed", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var body struct {
					Data []job.Job `json:"data"`
				}
				assert.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Len(t, body.Data, tt.wantCount)
				assert.NotNil(t, body.Data)
			}
		})
	}
}

func TestHandler_Retry(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*MockRepo, *MockPublisher)
		wantStatus int
	}{
		{
			name: "Success",
			setup: func(r *MockRepo, p *MockPublisher) {
				r.On("Get", mock.Anything, "7").Return(&job.Job{ID: "7", Payload: []byte(`{"project_id":"p1"}`)}, nil)
				p.On("Publish", config.TopicIngestAsset, []byte(`{"project_id":"p1"}`)).Return(nil)
				r.On("Delete", mock.Anything, "7").Return(nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Not Found",
			setup: func(r *MockRepo, p *MockPublisher) {
				r.On("Get", mock.Anything, "7").Return(nil, fmt.Errorf("%w: job 7", rag.ErrNotFound))
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "Publish Failure",
			setup: func(r *MockRepo, p *MockPublisher) {
				r.On("Get", mock.Anything, "7").Return(&job.Job{ID: "7", Payload: []byte(`{}`)}, nil)
				p.On("Publish", config.TopicIngestAsset, mock.Anything).Return(errors.New("nsqd down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepo)
			pub := new(MockPublisher)
			tt.setup(repo, pub)
			handler := job.NewHandler(job.NewService(repo, pub))

			req := httptest.NewRequest("POST", "/jobs/7/retry", nil)
			req.SetPathValue("id", "7")
			w := httptest.NewRecorder()
			handler.Retry(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			repo.AssertExpectations(t)
			pub.AssertExpectations(t)
		})
	}
}
