package worker

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docqa/features/job"
	"docqa/internal/ingest"
)

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) ProcessAsset(ctx context.Context, projectID, assetID string, ch ingest.Chunking) (ingest.Report, error) {
	args := m.Called(ctx, projectID, assetID, ch)
	return args.Get(0).(ingest.Report), args.Error(1)
}

func (m *MockProcessor) ProcessProject(ctx context.Context, projectID string, ch ingest.Chunking, reset bool) (ingest.Summary, error) {
	args := m.Called(ctx, projectID, ch, reset)
	return args.Get(0).(ingest.Summary), args.Error(1)
}

type MockJobRepo struct {
	mock.Mock
}

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockJobRepo) List(ctx context.Context) ([]job.Job, error) {
	args := m.Called(ctx)
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockJobRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockJobRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockJobRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepo) CountByProject(ctx context.Context, projectID string) (int, error) {
	args := m.Called(ctx, projectID)
	return args.Int(0), args.Error(1)
}
