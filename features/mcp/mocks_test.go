package mcp

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docqa/features/asset"
	"docqa/internal/rag"
	"docqa/internal/retrieval"
)

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Search(ctx context.Context, projectID, question string, opts *retrieval.SearchOptions) ([]rag.RetrievedChunk, error) {
	args := m.Called(ctx, projectID, question, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]rag.RetrievedChunk), args.Error(1)
}

func (m *MockRetriever) Answer(ctx context.Context, projectID, question string, opts *retrieval.AnswerOptions) (*rag.Answer, error) {
	args := m.Called(ctx, projectID, question, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rag.Answer), args.Error(1)
}

type MockAssetLister struct {
	mock.Mock
}

func (m *MockAssetLister) List(ctx context.Context, projectID string) ([]asset.Asset, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]asset.Asset), args.Error(1)
}
