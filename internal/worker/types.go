package worker

import (
	"context"

	"docqa/features/job"
	"docqa/internal/ingest"
)

// IngestAssetPayload is the body of a message on the ingest.asset topic.
// An empty AssetIDs list means every asset of the project.
type IngestAssetPayload struct {
	ProjectID     string   `json:"project_id"`
	AssetIDs      []string `json:"asset_ids,omitempty"`
	ChunkSize     int      `json:"chunk_size"`
	Overlap       int      `json:"overlap"`
	DoReset       bool     `json:"do_reset,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

type AssetProcessor interface {
	ProcessAsset(ctx context.Context, projectID, assetID string, ch ingest.Chunking) (ingest.Report, error)
	ProcessProject(ctx context.Context, projectID string, ch ingest.Chunking, reset bool) (ingest.Summary, error)
}

// FailureRecorder keeps requests that gave up so they can be retried by hand.
type FailureRecorder interface {
	Record(ctx context.Context, j *job.Job) error
}

// DefaultMaxAttempts bounds NSQ redeliveries of one ingestion request.
const DefaultMaxAttempts uint16 = 5
