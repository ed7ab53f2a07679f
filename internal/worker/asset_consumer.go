package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"docqa/features/job"
	"docqa/internal/ingest"
	"docqa/internal/middleware"
	"docqa/internal/rag"
)

const handlerName = "asset_consumer"

// AssetConsumer runs queued ingestion requests. Provider outages are handed
// back to NSQ for redelivery until maxAttempts; anything else, or a request
// that keeps failing, is stored as a failed job.
type AssetConsumer struct {
	processor   AssetProcessor
	jobs        FailureRecorder
	maxAttempts uint16
}

func NewAssetConsumer(p AssetProcessor, jobs FailureRecorder, maxAttempts uint16) *AssetConsumer {
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	return &AssetConsumer{processor: p, jobs: jobs, maxAttempts: maxAttempts}
}

func (h *AssetConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestAssetPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: redelivery cannot fix invalid JSON.
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)
	ctx = middleware.WithProjectID(ctx, payload.ProjectID)

	ch := ingest.Chunking{Size: payload.ChunkSize, Overlap: payload.Overlap}
	failed, err := h.process(ctx, payload, ch)
	if err != nil {
		if errors.Is(err, rag.ErrProvider) && m.Attempts < h.maxAttempts {
			slog.WarnContext(ctx, "ingestion failed, requeueing", "attempt", m.Attempts, "error", err)
			return err
		}
		h.recordFailure(ctx, payload.ProjectID, m.Body, err)
		return nil
	}

	if len(failed) > 0 {
		// Only the failed assets are worth replaying, and never with a reset.
		retry := payload
		retry.AssetIDs = failed
		retry.DoReset = false
		retry.CorrelationID = correlationID
		body, _ := json.Marshal(retry)
		h.recordFailure(ctx, payload.ProjectID, body, fmt.Errorf("%d assets failed to index: %v", len(failed), failed))
	}
	return nil
}

func (h *AssetConsumer) process(ctx context.Context, p IngestAssetPayload, ch ingest.Chunking) ([]string, error) {
	if len(p.AssetIDs) == 0 {
		summary, err := h.processor.ProcessProject(ctx, p.ProjectID, ch, p.DoReset)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "queued project ingestion finished",
			"processed", summary.ProcessedCount, "inserted", summary.TotalInserted, "failed", len(summary.FailedAssetIDs))
		return summary.FailedAssetIDs, nil
	}

	var failed []string
	var lastErr error
	for _, id := range p.AssetIDs {
		report, err := h.processor.ProcessAsset(ctx, p.ProjectID, id, ch)
		if err != nil {
			slog.ErrorContext(ctx, "queued asset ingestion failed", "asset_id", id, "error", err)
			failed = append(failed, id)
			lastErr = err
			continue
		}
		slog.InfoContext(ctx, "queued asset ingestion finished", "asset_id", id, "inserted", report.Inserted)
	}

	// A single asset request fails as a whole so provider outages get redelivered.
	if len(p.AssetIDs) == 1 && lastErr != nil {
		return nil, lastErr
	}
	return failed, nil
}

func (h *AssetConsumer) recordFailure(ctx context.Context, projectID string, body []byte, cause error) {
	failedJob := &job.Job{
		ProjectID: projectID,
		Handler:   handlerName,
		Payload:   json.RawMessage(body),
		Error:     cause.Error(),
	}
	if err := h.jobs.Record(ctx, failedJob); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err, "cause", cause)
	}
}
