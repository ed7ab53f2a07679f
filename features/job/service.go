package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docqa/internal/config"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type Service struct {
	repo           Repository
	pub            EventPublisher
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub, publishTimeout: 5 * time.Second}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Record stores a failed ingestion request so it can be retried later.
func (s *Service) Record(ctx context.Context, j *Job) error {
	if err := s.repo.Save(ctx, j); err != nil {
		return err
	}
	slog.WarnContext(ctx, "ingestion job recorded as failed", "job_id", j.ID, "project_id", j.ProjectID, "error", j.Error)
	return nil
}

// Retry republishes the stored payload and drops the job once the broker
// accepted it.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	// go-nsq Publish takes no context.
	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestAsset, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.InfoContext(ctx, "job republished", "job_id", id, "project_id", job.ProjectID)
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) CountByProject(ctx context.Context, projectID string) (int, error) {
	return s.repo.CountByProject(ctx, projectID)
}
