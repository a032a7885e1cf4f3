package job

import (
	"context"
	"database/sql"
	"errors"

	"lumen/ingest/internal/cache"
)

// ErrForbidden is returned when a job exists but does not belong to the
// requesting user, or does not exist at all. Callers get the same answer
// either way.
var ErrForbidden = errors.New("job not found for user")

type ProgressCache interface {
	JobProgress(ctx context.Context, jobID string) (*cache.JobProgress, bool)
}

type Service struct {
	repo  Repository
	state ProgressCache
}

func NewService(repo Repository, state ProgressCache) *Service {
	return &Service{repo: repo, state: state}
}

// Authorize verifies the job belongs to the user. The gateway calls this
// before wiring a subscription.
func (s *Service) Authorize(ctx context.Context, jobID, userID string) error {
	_, err := s.repo.GetOwned(ctx, jobID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrForbidden
	}
	return err
}

// Progress reads job progress cache-first and falls back to the
// authoritative row when every key is gone. The fallback carries no stage
// or percentage for in-flight jobs; the next worker checkpoint repopulates
// them.
func (s *Service) Progress(ctx context.Context, jobID, userID string) (*cache.JobProgress, error) {
	j, err := s.repo.GetOwned(ctx, jobID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}

	if p, ok := s.state.JobProgress(ctx, jobID); ok {
		return p, nil
	}

	p := &cache.JobProgress{Status: j.Status, Error: j.Error}
	if j.Status == StatusCompleted {
		done := 100
		p.Progress = &done
	}
	return p, nil
}
