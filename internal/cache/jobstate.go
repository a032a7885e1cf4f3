package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"lumen/ingest/internal/policy"
)

// JobState mirrors job and document status for low-latency reads. It is
// advisory only: every write failure is logged and swallowed, and reads
// report misses instead of errors. Nothing in here may ever fail a job.
type JobState struct {
	c Commands
}

func NewJobState(c Commands) *JobState {
	return &JobState{c: c}
}

// JobProgress is the cached view of one job, assembled from its four keys.
type JobProgress struct {
	Status   string `json:"status,omitempty"`
	Stage    string `json:"stage,omitempty"`
	Progress *int   `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *JobState) SetJobStatus(ctx context.Context, jobID, status string) {
	s.set(ctx, JobStatusKey(jobID), status)
}

func (s *JobState) SetJobStage(ctx context.Context, jobID, stage string) {
	s.set(ctx, JobStageKey(jobID), stage)
}

func (s *JobState) SetJobProgress(ctx context.Context, jobID string, progress int) {
	s.set(ctx, JobProgressKey(jobID), strconv.Itoa(progress))
}

func (s *JobState) SetJobError(ctx context.Context, jobID, msg string) {
	s.set(ctx, JobErrorKey(jobID), msg)
}

// ExpireJob puts a TTL on all of a terminal job's keys instead of deleting
// them, so a client polling mid-transition still sees a coherent state.
func (s *JobState) ExpireJob(ctx context.Context, jobID string) {
	for _, key := range jobKeys(jobID) {
		if err := s.c.Expire(ctx, key, policy.TerminalJobTTL); err != nil {
			slog.WarnContext(ctx, "cache expire failed", "key", key, "error", err)
		}
	}
}

// ClearJob removes all of a job's keys. Used by the deletion worker.
func (s *JobState) ClearJob(ctx context.Context, jobID string) {
	if err := s.c.Del(ctx, jobKeys(jobID)...); err != nil {
		slog.WarnContext(ctx, "cache delete failed", "job_id", jobID, "error", err)
	}
}

// JobProgress reads the cached view of a job. The second return is false on
// a full miss, which callers must treat as "ask the authoritative store".
func (s *JobState) JobProgress(ctx context.Context, jobID string) (*JobProgress, bool) {
	status, errStatus := s.c.Get(ctx, JobStatusKey(jobID))
	stage, errStage := s.c.Get(ctx, JobStageKey(jobID))
	rawProgress, errProgress := s.c.Get(ctx, JobProgressKey(jobID))
	errMsg, _ := s.c.Get(ctx, JobErrorKey(jobID))

	if errStatus != nil && errStage != nil && errProgress != nil {
		return nil, false
	}

	view := &JobProgress{Status: status, Stage: stage, Error: errMsg}
	if p, err := strconv.Atoi(rawProgress); err == nil {
		view.Progress = &p
	}
	return view, true
}

func (s *JobState) SetDocumentStatus(ctx context.Context, documentID, payload string, ttl time.Duration) {
	if err := s.c.Set(ctx, DocumentStatusKey(documentID), payload, ttl); err != nil {
		slog.WarnContext(ctx, "cache set failed", "key", DocumentStatusKey(documentID), "error", err)
	}
}

// DocumentStatus returns the cached status payload for a document.
func (s *JobState) DocumentStatus(ctx context.Context, documentID string) (string, bool) {
	val, err := s.c.Get(ctx, DocumentStatusKey(documentID))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			slog.WarnContext(ctx, "cache get failed", "key", DocumentStatusKey(documentID), "error", err)
		}
		return "", false
	}
	return val, true
}

func (s *JobState) InvalidateDocumentStatus(ctx context.Context, documentID string) {
	if err := s.c.Del(ctx, DocumentStatusKey(documentID)); err != nil {
		slog.WarnContext(ctx, "cache invalidate failed", "document_id", documentID, "error", err)
	}
}

func (s *JobState) SetUserDocuments(ctx context.Context, userID, payload string, ttl time.Duration) {
	if err := s.c.Set(ctx, UserDocumentsKey(userID), payload, ttl); err != nil {
		slog.WarnContext(ctx, "cache set failed", "key", UserDocumentsKey(userID), "error", err)
	}
}

func (s *JobState) UserDocuments(ctx context.Context, userID string) (string, bool) {
	val, err := s.c.Get(ctx, UserDocumentsKey(userID))
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *JobState) InvalidateUserDocuments(ctx context.Context, userID string) {
	if err := s.c.Del(ctx, UserDocumentsKey(userID)); err != nil {
		slog.WarnContext(ctx, "cache invalidate failed", "user_id", userID, "error", err)
	}
}

func (s *JobState) set(ctx context.Context, key, value string) {
	if err := s.c.Set(ctx, key, value, 0); err != nil {
		slog.WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
}
