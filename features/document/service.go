package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lumen/ingest/features/job"
	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/config"
	"lumen/ingest/internal/middleware"
	"lumen/ingest/internal/policy"
	"lumen/ingest/internal/worker"
)

var (
	ErrNotFound             = errors.New("document not found")
	ErrSourceTypeNotAllowed = errors.New("source type not allowed on this plan")
	ErrDocumentLimit        = errors.New("document limit reached for this plan")
	ErrDeleting             = errors.New("document is being deleted")
)

type JobRepository interface {
	Create(ctx context.Context, j *job.Job) error
	LatestByDocument(ctx context.Context, documentID string) (*job.Job, error)
}

type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

type Cache interface {
	SetJobStatus(ctx context.Context, jobID, status string)
	SetJobStage(ctx context.Context, jobID, stage string)
	SetJobProgress(ctx context.Context, jobID string, progress int)
	JobProgress(ctx context.Context, jobID string) (*cache.JobProgress, bool)
	SetDocumentStatus(ctx context.Context, documentID, payload string, ttl time.Duration)
	DocumentStatus(ctx context.Context, documentID string) (string, bool)
	InvalidateDocumentStatus(ctx context.Context, documentID string)
	SetUserDocuments(ctx context.Context, userID, payload string, ttl time.Duration)
	UserDocuments(ctx context.Context, userID string) (string, bool)
	InvalidateUserDocuments(ctx context.Context, userID string)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (policy.Plan, error)
}

type Service struct {
	repo  Repository
	jobs  JobRepository
	blobs BlobStore
	state Cache
	pub   EventPublisher
	plans PlanResolver
}

func NewService(repo Repository, jobs JobRepository, blobs BlobStore, state Cache, pub EventPublisher, plans PlanResolver) *Service {
	return &Service{repo: repo, jobs: jobs, blobs: blobs, state: state, pub: pub, plans: plans}
}

type UploadResult struct {
	DocumentID string `json:"documentId"`
	JobID      string `json:"jobId"`
	Status     string `json:"status"`
}

// Upload gates the file against the owner's plan, stores the blob, creates
// the document and its first job and hands the work to the router.
func (s *Service) Upload(ctx context.Context, userID, name, filename string, file io.Reader, size int64, contentType string) (*UploadResult, error) {
	sourceType, err := ResolveSourceType(filename)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.PlanFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	pol := policy.For(plan)

	if !pol.Allows(sourceType) {
		return nil, fmt.Errorf("%w: %s on plan %s", ErrSourceTypeNotAllowed, sourceType, plan)
	}
	if pol.MaxDocuments > 0 {
		count, err := s.repo.CountByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("count documents: %w", err)
		}
		if count >= pol.MaxDocuments {
			return nil, fmt.Errorf("%w: %d", ErrDocumentLimit, pol.MaxDocuments)
		}
	}

	storageKey := fmt.Sprintf("documents/%s-%s", uuid.NewString(), filename)
	if err := s.blobs.Put(ctx, storageKey, file, size, contentType); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	doc := &Document{UserID: userID, Name: name, SourceType: string(sourceType), StorageKey: storageKey}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	j := &job.Job{UserID: userID, DocumentID: doc.ID}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.seedJobState(ctx, j.ID)
	s.state.InvalidateUserDocuments(ctx, userID)

	if err := s.publishIngest(ctx, j.ID, doc); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "document queued for ingestion", "document_id", doc.ID, "job_id", j.ID, "source_type", sourceType)
	return &UploadResult{DocumentID: doc.ID, JobID: j.ID, Status: job.StatusQueued}, nil
}

// Reingest creates a fresh job for an existing document and sends it back
// through the pipeline.
func (s *Service) Reingest(ctx context.Context, userID, documentID string) (*UploadResult, error) {
	doc, err := s.repo.GetOwned(ctx, documentID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.Status == StatusDeleting {
		return nil, ErrDeleting
	}

	j := &job.Job{UserID: userID, DocumentID: doc.ID}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.seedJobState(ctx, j.ID)
	s.state.InvalidateDocumentStatus(ctx, doc.ID)
	s.state.InvalidateUserDocuments(ctx, userID)

	if err := s.publishIngest(ctx, j.ID, doc); err != nil {
		return nil, err
	}
	return &UploadResult{DocumentID: doc.ID, JobID: j.ID, Status: job.StatusQueued}, nil
}

// List reads the owner's documents cache-first.
func (s *Service) List(ctx context.Context, userID string) ([]Document, error) {
	if payload, ok := s.state.UserDocuments(ctx, userID); ok {
		var docs []Document
		if err := json.Unmarshal([]byte(payload), &docs); err == nil {
			return docs, nil
		}
		s.state.InvalidateUserDocuments(ctx, userID)
	}

	docs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.PlanFor(ctx, userID)
	if err == nil {
		if payload, err := json.Marshal(docs); err == nil {
			s.state.SetUserDocuments(ctx, userID, string(payload), policy.For(plan).DocumentListTTL)
		}
	}
	return docs, nil
}

// Status is the cache-first document status read path. A cache hit skips
// the database entirely; a miss reassembles the view from the
// authoritative rows and repopulates the key with the plan's TTL.
func (s *Service) Status(ctx context.Context, userID, documentID string) (*StatusView, error) {
	if payload, ok := s.state.DocumentStatus(ctx, documentID); ok {
		var view StatusView
		if err := json.Unmarshal([]byte(payload), &view); err == nil {
			return &view, nil
		}
		s.state.InvalidateDocumentStatus(ctx, documentID)
	}

	doc, err := s.repo.GetOwned(ctx, documentID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	view := &StatusView{DocumentID: doc.ID, Status: doc.Status}
	latest, err := s.jobs.LatestByDocument(ctx, documentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if latest != nil {
		jv := &JobView{ID: latest.ID, Status: latest.Status, Error: latest.Error}
		if p, ok := s.state.JobProgress(ctx, latest.ID); ok {
			if p.Status != "" {
				jv.Status = p.Status
			}
			jv.Stage = p.Stage
			jv.Progress = p.Progress
			if p.Error != "" {
				jv.Error = p.Error
			}
		}
		view.Job = jv
	}

	plan, err := s.plans.PlanFor(ctx, userID)
	if err == nil {
		if payload, err := json.Marshal(view); err == nil {
			s.state.SetDocumentStatus(ctx, documentID, string(payload), policy.For(plan).DocumentStatusTTL)
		}
	}
	return view, nil
}

// Delete marks the document deleting and hands the actual teardown to the
// deletion worker. Replays of the published message are harmless.
func (s *Service) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.repo.GetOwned(ctx, documentID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := s.repo.MarkDeleting(ctx, documentID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	msg := worker.DocumentDeleteMessage{
		DocumentID:    documentID,
		UserID:        userID,
		StorageKey:    doc.StorageKey,
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicDocumentDelete, body); err != nil {
		return fmt.Errorf("publish delete: %w", err)
	}

	s.state.InvalidateDocumentStatus(ctx, documentID)
	s.state.InvalidateUserDocuments(ctx, userID)

	slog.InfoContext(ctx, "document deletion queued", "document_id", documentID)
	return nil
}

func (s *Service) seedJobState(ctx context.Context, jobID string) {
	s.state.SetJobStatus(ctx, jobID, job.StatusQueued)
	s.state.SetJobStage(ctx, jobID, "uploading")
	s.state.SetJobProgress(ctx, jobID, 0)
}

func (s *Service) publishIngest(ctx context.Context, jobID string, doc *Document) error {
	msg := worker.DocumentIngestMessage{
		BaseMessage: worker.BaseMessage{
			JobID:         jobID,
			DocumentID:    doc.ID,
			UserID:        doc.UserID,
			CorrelationID: middleware.GetCorrelationID(ctx),
		},
		SourceType: doc.SourceType,
		StorageKey: doc.StorageKey,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicDocumentIngest, body); err != nil {
		return fmt.Errorf("publish ingest: %w", err)
	}
	return nil
}
