package worker

import (
	"context"
	"io"
	"time"

	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/policy"
)

// Collaborator ports for the pipeline consumers. Concrete implementations
// live in features/job, features/document and the adapter packages; workers
// depend only on these so tests can swap in mocks.

type JobStore interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	DeleteByDocument(ctx context.Context, documentID string) error
	IDsByDocument(ctx context.Context, documentID string) ([]string, error)
}

type DocumentStore interface {
	MarkProcessing(ctx context.Context, documentID string) error
	MarkProcessed(ctx context.Context, documentID string) error
	MarkFailed(ctx context.Context, documentID string) error
	Delete(ctx context.Context, documentID, userID string) error
}

// ChunkRecord is the relational reflection of one embedded chunk. The
// vector payload itself lives in the vector store.
type ChunkRecord struct {
	DocumentID    string
	VectorID      string
	ChunkIndex    int
	ContentLength int
}

type ChunkStore interface {
	BulkInsert(ctx context.Context, records []ChunkRecord) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// StateCache mirrors the fast-read job state surface. Writes are
// best-effort; the implementations swallow backend errors.
type StateCache interface {
	SetJobStatus(ctx context.Context, jobID, status string)
	SetJobStage(ctx context.Context, jobID, stage string)
	SetJobProgress(ctx context.Context, jobID string, progress int)
	SetJobError(ctx context.Context, jobID, errMsg string)
	ExpireJob(ctx context.Context, jobID string)
	ClearJob(ctx context.Context, jobID string)
	SetDocumentStatus(ctx context.Context, documentID, payload string, ttl time.Duration)
	InvalidateDocumentStatus(ctx context.Context, documentID string)
	InvalidateUserDocuments(ctx context.Context, userID string)
}

type ProgressPublisher interface {
	PublishJobUpdate(ctx context.Context, jobID string, ev cache.Event)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (policy.Plan, error)
}

type BlobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// VectorChunk is one chunk ready for the vector store. VectorID is
// deterministic per document and position so re-embedding upserts rather
// than duplicates.
type VectorChunk struct {
	VectorID   string
	DocumentID string
	UserID     string
	Content    string
	ChunkIndex int
	Vector     []float32
}

type VectorStore interface {
	AddBatch(ctx context.Context, chunks []VectorChunk) error
	DeleteByDocument(ctx context.Context, documentID, userID string) error
}
