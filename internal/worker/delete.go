package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"lumen/ingest/internal/middleware"
)

// DeleteConsumer tears down everything a document left behind: vectors,
// the stored blob, chunk rows, job rows, the document row and every cache
// key. Each step is attempted regardless of earlier failures and the
// handler never requeues, so replaying a delete is always safe.
type DeleteConsumer struct {
	jobs    JobStore
	docs    DocumentStore
	chunks  ChunkStore
	state   StateCache
	blobs   BlobStore
	vectors VectorStore
}

func NewDeleteConsumer(jobs JobStore, docs DocumentStore, chunks ChunkStore, state StateCache, blobs BlobStore, vectors VectorStore) *DeleteConsumer {
	return &DeleteConsumer{
		jobs:    jobs,
		docs:    docs,
		chunks:  chunks,
		state:   state,
		blobs:   blobs,
		vectors: vectors,
	}
}

func (c *DeleteConsumer) HandleMessage(m *nsq.Message) error {
	var msg DocumentDeleteMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		slog.Error("delete: dropping malformed message", "error", err)
		return nil
	}

	ctx := middleware.WithCorrelationID(context.Background(), msg.CorrelationID)
	slog.InfoContext(ctx, "delete: received document", "document_id", msg.DocumentID, "user_id", msg.UserID)

	if err := c.vectors.DeleteByDocument(ctx, msg.DocumentID, msg.UserID); err != nil {
		slog.ErrorContext(ctx, "delete: vector cleanup failed, continuing", "document_id", msg.DocumentID, "error", err)
	}
	if msg.StorageKey != "" {
		if err := c.blobs.Delete(ctx, msg.StorageKey); err != nil {
			slog.ErrorContext(ctx, "delete: blob cleanup failed, continuing", "storage_key", msg.StorageKey, "error", err)
		}
	}

	// Collected before the rows go away so their cache keys can still be
	// cleared afterwards.
	jobIDs, err := c.jobs.IDsByDocument(ctx, msg.DocumentID)
	if err != nil {
		slog.ErrorContext(ctx, "delete: listing jobs failed, continuing", "document_id", msg.DocumentID, "error", err)
	}

	if err := c.chunks.DeleteByDocument(ctx, msg.DocumentID); err != nil {
		slog.ErrorContext(ctx, "delete: chunk rows cleanup failed, continuing", "document_id", msg.DocumentID, "error", err)
	}
	if err := c.jobs.DeleteByDocument(ctx, msg.DocumentID); err != nil {
		slog.ErrorContext(ctx, "delete: job rows cleanup failed, continuing", "document_id", msg.DocumentID, "error", err)
	}
	if err := c.docs.Delete(ctx, msg.DocumentID, msg.UserID); err != nil {
		slog.ErrorContext(ctx, "delete: document row cleanup failed, continuing", "document_id", msg.DocumentID, "error", err)
	}

	for _, jobID := range jobIDs {
		c.state.ClearJob(ctx, jobID)
	}
	c.state.InvalidateDocumentStatus(ctx, msg.DocumentID)
	c.state.InvalidateUserDocuments(ctx, msg.UserID)

	slog.InfoContext(ctx, "delete: document removed", "document_id", msg.DocumentID, "jobs_cleared", len(jobIDs))
	return nil
}
