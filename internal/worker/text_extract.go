package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nsqio/go-nsq"

	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/config"
	"lumen/ingest/internal/extract"
	"lumen/ingest/internal/middleware"
	"lumen/ingest/internal/policy"
)

// TextExtractConsumer pulls the raw document from object storage, extracts
// its plain text and hands the result to the chunk-and-embed stage.
type TextExtractConsumer struct {
	jobs        JobStore
	docs        DocumentStore
	state       StateCache
	progress    ProgressPublisher
	tasks       TaskPublisher
	blobs       BlobStore
	maxAttempts uint16

	// extractFn is swapped in tests; defaults to extract.Run.
	extractFn func(t policy.SourceType, path string) (string, error)
}

func NewTextExtractConsumer(jobs JobStore, docs DocumentStore, state StateCache, progress ProgressPublisher, tasks TaskPublisher, blobs BlobStore, maxAttempts uint16) *TextExtractConsumer {
	return &TextExtractConsumer{
		jobs:        jobs,
		docs:        docs,
		state:       state,
		progress:    progress,
		tasks:       tasks,
		blobs:       blobs,
		maxAttempts: maxAttempts,
		extractFn:   extract.Run,
	}
}

func (c *TextExtractConsumer) HandleMessage(m *nsq.Message) error {
	var msg TextExtractMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		slog.Error("extract: dropping malformed message", "error", err)
		return nil
	}

	ctx := middleware.WithCorrelationID(context.Background(), msg.CorrelationID)
	slog.InfoContext(ctx, "extract: received document", "job_id", msg.JobID, "document_id", msg.DocumentID, "source_type", msg.SourceType, "attempt", m.Attempts)

	if err := c.handle(ctx, msg); err != nil {
		return settle(ctx, c.jobs, c.docs, c.state, c.progress, msg.BaseMessage, StageTextExtractionFailed, err, m.Attempts, c.maxAttempts)
	}
	return nil
}

func (c *TextExtractConsumer) handle(ctx context.Context, msg TextExtractMessage) error {
	// Re-assert processing: the router's status write is best-effort and may
	// have been lost.
	c.state.SetJobStatus(ctx, msg.JobID, StatusProcessing)
	c.report(ctx, msg.JobID, StageExtractingText, 10)

	dir, err := os.MkdirTemp("", "ingest-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "document")
	if err := c.download(ctx, msg.StorageKey, path); err != nil {
		return fmt.Errorf("download %s: %w", msg.StorageKey, err)
	}
	c.report(ctx, msg.JobID, StageExtractingText, 30)

	text, err := c.extractFn(policy.SourceType(msg.SourceType), path)
	if err != nil {
		return terminal(StageTextExtractionFailed, fmt.Errorf("extract text: %w", err))
	}
	c.report(ctx, msg.JobID, StageTextExtracted, 60)

	next := ChunkEmbedMessage{
		BaseMessage:  msg.BaseMessage,
		TextLocation: TextLocation{Type: TextLocationInline, Value: text},
	}
	body, err := json.Marshal(next)
	if err != nil {
		return terminal(StageTextExtractionFailed, fmt.Errorf("encode chunk task: %w", err))
	}
	if err := c.tasks.Publish(config.TopicDocumentChunkEmbed, body); err != nil {
		return fmt.Errorf("publish chunk task: %w", err)
	}
	c.report(ctx, msg.JobID, StageTextExtracted, 80)

	slog.InfoContext(ctx, "extract: text forwarded", "job_id", msg.JobID, "document_id", msg.DocumentID, "chars", len(text))
	return nil
}

func (c *TextExtractConsumer) download(ctx context.Context, key, path string) error {
	r, err := c.blobs.Get(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return err
	}
	return f.Close()
}

func (c *TextExtractConsumer) report(ctx context.Context, jobID, stage string, pct int) {
	c.state.SetJobStage(ctx, jobID, stage)
	c.state.SetJobProgress(ctx, jobID, pct)
	c.progress.PublishJobUpdate(ctx, jobID, cache.Event{JobID: jobID, Stage: stage, Progress: &pct})
}
