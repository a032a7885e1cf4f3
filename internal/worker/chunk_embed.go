package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nsqio/go-nsq"
	"github.com/panjf2000/ants/v2"

	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/middleware"
	"lumen/ingest/internal/policy"
	"lumen/ingest/internal/text"
)

// ChunkEmbedConsumer splits extracted text into overlapping chunks, embeds
// them with the model the owner's plan selects and lands the vectors plus
// their relational reflection. Vector ids derive from the document id and
// chunk position, so rerunning the same document overwrites rather than
// duplicates.
type ChunkEmbedConsumer struct {
	jobs        JobStore
	docs        DocumentStore
	chunks      ChunkStore
	state       StateCache
	progress    ProgressPublisher
	plans       PlanResolver
	embedder    Embedder
	vectors     VectorStore
	pool        *ants.Pool
	maxAttempts uint16
}

func NewChunkEmbedConsumer(jobs JobStore, docs DocumentStore, chunks ChunkStore, state StateCache, progress ProgressPublisher, plans PlanResolver, embedder Embedder, vectors VectorStore, pool *ants.Pool, maxAttempts uint16) *ChunkEmbedConsumer {
	return &ChunkEmbedConsumer{
		jobs:        jobs,
		docs:        docs,
		chunks:      chunks,
		state:       state,
		progress:    progress,
		plans:       plans,
		embedder:    embedder,
		vectors:     vectors,
		pool:        pool,
		maxAttempts: maxAttempts,
	}
}

func (c *ChunkEmbedConsumer) HandleMessage(m *nsq.Message) error {
	var msg ChunkEmbedMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		slog.Error("chunkembed: dropping malformed message", "error", err)
		return nil
	}

	ctx := middleware.WithCorrelationID(context.Background(), msg.CorrelationID)
	slog.InfoContext(ctx, "chunkembed: received text", "job_id", msg.JobID, "document_id", msg.DocumentID, "attempt", m.Attempts)

	if err := c.handle(ctx, msg); err != nil {
		return settle(ctx, c.jobs, c.docs, c.state, c.progress, msg.BaseMessage, StageChunkEmbedFailed, err, m.Attempts, c.maxAttempts)
	}
	return nil
}

func (c *ChunkEmbedConsumer) handle(ctx context.Context, msg ChunkEmbedMessage) error {
	plan, err := c.plans.PlanFor(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("resolve plan: %w", err)
	}
	pol := policy.For(plan)

	// Re-assert processing: the router's status write is best-effort and may
	// have been lost.
	c.state.SetJobStatus(ctx, msg.JobID, StatusProcessing)
	c.report(ctx, msg.JobID, StageChunking, 85)

	if msg.TextLocation.Type != TextLocationInline {
		return terminal(StageChunkEmbedFailed, fmt.Errorf("unsupported text location type %q", msg.TextLocation.Type))
	}
	parts := text.Chunk(msg.TextLocation.Value, text.DefaultChunkSize, text.DefaultChunkOverlap)
	if len(parts) == 0 {
		return terminal(StageChunkEmbedFailed, fmt.Errorf("no chunks produced from extracted text"))
	}
	c.report(ctx, msg.JobID, StageChunking, 90)

	batch, err := c.embedAll(ctx, msg, pol.EmbeddingModel, parts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	c.report(ctx, msg.JobID, StageEmbedding, 95)

	if err := c.vectors.AddBatch(ctx, batch); err != nil {
		return fmt.Errorf("store vectors: %w", err)
	}
	records := make([]ChunkRecord, len(batch))
	for i, ch := range batch {
		records[i] = ChunkRecord{
			DocumentID:    ch.DocumentID,
			VectorID:      ch.VectorID,
			ChunkIndex:    ch.ChunkIndex,
			ContentLength: len(ch.Content),
		}
	}
	if err := c.chunks.BulkInsert(ctx, records); err != nil {
		return fmt.Errorf("record chunks: %w", err)
	}

	if err := c.jobs.MarkCompleted(ctx, msg.JobID); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	if err := c.docs.MarkProcessed(ctx, msg.DocumentID); err != nil {
		return fmt.Errorf("mark document processed: %w", err)
	}

	c.state.SetJobStatus(ctx, msg.JobID, StatusCompleted)
	c.state.SetJobStage(ctx, msg.JobID, StageCompleted)
	c.state.SetJobProgress(ctx, msg.JobID, 100)
	c.state.ExpireJob(ctx, msg.JobID)
	c.state.InvalidateDocumentStatus(ctx, msg.DocumentID)
	c.state.InvalidateUserDocuments(ctx, msg.UserID)

	done := 100
	c.progress.PublishJobUpdate(ctx, msg.JobID, cache.Event{JobID: msg.JobID, Stage: StageCompleted, Progress: &done})

	slog.InfoContext(ctx, "chunkembed: document searchable", "job_id", msg.JobID, "document_id", msg.DocumentID, "chunks", len(batch))
	return nil
}

// embedAll fans the chunks out over the shared pool and preserves chunk
// order in the returned batch.
func (c *ChunkEmbedConsumer) embedAll(ctx context.Context, msg ChunkEmbedMessage, model string, parts []string) ([]VectorChunk, error) {
	batch := make([]VectorChunk, len(parts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i, part := range parts {
		wg.Add(1)
		submit := c.pool.Submit(func() {
			defer wg.Done()
			vec, err := c.embedder.Embed(ctx, model, part)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("chunk %d: %w", i, err)
				}
				return
			}
			batch[i] = VectorChunk{
				VectorID:   fmt.Sprintf("%s-%d", msg.DocumentID, i),
				DocumentID: msg.DocumentID,
				UserID:     msg.UserID,
				Content:    part,
				ChunkIndex: i,
				Vector:     vec,
			}
		})
		if submit != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("submit chunk %d: %w", i, submit)
			}
			mu.Unlock()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return batch, nil
}

func (c *ChunkEmbedConsumer) report(ctx context.Context, jobID, stage string, pct int) {
	c.state.SetJobStage(ctx, jobID, stage)
	c.state.SetJobProgress(ctx, jobID, pct)
	c.progress.PublishJobUpdate(ctx, jobID, cache.Event{JobID: jobID, Stage: stage, Progress: &pct})
}
