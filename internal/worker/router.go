package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/config"
	"lumen/ingest/internal/middleware"
	"lumen/ingest/internal/policy"
)

// RouterConsumer inspects a freshly uploaded document and dispatches it to
// the extraction path its source type and the owner's plan allow.
type RouterConsumer struct {
	jobs        JobStore
	docs        DocumentStore
	state       StateCache
	progress    ProgressPublisher
	tasks       TaskPublisher
	plans       PlanResolver
	maxAttempts uint16
}

func NewRouterConsumer(jobs JobStore, docs DocumentStore, state StateCache, progress ProgressPublisher, tasks TaskPublisher, plans PlanResolver, maxAttempts uint16) *RouterConsumer {
	return &RouterConsumer{
		jobs:        jobs,
		docs:        docs,
		state:       state,
		progress:    progress,
		tasks:       tasks,
		plans:       plans,
		maxAttempts: maxAttempts,
	}
}

func (c *RouterConsumer) HandleMessage(m *nsq.Message) error {
	var msg DocumentIngestMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		slog.Error("router: dropping malformed message", "error", err)
		return nil
	}

	ctx := middleware.WithCorrelationID(context.Background(), msg.CorrelationID)
	slog.InfoContext(ctx, "router: received document", "job_id", msg.JobID, "document_id", msg.DocumentID, "source_type", msg.SourceType, "attempt", m.Attempts)

	if err := c.handle(ctx, msg); err != nil {
		return settle(ctx, c.jobs, c.docs, c.state, c.progress, msg.BaseMessage, StageRoutingFailed, err, m.Attempts, c.maxAttempts)
	}
	return nil
}

func (c *RouterConsumer) handle(ctx context.Context, msg DocumentIngestMessage) error {
	plan, err := c.plans.PlanFor(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("resolve plan: %w", err)
	}
	pol := policy.For(plan)
	sourceType := policy.SourceType(msg.SourceType)

	if err := c.jobs.MarkProcessing(ctx, msg.JobID); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	if err := c.docs.MarkProcessing(ctx, msg.DocumentID); err != nil {
		return fmt.Errorf("mark document processing: %w", err)
	}

	c.state.SetJobStatus(ctx, msg.JobID, StatusProcessing)
	c.state.SetJobStage(ctx, msg.JobID, StageRouting)
	c.state.InvalidateDocumentStatus(ctx, msg.DocumentID)
	c.progress.PublishJobUpdate(ctx, msg.JobID, cache.Event{JobID: msg.JobID, Stage: StageRouting})

	if !pol.Allows(sourceType) {
		return terminal(StageBlocked, fmt.Errorf("plan %s does not allow source type %s", plan, sourceType))
	}

	switch {
	case sourceType == policy.SourceImage:
		if !pol.OCR {
			return terminal(StageBlocked, fmt.Errorf("plan %s does not include ocr", plan))
		}
		body, err := json.Marshal(OCRMessage{BaseMessage: msg.BaseMessage, StorageKey: msg.StorageKey})
		if err != nil {
			return terminal(StageRoutingFailed, fmt.Errorf("encode ocr task: %w", err))
		}
		if err := c.tasks.Publish(config.TopicDocumentOCR, body); err != nil {
			return fmt.Errorf("publish ocr task: %w", err)
		}
		c.state.SetJobStage(ctx, msg.JobID, StageOCR)
		c.progress.PublishJobUpdate(ctx, msg.JobID, cache.Event{JobID: msg.JobID, Stage: StageOCR})

	case policy.IsTextExtractable(sourceType):
		body, err := json.Marshal(TextExtractMessage{BaseMessage: msg.BaseMessage, StorageKey: msg.StorageKey, SourceType: msg.SourceType})
		if err != nil {
			return terminal(StageRoutingFailed, fmt.Errorf("encode extract task: %w", err))
		}
		if err := c.tasks.Publish(config.TopicDocumentExtract, body); err != nil {
			return fmt.Errorf("publish extract task: %w", err)
		}
		c.state.SetJobStage(ctx, msg.JobID, StageExtractingText)
		c.progress.PublishJobUpdate(ctx, msg.JobID, cache.Event{JobID: msg.JobID, Stage: StageExtractingText})

	default:
		return terminal(StageRoutingFailed, fmt.Errorf("no route for source type %s", sourceType))
	}

	slog.InfoContext(ctx, "router: dispatched document", "job_id", msg.JobID, "document_id", msg.DocumentID)
	return nil
}
