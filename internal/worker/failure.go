package worker

import (
	"context"
	"errors"
	"log/slog"

	"lumen/ingest/internal/cache"
)

// settle decides what a failed message does next. Terminal failures mark
// the job and document failed and acknowledge the message. Transient
// failures requeue until the attempt cap, then degrade to terminal so a
// poisoned message cannot circle forever.
func settle(ctx context.Context, jobs JobStore, docs DocumentStore, state StateCache, progress ProgressPublisher, msg BaseMessage, defaultStage string, err error, attempts, maxAttempts uint16) error {
	var term *terminalError
	if !errors.As(err, &term) {
		if attempts < maxAttempts {
			slog.WarnContext(ctx, "worker: transient failure, requeueing", "job_id", msg.JobID, "attempt", attempts, "error", err)
			return err
		}
		slog.ErrorContext(ctx, "worker: attempt cap reached, failing job", "job_id", msg.JobID, "attempt", attempts, "error", err)
		term = &terminalError{stage: defaultStage, err: err}
	}

	errMsg := term.err.Error()
	slog.ErrorContext(ctx, "worker: job failed", "job_id", msg.JobID, "document_id", msg.DocumentID, "stage", term.stage, "error", errMsg)

	if err := jobs.MarkFailed(ctx, msg.JobID, errMsg); err != nil {
		slog.ErrorContext(ctx, "worker: mark job failed", "job_id", msg.JobID, "error", err)
	}
	if err := docs.MarkFailed(ctx, msg.DocumentID); err != nil {
		slog.ErrorContext(ctx, "worker: mark document failed", "document_id", msg.DocumentID, "error", err)
	}

	state.SetJobStatus(ctx, msg.JobID, StatusFailed)
	state.SetJobStage(ctx, msg.JobID, term.stage)
	state.SetJobError(ctx, msg.JobID, errMsg)
	state.ExpireJob(ctx, msg.JobID)
	state.InvalidateDocumentStatus(ctx, msg.DocumentID)
	state.InvalidateUserDocuments(ctx, msg.UserID)

	progress.PublishJobUpdate(ctx, msg.JobID, cache.Event{JobID: msg.JobID, Stage: term.stage, Error: errMsg})
	return nil
}
