package worker

// Pipeline stages as surfaced to clients through the cache and the
// progress channel.
const (
	StageRouting        = "routing"
	StageExtractingText = "extracting_text"
	StageTextExtracted  = "text_extracted"
	StageOCR            = "ocr"
	StageChunking       = "chunking"
	StageEmbedding      = "embedding"
	StageCompleted      = "completed"
	StageBlocked        = "blocked"

	StageRoutingFailed        = "routing_failed"
	StageTextExtractionFailed = "text_extraction_failed"
	StageChunkEmbedFailed     = "chunk_embed_failed"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// terminalError marks a failure that retrying cannot fix. Consumers mark
// the job failed and acknowledge the message instead of requeueing.
type terminalError struct {
	stage string
	err   error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

func terminal(stage string, err error) error {
	return &terminalError{stage: stage, err: err}
}
