package config

const (
	// TopicDocumentIngest is the first-stage NSQ topic; the router consumes it.
	TopicDocumentIngest = "document.ingest"

	// TopicDocumentExtract carries text extraction tasks for non-image sources.
	TopicDocumentExtract = "document.extract"

	// TopicDocumentOCR carries image sources to the external OCR pipeline.
	TopicDocumentOCR = "document.ocr"

	// TopicDocumentChunkEmbed carries extracted text to the chunk+embed stage.
	TopicDocumentChunkEmbed = "document.chunkembed"

	// TopicDocumentDelete carries document deletion requests.
	TopicDocumentDelete = "document.delete"
)

// ChannelPipeline is the shared NSQ channel name for pipeline consumers.
// All worker processes of one stage join the same channel so each message
// is delivered to exactly one of them.
const ChannelPipeline = "pipeline"
