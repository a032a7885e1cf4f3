package worker

// Queue message envelopes. Every pipeline message identifies the job, the
// document and the owner; the correlation id threads log lines across
// stages and is not part of the contract.

type BaseMessage struct {
	JobID         string `json:"jobId"`
	DocumentID    string `json:"documentId"`
	UserID        string `json:"userId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

type DocumentIngestMessage struct {
	BaseMessage
	SourceType string `json:"sourceType"`
	StorageKey string `json:"storageKey"`
}

type TextExtractMessage struct {
	BaseMessage
	StorageKey string `json:"storageKey"`
	SourceType string `json:"sourceType"`
}

type OCRMessage struct {
	BaseMessage
	StorageKey string `json:"storageKey"`
}

type TextLocation struct {
	// Type is "inline" or "external"; only inline is handled today.
	Type  string `json:"type"`
	Value string `json:"value"`
}

type ChunkEmbedMessage struct {
	BaseMessage
	TextLocation TextLocation `json:"textLocation"`
}

type DocumentDeleteMessage struct {
	DocumentID    string `json:"documentId"`
	UserID        string `json:"userId"`
	StorageKey    string `json:"storageKey"`
	CorrelationID string `json:"correlationId,omitempty"`
}

const (
	TextLocationInline   = "inline"
	TextLocationExternal = "external"
)
