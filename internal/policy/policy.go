package policy

import "time"

type Plan string

const (
	PlanFree Plan = "Free"
	PlanGo   Plan = "Go"
	PlanPro  Plan = "Pro"
)

// SourceType enumerates the upload formats the pipeline understands.
type SourceType string

const (
	SourcePDF      SourceType = "pdf"
	SourceMarkdown SourceType = "markdown"
	SourceText     SourceType = "text"
	SourceDocx     SourceType = "docx"
	SourcePptx     SourceType = "pptx"
	SourceEpub     SourceType = "epub"
	SourceImage    SourceType = "image"
	SourceURL      SourceType = "url"
)

// TextExtractSources are the types the router sends to the text-extraction
// stage. Images go to OCR; everything else is unsupported.
var TextExtractSources = []SourceType{
	SourcePDF, SourceDocx, SourcePptx, SourceEpub, SourceMarkdown, SourceText,
}

// Policy is the immutable per-plan configuration resolved once per message.
// Workers branch on the resolved value, never on the plan name.
type Policy struct {
	AllowedSourceTypes []SourceType
	MaxDocuments       int // 0 means unlimited
	EmbeddingModel     string
	OCR                bool

	DocumentStatusTTL time.Duration
	DocumentListTTL   time.Duration
}

// TerminalJobTTL is how long job state keys linger in the cache after a job
// reaches a terminal stage, so clients polling mid-transition still observe
// a coherent final state.
const TerminalJobTTL = 48 * time.Hour

var policies = map[Plan]Policy{
	PlanFree: {
		AllowedSourceTypes: []SourceType{SourcePDF, SourceMarkdown, SourceText},
		MaxDocuments:       5,
		EmbeddingModel:     "text-embedding-004",
		OCR:                false,
		DocumentStatusTTL:  10 * time.Second,
		DocumentListTTL:    45 * time.Second,
	},
	PlanGo: {
		AllowedSourceTypes: []SourceType{SourcePDF, SourceMarkdown, SourceText, SourceDocx, SourceEpub, SourcePptx},
		MaxDocuments:       50,
		EmbeddingModel:     "gemini-embedding-001",
		OCR:                false,
		DocumentStatusTTL:  15 * time.Second,
		DocumentListTTL:    90 * time.Second,
	},
	PlanPro: {
		AllowedSourceTypes: []SourceType{SourcePDF, SourceMarkdown, SourceText, SourceDocx, SourceEpub, SourcePptx, SourceImage},
		MaxDocuments:       0,
		EmbeddingModel:     "gemini-embedding-001",
		OCR:                true,
		DocumentStatusTTL:  30 * time.Second,
		DocumentListTTL:    180 * time.Second,
	},
}

// For resolves the plan's policy. Unknown plans fall back to Free.
func For(p Plan) Policy {
	if pol, ok := policies[p]; ok {
		return pol
	}
	return policies[PlanFree]
}

// Allows reports whether the plan permits uploading the given source type.
func (p Policy) Allows(t SourceType) bool {
	for _, allowed := range p.AllowedSourceTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// IsTextExtractable reports whether the type routes to text extraction.
func IsTextExtractable(t SourceType) bool {
	for _, s := range TextExtractSources {
		if s == t {
			return true
		}
	}
	return false
}
