package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"lumen/ingest/internal/policy"
)

const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
	StatusDeleting   = "deleting"
)

type Document struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Name       string          `json:"name"`
	SourceType string          `json:"source_type"`
	StorageKey string          `json:"-"`
	Status     string          `json:"status"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	JobStatus  string          `json:"job_status,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// JobView is the job slice of a document status response.
type JobView struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress *int   `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StatusView is what GET /documents/{id}/status returns and what the
// document status cache key holds.
type StatusView struct {
	DocumentID string   `json:"documentId"`
	Status     string   `json:"status"`
	Job        *JobView `json:"job,omitempty"`
}

// ErrUnsupportedFile marks uploads with an extension the pipeline cannot
// handle at all, regardless of plan.
var ErrUnsupportedFile = errors.New("unsupported file type")

var extToSource = map[string]policy.SourceType{
	".pdf":      policy.SourcePDF,
	".md":       policy.SourceMarkdown,
	".markdown": policy.SourceMarkdown,
	".txt":      policy.SourceText,
	".docx":     policy.SourceDocx,
	".pptx":     policy.SourcePptx,
	".epub":     policy.SourceEpub,
	".png":      policy.SourceImage,
	".jpg":      policy.SourceImage,
	".jpeg":     policy.SourceImage,
	".webp":     policy.SourceImage,
}

// ResolveSourceType maps an uploaded filename to its pipeline source type.
func ResolveSourceType(filename string) (policy.SourceType, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	t, ok := extToSource[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	return t, nil
}
