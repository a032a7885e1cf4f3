package extract

import (
	"errors"
	"fmt"
	"strings"

	"lumen/ingest/internal/policy"
)

// ErrNoText marks a source that parsed cleanly but yielded nothing worth
// indexing — a corrupt or empty upload, not a transient fault.
var ErrNoText = errors.New("no extractable text found in document")

// ErrUnsupported marks a source type with no extraction strategy.
var ErrUnsupported = errors.New("unsupported source type")

// Strategy extracts plain text from a downloaded file.
type Strategy func(path string) (string, error)

// ForSourceType returns the extraction strategy for a source type. The set
// is closed: image and url sources never reach this stage.
func ForSourceType(t policy.SourceType) (Strategy, bool) {
	switch t {
	case policy.SourcePDF:
		return PDF, true
	case policy.SourceText:
		return PlainText, true
	case policy.SourceMarkdown:
		return Markdown, true
	case policy.SourceDocx:
		return Docx, true
	case policy.SourcePptx:
		return Pptx, true
	case policy.SourceEpub:
		return Epub, true
	default:
		return nil, false
	}
}

// Run resolves and runs the strategy, failing with ErrNoText when the
// result is blank after trimming.
func Run(t policy.SourceType, path string) (string, error) {
	strategy, ok := ForSourceType(t)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, t)
	}

	out, err := strategy(path)
	if err != nil {
		return "", err
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrNoText
	}
	return out, nil
}
