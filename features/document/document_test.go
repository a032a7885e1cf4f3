package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lumen/ingest/features/document"
	"lumen/ingest/internal/policy"
)

func TestResolveSourceType(t *testing.T) {
	cases := map[string]policy.SourceType{
		"report.pdf":     policy.SourcePDF,
		"notes.md":       policy.SourceMarkdown,
		"notes.MARKDOWN": policy.SourceMarkdown,
		"readme.txt":     policy.SourceText,
		"deck.pptx":      policy.SourcePptx,
		"thesis.docx":    policy.SourceDocx,
		"book.epub":      policy.SourceEpub,
		"scan.png":       policy.SourceImage,
		"photo.JPEG":     policy.SourceImage,
	}
	for filename, want := range cases {
		got, err := document.ResolveSourceType(filename)
		assert.NoError(t, err, filename)
		assert.Equal(t, want, got, filename)
	}
}

func TestResolveSourceType_Unsupported(t *testing.T) {
	for _, filename := range []string{"archive.zip", "binary.exe", "noextension", "video.mp4"} {
		_, err := document.ResolveSourceType(filename)
		assert.ErrorIs(t, err, document.ErrUnsupportedFile, filename)
	}
}
