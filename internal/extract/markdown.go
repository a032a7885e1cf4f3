package extract

import (
	"os"
	"regexp"
	"strings"
)

var (
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImageRe   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdHeadingRe = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdFenceRe   = regexp.MustCompile("(?m)^```[a-zA-Z0-9_-]*$")
)

// PlainText reads the file as-is.
func PlainText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Markdown strips markup down to the prose: images, link targets, headings,
// fence markers, emphasis and inline HTML all go, text stays.
func Markdown(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return StripMarkdown(string(raw)), nil
}

func StripMarkdown(text string) string {
	text = mdImageRe.ReplaceAllString(text, "")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdHeadingRe.ReplaceAllString(text, "")
	text = mdFenceRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")

	replacer := strings.NewReplacer("**", "", "__", "", "`", "", "~~", "")
	text = replacer.Replace(text)
	return text
}

// stripHTML removes tags and decodes nothing; entity fidelity does not
// matter for embedding input.
func stripHTML(html string) string {
	return htmlTagRe.ReplaceAllString(html, " ")
}
