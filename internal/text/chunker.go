package text

import "strings"

const (
	// DefaultChunkSize and DefaultChunkOverlap are pipeline-wide constants,
	// independent of plan.
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// Chunk splits text into overlapping windows of at most size characters.
// The window prefers to break on semantic boundaries — paragraph, then
// line, then word — and falls back to a hard character split when a window
// contains none. Consecutive chunks overlap by up to `overlap` characters so
// context is not lost at the seams.
//
// Windows are measured in runes, never bytes, so a hard split can't land
// inside a multi-byte character.
//
// The result is deterministic: the same input always produces the same
// chunks, which keeps re-runs idempotent downstream.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := boundary(runes[start:end])
		chunk := strings.TrimSpace(string(runes[start : start+cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := start + cut - overlap
		if next <= start {
			// Guarantee forward progress even for pathological inputs.
			next = start + cut
		}
		start = next
	}
	return chunks
}

// boundary picks the cut point within one window: the last paragraph break,
// else the last line break, else the last space, else the full window.
// Breaks in the first half are ignored — a cut there would shrink the
// window so much that overlap stops meaning anything.
func boundary(window []rune) int {
	half := len(window) / 2

	for i := len(window) - 2; i > half; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i
		}
	}
	for i := len(window) - 1; i > half; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	for i := len(window) - 1; i > half; i-- {
		if window[i] == ' ' {
			return i
		}
	}
	return len(window)
}
