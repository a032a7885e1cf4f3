package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Epub treats the book as what it is on disk: a zip of XHTML content
// documents. Files are read in name order, which matches spine order for
// every mainstream packaging tool.
func Epub(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	defer archive.Close()

	var names []string
	files := make(map[string]*zip.File)
	for _, f := range archive.File {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".xhtml") || strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm") {
			names = append(names, f.Name)
			files[f.Name] = f
		}
	}
	if len(names) == 0 {
		return "", ErrNoText
	}
	sort.Strings(names)

	var out strings.Builder
	for _, name := range names {
		rc, err := files[name].Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		out.WriteString(stripHTML(string(raw)))
		out.WriteString("\n")
	}
	return out.String(), nil
}
