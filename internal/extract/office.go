package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Docx and Pptx read the OOXML containers directly: both formats are zip
// archives whose text lives in `t` elements (w:t for word processors,
// a:t for presentations).

func Docx(path string) (string, error) {
	return ooxmlText(path, func(name string) bool {
		return name == "word/document.xml"
	})
}

func Pptx(path string) (string, error) {
	return ooxmlText(path, func(name string) bool {
		return strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml")
	})
}

func ooxmlText(path string, match func(name string) bool) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	var names []string
	files := make(map[string]*zip.File)
	for _, f := range archive.File {
		if match(f.Name) {
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
		text, err := xmlTextContent(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", name, err)
		}
		out.WriteString(text)
		out.WriteString("\n")
	}
	return out.String(), nil
}

// xmlTextContent collects character data of every `t` element, inserting
// breaks at paragraph ends so chunking sees structure.
func xmlTextContent(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var out strings.Builder
	var inText bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return out.String(), nil
}
