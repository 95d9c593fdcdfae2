package admin

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// AllowedExtensions lists the document types the knowledge base accepts.
var AllowedExtensions = []string{".pdf", ".txt", ".md"}

var extensionTypes = map[string]string{
	".pdf": "application/pdf",
	".txt": "text/plain",
	".md":  "text/markdown",
}

// detectType checks path against the allow-list by extension and by content
// and returns the content type to upload it with. This is advisory filtering;
// the backend does its own validation.
func detectType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	declared, ok := extensionTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (supports PDF, TXT, MD)", ErrUnsupportedType, ext)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", filepath.Base(path), err)
	}

	want := "text/plain"
	if declared == "application/pdf" {
		want = "application/pdf"
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(want) {
			return declared, nil
		}
	}
	return "", fmt.Errorf("%w: %s content is %s", ErrUnsupportedType, ext, mt.String())
}
