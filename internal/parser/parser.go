package parser

import (
	"context"
	"path/filepath"
	"strings"
)

// Extractor converts a report file on disk into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// SupportedExtensions lists file extensions this tool can handle.
var SupportedExtensions = map[string]bool{
	".pdf": true,
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}
