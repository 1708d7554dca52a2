package constants

import (
	"path/filepath"
	"strings"
)

// MimeTypes maps training file extensions to the content type sent with them.
var MimeTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".json": "application/json",
}

// DefaultMimeType is the fallback for unknown extensions.
const DefaultMimeType = "application/octet-stream"

// MimeTypeFor returns the content type for filename by extension.
func MimeTypeFor(filename string) string {
	if mt, ok := MimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return DefaultMimeType
}
