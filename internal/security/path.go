package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, NUL bytes and ".." segments. Absolute
// paths are allowed.
func ValidateFilePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("file path contains a NUL byte")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}
	return nil
}

// ValidateFileName checks that name is a bare file name with no directory
// component, as sent in a multipart upload.
func ValidateFileName(name string) error {
	if err := ValidateFilePath(name); err != nil {
		return err
	}
	if strings.ContainsAny(name, `/\`) || name == "." {
		return fmt.Errorf("file name must not contain a directory: %s", name)
	}
	return nil
}
