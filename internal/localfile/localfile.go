// Package localfile opens user-supplied PDF paths for upload and export.
// Symlinks are refused on the final component for both reads and writes.
package localfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/memomind/internal/errors"
)

// Mode selects read (upload) or write (export) checks.
type Mode int

const (
	Read  Mode = iota // upload: file must exist
	Write             // export: file is created or truncated
)

// PDFExt is the only extension accepted in either direction.
const PDFExt = ".pdf"

// Check validates path and returns its absolute form.
func Check(path string, mode Mode) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.NewInvalidRequest("a .pdf file is required")
	}
	if containsTraversal(path) {
		return "", errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}
	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), PDFExt) {
		if mode == Read {
			return "", errors.NewInvalidRequest("only .pdf files can be uploaded")
		}
		return "", errors.NewInvalidRequest("output path must have .pdf extension")
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	info, err := os.Lstat(abs)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		return "", errors.NewInvalidRequest("path must not be a symlink")
	case err == nil && info.IsDir():
		return "", errors.NewInvalidRequest("path is a directory")
	case err != nil && os.IsNotExist(err) && mode == Read:
		return "", errors.NewNotFound(path)
	}

	if mode == Write {
		if dir, err := os.Stat(filepath.Dir(abs)); err != nil || !dir.IsDir() {
			return "", errors.NewInvalidRequest("output directory does not exist: " + filepath.Dir(abs))
		}
	}
	return abs, nil
}

// Open checks path and opens it for reading.
func Open(path string) (*os.File, error) {
	abs, err := Check(path, Read)
	if err != nil {
		return nil, err
	}
	return openNoFollowRead(abs)
}

// WriteFile checks path and writes data to it, replacing any existing file.
func WriteFile(path string, data []byte) error {
	abs, err := Check(path, Write)
	if err != nil {
		return err
	}
	f, err := openNoFollow(abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.NewInternal(fmt.Errorf("write %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("close %s: %w", path, err))
	}
	return nil
}

// SafeName turns an item name into a filename stem.
func SafeName(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 32 || r == 127:
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-_")
	if s == "" {
		return "unnamed"
	}
	return s
}

func containsTraversal(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if part == ".." {
			return true
		}
	}
	return false
}
