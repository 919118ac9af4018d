// Package uploads stores user supplied images on the shared filesystem.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrUnsupportedType is returned for files whose extension is not allowed.
var ErrUnsupportedType = errors.New("unsupported file type")

// AllowedExtensions lists the accepted image extensions, lower case, without dot.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "webp", "heic", "heif"}

const timestampLayout = "20060102_150405_"

// Store writes uploads into Dir under timestamp-prefixed names. Concurrent
// uploads with the same name in the same second overwrite each other.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the upload directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the filesystem path of a stored upload.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, filepath.Base(name)) }

// Allowed reports whether filename has an accepted image extension.
func Allowed(filename string) bool {
	ext := extension(filename)
	if ext == "" {
		return false
	}
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// Save copies src into the upload directory and returns the stored name.
func (s *Store) Save(filename string, src io.Reader) (string, error) {
	if !Allowed(filename) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}

	safe := SecureFilename(filename)
	if !Allowed(safe) {
		safe = "upload." + extension(filename)
	}
	name := s.now().Format(timestampLayout) + safe
	path := filepath.Join(s.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return name, nil
}

// SecureFilename reduces a client supplied name to a safe ASCII file name
// the way werkzeug's secure_filename does: accents are folded, path
// separators and whitespace runs become a single '_', anything outside
// [A-Za-z0-9_.-] is removed and leading dots or underscores are trimmed.
// Both '/' and '\\' count as separators.
func SecureFilename(name string) string {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case r == '/' || r == '\\':
			ascii.WriteByte(' ')
		case r < unicode.MaxASCII:
			ascii.WriteRune(r)
		}
	}

	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(ascii.String()), "_") {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "upload"
	}
	return out
}
