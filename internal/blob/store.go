package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store keeps uploaded bytes on local disk under a single root directory.
// Locators are flat file names of the form "<id>-<sanitized original name>";
// the document id prefix makes collisions impossible and keeps the original
// name visible for operators.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("blob: root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// Save writes data under a locator derived from id and the client-supplied
// name. The name is never trusted for path construction.
func (s *Store) Save(id, name string, data []byte) (string, error) {
	locator := id + "-" + sanitize(name)
	path, err := s.resolve(locator)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("blob: write %s: %w", locator, err)
	}
	return locator, nil
}

func (s *Store) Read(locator string) ([]byte, error) {
	path, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", locator, err)
	}
	return data, nil
}

func (s *Store) Remove(locator string) error {
	path, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: remove %s: %w", locator, err)
	}
	return nil
}

// resolve joins the locator to the root and rejects anything that would
// escape it.
func (s *Store) resolve(locator string) (string, error) {
	if locator == "" {
		return "", errors.New("blob: empty locator")
	}
	path := filepath.Join(s.root, filepath.Clean("/"+locator))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("blob: locator escapes root: %q", locator)
	}
	return path, nil
}

func sanitize(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "upload"
	}
	return out
}
