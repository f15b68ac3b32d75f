// Package loader turns uploaded bytes into plain-text segments, dispatched
// by file extension. New formats register a Loader; nothing branches on
// extension outside the registry.
package loader

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Segment is one unit of loader output: plain text plus a human-readable
// source locator ("page 3", "row 12", "").
type Segment struct {
	Text   string
	Source string
}

type Loader interface {
	Load(ctx context.Context, data []byte) ([]Segment, error)
}

// UnsupportedFormatError is a terminal processing failure: the queue must
// not retry it.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file type: %q", e.Extension)
}

type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewRegistry returns a registry with all built-in formats registered.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}

	text := &TextLoader{}
	r.Register(".txt", text)
	r.Register(".md", text)
	r.Register(".markdown", text)

	r.Register(".csv", &CSVLoader{})
	r.Register(".json", &JSONLoader{})
	r.Register(".pdf", &PDFLoader{})

	docx := &DocxLoader{}
	r.Register(".docx", docx)
	r.Register(".doc", docx)

	return r
}

func (r *Registry) Register(ext string, l Loader) {
	ext = normalizeExt(ext)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[ext] = l
}

// Get resolves the loader for an extension. Unknown extensions are a typed
// UnsupportedFormatError.
func (r *Registry) Get(ext string) (Loader, error) {
	key := normalizeExt(ext)
	r.mu.RLock()
	l, ok := r.loaders[key]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedFormatError{Extension: ext}
	}
	return l, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
