// Package qdrant is a minimal REST client to Qdrant. It assumes cosine
// distance and creates the collection lazily on the first write.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/docunest/docunest/internal/vectorstore"
)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	ensured bool
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Store) Collection() string { return s.collection }

func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if dimension <= 0 {
		return errors.New("qdrant: invalid vector dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 if the collection already exists with this schema.
	if err := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

func (s *Store) Upsert(ctx context.Context, chunks []vectorstore.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(chunks[0].Vector)); err != nil {
		return err
	}

	points := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		points[i] = map[string]any{
			"id":     c.ID,
			"vector": c.Vector,
			"payload": map[string]any{
				"document_id":  c.Metadata.DocumentID,
				"owner_id":     c.Metadata.OwnerID,
				"file_name":    c.Metadata.FileName,
				"mime_type":    c.Metadata.MimeType,
				"content_hash": c.Metadata.ContentHash,
				"chunk_index":  c.Metadata.ChunkIndex,
				"source":       c.Metadata.Source,
				"timestamp":    c.Metadata.Timestamp.Format(time.RFC3339),
				"text":         c.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
}

func (s *Store) Search(ctx context.Context, vector []float32, ownerID string, topK int) ([]vectorstore.Result, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "owner_id", "match": map[string]any{"value": ownerID}},
			},
		},
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}

	results := make([]vectorstore.Result, 0, len(resp.Result))
	for _, r := range resp.Result {
		res := vectorstore.Result{Score: r.Score}
		if v, ok := r.Payload["text"].(string); ok {
			res.Text = v
		}
		if v, ok := r.Payload["document_id"].(string); ok {
			res.Metadata.DocumentID = v
		}
		if v, ok := r.Payload["owner_id"].(string); ok {
			res.Metadata.OwnerID = v
		}
		if v, ok := r.Payload["file_name"].(string); ok {
			res.Metadata.FileName = v
		}
		if v, ok := r.Payload["mime_type"].(string); ok {
			res.Metadata.MimeType = v
		}
		if v, ok := r.Payload["content_hash"].(string); ok {
			res.Metadata.ContentHash = v
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			res.Metadata.ChunkIndex = int(v)
		}
		if v, ok := r.Payload["source"].(string); ok {
			res.Metadata.Source = v
		}
		if v, ok := r.Payload["timestamp"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				res.Metadata.Timestamp = ts
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), body, nil)
	// A missing collection means there is nothing to delete. Any other
	// failure is reported.
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

// statusError carries the HTTP status of a rejected Qdrant call so callers
// can tell a missing collection apart from a real failure.
type statusError struct {
	code   int
	method string
	url    string
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.status)
}

func (s *Store) do(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, method: method, url: url, status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
