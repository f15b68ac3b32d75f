// Package memory is an in-process vector store used in tests and for
// dependency-free local runs. Cosine similarity, linear scan.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/docunest/docunest/internal/vectorstore"
)

type Store struct {
	collection string

	mu     sync.RWMutex
	points map[string]vectorstore.Chunk
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore(collection string) *Store {
	if collection == "" {
		collection = "user-docs"
	}
	return &Store{
		collection: collection,
		points:     make(map[string]vectorstore.Chunk),
	}
}

func (s *Store) Collection() string { return s.collection }

func (s *Store) Upsert(_ context.Context, chunks []vectorstore.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.points[c.ID] = c
	}
	return nil
}

func (s *Store) Search(_ context.Context, vector []float32, ownerID string, topK int) ([]vectorstore.Result, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	var results []vectorstore.Result
	for _, c := range s.points {
		if c.Metadata.OwnerID != ownerID {
			continue
		}
		results = append(results, vectorstore.Result{
			Text:     c.Text,
			Score:    cosine(vector, c.Vector),
			Metadata: c.Metadata,
		})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Store) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.points {
		if c.Metadata.DocumentID == documentID {
			delete(s.points, id)
		}
	}
	return nil
}

// Len reports the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
