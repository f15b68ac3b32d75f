// Package vectorstore defines the index contract for embedded chunks and
// its implementations.
package vectorstore

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Metadata travels with every chunk so retrieval can be scoped without
// physical partitioning. OwnerID is mandatory: cross-tenant isolation is a
// query-time filter on it.
type Metadata struct {
	DocumentID  string    `json:"document_id"`
	OwnerID     string    `json:"owner_id"`
	FileName    string    `json:"file_name"`
	MimeType    string    `json:"mime_type"`
	ContentHash string    `json:"content_hash"`
	ChunkIndex  int       `json:"chunk_index"`
	Source      string    `json:"source,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Chunk struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata Metadata
}

type Result struct {
	Text     string
	Score    float32
	Metadata Metadata
}

// Store is the vector index. Upserting the same chunk id replaces it, and
// DeleteDocument drops every chunk of a document, so re-processing a
// document never duplicates entries.
type Store interface {
	Collection() string
	Upsert(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, vector []float32, ownerID string, topK int) ([]Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// PointID derives a deterministic UUID from document id and chunk index, so
// a repeat run upserts over its previous points instead of appending.
func PointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID+":"+strconv.Itoa(chunkIndex))).String()
}
