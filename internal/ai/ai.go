package ai

import "context"

type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// Provider completes a prompt. The caller owns prompt assembly; providers
// only translate messages to their wire format.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Embedder maps texts to fixed-dimension vectors. Model identifies the
// embedding function and is recorded per document for reproducibility.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
