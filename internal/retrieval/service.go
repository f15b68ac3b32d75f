// Package retrieval answers user queries against the vector index and
// hands the retrieved context to a generation provider.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docunest/docunest/internal/ai"
	"github.com/docunest/docunest/internal/docs"
	"github.com/docunest/docunest/internal/vectorstore"
)

const systemPrompt = `You are a helpful assistant that answers questions using the provided document excerpts.
Base your answer only on the excerpts. If they do not contain the answer, say so instead of guessing.`

const noContextPrompt = `You are a helpful assistant. No relevant documents were found for this question.
Tell the user you have no uploaded documents covering this topic, then answer from general knowledge if you can, clearly marked as such.`

type ContextChunk struct {
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	FileName   string  `json:"file_name"`
	Source     string  `json:"source,omitempty"`
	Score      float32 `json:"score"`
}

type Answer struct {
	Text    string         `json:"text"`
	Context []ContextChunk `json:"context"`
}

type Service struct {
	repo     *docs.Repo
	embedder ai.Embedder
	index    vectorstore.Store
	registry *ai.Registry

	provider string
	model    string
	topK     int
	logger   *slog.Logger
}

func NewService(repo *docs.Repo, embedder ai.Embedder, index vectorstore.Store, registry *ai.Registry, provider, model string, topK int) *Service {
	if topK <= 0 || topK > 50 {
		topK = 5
	}
	return &Service{
		repo:     repo,
		embedder: embedder,
		index:    index,
		registry: registry,
		provider: provider,
		model:    model,
		topK:     topK,
		logger:   slog.Default().With("component", "retrieval"),
	}
}

// Query embeds the question with the same embedding capability used at
// ingestion, fetches the owner's top-k chunks, drops hits whose document is
// not currently processed, and forwards the rest verbatim as grounding
// context. An empty index is a valid "no context" result, not an error.
func (s *Service) Query(ctx context.Context, ownerID, query string) (*Answer, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: userId is required", docs.ErrValidation)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: userQuery is required", docs.ErrValidation)
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}

	hits, err := s.index.Search(ctx, vecs[0], ownerID, s.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	// Join against the record store: chunks whose owning document is no
	// longer processed (deleted, reprocessing, orphaned by a crash) must
	// not surface.
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Metadata.DocumentID)
	}
	processed, err := s.repo.ProcessedIDs(ctx, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("verify documents: %w", err)
	}

	var contextChunks []ContextChunk
	var contextDocIDs []string
	seen := map[string]bool{}
	for _, h := range hits {
		if !processed[h.Metadata.DocumentID] {
			continue
		}
		contextChunks = append(contextChunks, ContextChunk{
			Text:       h.Text,
			DocumentID: h.Metadata.DocumentID,
			FileName:   h.Metadata.FileName,
			Source:     h.Metadata.Source,
			Score:      h.Score,
		})
		if !seen[h.Metadata.DocumentID] {
			seen[h.Metadata.DocumentID] = true
			contextDocIDs = append(contextDocIDs, h.Metadata.DocumentID)
		}
	}

	provider, err := s.registry.Get(ctx, s.provider, s.model)
	if err != nil {
		return nil, err
	}

	reply, err := provider.Chat(ctx, buildMessages(query, contextChunks))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	answer := &Answer{Text: reply, Context: contextChunks}
	if err := s.recordTurn(ctx, ownerID, query, reply, contextDocIDs); err != nil {
		// History is best-effort; the answer is already computed.
		s.logger.Warn("failed to persist chat turn", "owner", ownerID, "err", err)
	}
	return answer, nil
}

// History returns the owner's stored chat turns, oldest first.
func (s *Service) History(ctx context.Context, ownerID string, limit int) ([]docs.ChatMessage, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", docs.ErrValidation)
	}
	return s.repo.ListMessages(ctx, ownerID, limit)
}

func buildMessages(query string, chunks []ContextChunk) []ai.Message {
	if len(chunks) == 0 {
		return []ai.Message{
			{Role: "system", Content: noContextPrompt},
			{Role: "user", Content: query},
		}
	}

	var b strings.Builder
	b.WriteString("Document excerpts:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, c.FileName)
		if c.Source != "" {
			fmt.Fprintf(&b, " (%s)", c.Source)
		}
		b.WriteString("\n")
		b.WriteString(c.Text)
		b.WriteString("\n")
	}

	return []ai.Message{
		{Role: "system", Content: systemPrompt + "\n\n" + b.String()},
		{Role: "user", Content: query},
	}
}

func (s *Service) recordTurn(ctx context.Context, ownerID, query, reply string, contextDocIDs []string) error {
	encoded := "[]"
	if len(contextDocIDs) > 0 {
		raw, err := json.Marshal(contextDocIDs)
		if err != nil {
			return err
		}
		encoded = string(raw)
	}

	userID, err := docs.NewID()
	if err != nil {
		return err
	}
	userMsg := &docs.ChatMessage{
		ID:      userID,
		OwnerID: ownerID,
		Role:    "user",
		Content: query,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return err
	}

	assistantID, err := docs.NewID()
	if err != nil {
		return err
	}
	return s.repo.InsertMessage(ctx, &docs.ChatMessage{
		ID:              assistantID,
		OwnerID:         ownerID,
		Role:            "assistant",
		Content:         reply,
		ContextFileIDs:  encoded,
		ParentMessageID: &userMsg.ID,
	})
}
