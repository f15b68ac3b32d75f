package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider serves any OpenAI-compatible chat endpoint through
// langchaingo.
type OpenAIProvider struct {
	llm *openai.LLM
}

func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	opts := []openai.Option{openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if apiKey == "" {
		// Local OpenAI-compatible services accept any token.
		apiKey = "none"
	}
	opts = append(opts, openai.WithToken(apiKey))

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{llm: llm}, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var role llms.ChatMessageType
		switch strings.ToLower(m.Role) {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	resp, err := p.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return resp.Choices[0].Content, nil
}

// OpenAIEmbedder wraps a langchaingo embedder over any OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
}

func NewOpenAIEmbedder(baseURL, apiKey, model string) (*OpenAIEmbedder, error) {
	opts := []openai.Option{openai.WithEmbeddingModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if apiKey == "" {
		apiKey = "none"
	}
	opts = append(opts, openai.WithToken(apiKey))

	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return &OpenAIEmbedder{embedder: embedder, model: model}, nil
}

func (e *OpenAIEmbedder) Model() string { return e.model }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embedder.EmbedDocuments(ctx, texts)
}
