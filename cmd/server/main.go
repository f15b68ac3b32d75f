package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/docunest/docunest/internal/ai"
	"github.com/docunest/docunest/internal/blob"
	"github.com/docunest/docunest/internal/config"
	"github.com/docunest/docunest/internal/db"
	"github.com/docunest/docunest/internal/docs"
	"github.com/docunest/docunest/internal/httpapi"
	"github.com/docunest/docunest/internal/queue"
	"github.com/docunest/docunest/internal/redisstore"
	"github.com/docunest/docunest/internal/retrieval"
	"github.com/docunest/docunest/internal/vectorstore/qdrant"
)

func main() {
	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	repo := docs.NewRepo(gdb)

	blobs, err := blob.NewStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	pub, err := queue.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit: %v", err)
	}
	defer pub.Close()

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	index := qdrant.NewStore(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})

	embedder, err := newEmbedder(cfg)
	if err != nil {
		log.Fatalf("embedder: %v", err)
	}

	reg := ai.NewRegistry()
	reg.Register("ollama", cfg.OllamaModel, func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	reg.Register("openai", "", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, model)
	})

	docsSvc := docs.NewService(repo, blobs, pub, docs.ServiceOptions{
		MaxUploadSize: cfg.MaxUploadSize,
		AllowedTypes:  cfg.AllowedTypes,
		MaxAttempts:   cfg.JobMaxAttempts,
		Leases:        rds,
		Chunks:        index,
	})

	retrievalSvc := retrieval.NewService(repo, embedder, index, reg,
		cfg.AIProvider, "", cfg.ChatContextChunks)

	r := httpapi.NewRouter(docsSvc, repo, retrievalSvc)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func newEmbedder(cfg config.Config) (ai.Embedder, error) {
	switch strings.ToLower(cfg.EmbedProvider) {
	case "", "ollama":
		return ai.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.EmbedModel), nil
	default:
		return ai.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbedModel)
	}
}
