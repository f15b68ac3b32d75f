package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/docunest/docunest/internal/ai"
	"github.com/docunest/docunest/internal/blob"
	"github.com/docunest/docunest/internal/chunker"
	"github.com/docunest/docunest/internal/config"
	"github.com/docunest/docunest/internal/db"
	"github.com/docunest/docunest/internal/docs"
	"github.com/docunest/docunest/internal/ingest"
	"github.com/docunest/docunest/internal/loader"
	"github.com/docunest/docunest/internal/queue"
	"github.com/docunest/docunest/internal/redisstore"
	"github.com/docunest/docunest/internal/vectorstore/qdrant"
)

const (
	jobRetention = 7 * 24 * time.Hour
	jobKeep      = 100
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

	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("chunker: %v", err)
	}

	index := qdrant.NewStore(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})

	embedder, err := newEmbedder(cfg)
	if err != nil {
		log.Fatalf("embedder: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	pipeline, err := ingest.New(repo, blobs, loader.NewRegistry(), ch, embedder, index,
		ingest.WithPoolSize(cfg.WorkerConcurrency),
		ingest.WithLeases(rds),
	)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	defer pipeline.Release()

	// Separate publisher connection for retry re-enqueues.
	pub, err := queue.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	amqpCh, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer amqpCh.Close()

	if err := queue.DeclareTopology(amqpCh, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := cfg.WorkerConcurrency
	if err := amqpCh.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := amqpCh.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	go purgeLoop(ctx, repo)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, workerID, d, pipeline, pub, cfg.JobBackoffBase)
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleDelivery routes one message to exactly one of: ack (done), ack plus
// delayed re-enqueue (transient failure with attempts left), or nack to the
// DLQ (undecodable message or terminal failure).
func handleDelivery(ctx context.Context, workerID int, d amqp.Delivery, pipeline *ingest.Pipeline, pub *queue.Publisher, backoffBase time.Duration) {
	var m queue.JobMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		log.Printf("worker=%d bad message: %v", workerID, err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := pipeline.Process(ctx, m.JobID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
		}
		return
	}

	if re, ok := ingest.AsRetryable(err); ok {
		delay := queue.Backoff(backoffBase, re.Attempt)
		log.Printf("worker=%d job %s attempt=%d failed cost=%s, retrying in %s: %v",
			workerID, m.JobID, re.Attempt, time.Since(start), delay, re.Err)
		if err := pub.PublishRetry(ctx, m, delay); err != nil {
			log.Printf("worker=%d retry publish failed job=%s err=%v", workerID, m.JobID, err)
			// Requeue so the broker redelivers instead of silently dropping
			// the attempt.
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	// Terminal: the pipeline already finalized the document as error. The
	// message is parked on the DLQ for inspection.
	log.Printf("worker=%d job %s failed cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
	_ = d.Nack(false, false)
}

// purgeLoop trims old finished job rows once an hour.
func purgeLoop(ctx context.Context, repo *docs.Repo) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeJobsBefore(ctx, time.Now().Add(-jobRetention), jobKeep)
			if err != nil {
				log.Printf("job purge failed: %v", err)
			} else if n > 0 {
				log.Printf("purged %d finished jobs", n)
			}
		}
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
