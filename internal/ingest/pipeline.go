// Package ingest drives a document through its processing state machine:
// pending → processing → {processed | error}, with the load, chunk, embed
// and index steps in between. It is the only component that writes a
// document's status past pending.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/docunest/docunest/internal/ai"
	"github.com/docunest/docunest/internal/blob"
	"github.com/docunest/docunest/internal/chunker"
	"github.com/docunest/docunest/internal/docs"
	"github.com/docunest/docunest/internal/loader"
	"github.com/docunest/docunest/internal/vectorstore"
)

// LeaseStore guards against two jobs processing the same document at once.
type LeaseStore interface {
	AcquireLease(ctx context.Context, documentID, jobID string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, documentID, jobID string) error
}

type Pipeline struct {
	repo     *docs.Repo
	blobs    *blob.Store
	loaders  *loader.Registry
	chunker  *chunker.Chunker
	embedder ai.Embedder
	index    vectorstore.Store
	leases   LeaseStore

	pool      *ants.Pool
	batchSize int
	leaseTTL  time.Duration
	logger    *slog.Logger
}

type Option func(*Pipeline) error

// WithPoolSize bounds how many embedding batches run concurrently.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets how many chunks go to the embedder per call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.batchSize = n
		return nil
	}
}

func WithLeases(ls LeaseStore) Option {
	return func(p *Pipeline) error {
		p.leases = ls
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

func New(
	repo *docs.Repo,
	blobs *blob.Store,
	loaders *loader.Registry,
	ch *chunker.Chunker,
	embedder ai.Embedder,
	index vectorstore.Store,
	opts ...Option,
) (*Pipeline, error) {
	if repo == nil || blobs == nil || loaders == nil || ch == nil || embedder == nil || index == nil {
		return nil, fmt.Errorf("ingest: all collaborators are required")
	}

	pool, err := ants.NewPool(2)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		repo:      repo,
		blobs:     blobs,
		loaders:   loaders,
		chunker:   ch,
		embedder:  embedder,
		index:     index,
		pool:      pool,
		batchSize: 16,
		leaseTTL:  10 * time.Minute,
		logger:    slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Process runs one job attempt end to end. A nil return means the delivery
// can be acked; a RetryableError asks the worker for a delayed redelivery;
// any other error means the job is dead (the document has already been
// finalized as error here).
func (p *Pipeline) Process(ctx context.Context, jobID string) error {
	job, err := p.repo.MarkJobRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}

	doc, err := p.repo.GetDocument(ctx, job.DocumentID)
	if err != nil {
		_ = p.repo.MarkJobFailed(ctx, job.ID, err.Error())
		return fmt.Errorf("job %s: document %s: %w", jobID, job.DocumentID, err)
	}
	if doc.Status == docs.StatusDeleted {
		// Deleted while queued; nothing to do.
		_ = p.repo.MarkJobFailed(ctx, job.ID, "document deleted before processing")
		return nil
	}

	if p.leases != nil {
		got, err := p.leases.AcquireLease(ctx, doc.ID, job.ID, p.leaseTTL)
		if err != nil {
			p.logger.Warn("lease acquire failed", "document", doc.ID, "err", err)
		} else if !got {
			return p.fail(ctx, job, doc, transient(fmt.Errorf("another job is active for document %s", doc.ID)))
		} else {
			defer func() {
				if err := p.leases.ReleaseLease(context.WithoutCancel(ctx), doc.ID, job.ID); err != nil {
					p.logger.Warn("lease release failed", "document", doc.ID, "err", err)
				}
			}()
		}
	}

	// Visible before any heavy work: a crash from here on shows up as a
	// stuck processing row, not a silently pending one.
	moved, err := p.repo.MarkProcessing(ctx, doc.ID)
	if err != nil {
		return p.fail(ctx, job, doc, transient(err))
	}
	if !moved {
		_ = p.repo.MarkJobFailed(ctx, job.ID, "document no longer processable")
		return nil
	}

	chunkCount, err := p.run(ctx, job, doc)
	if err != nil {
		return p.fail(ctx, job, doc, err)
	}

	finalized, err := p.repo.MarkProcessed(ctx, doc.ID, chunkCount, p.index.Collection(), p.embedder.Model())
	if err != nil {
		return p.fail(ctx, job, doc, transient(err))
	}
	if !finalized {
		// Deleted (or superseded) while we were working; drop our output.
		if err := p.index.DeleteDocument(ctx, doc.ID); err != nil {
			p.logger.Warn("cleanup of superseded chunks failed", "document", doc.ID, "err", err)
		}
		_ = p.repo.MarkJobFailed(ctx, job.ID, "document state changed during processing")
		return nil
	}

	if err := p.repo.MarkJobSucceeded(ctx, job.ID, chunkCount); err != nil {
		p.logger.Warn("job bookkeeping failed", "job", job.ID, "err", err)
	}
	p.logger.Info("document processed", "document", doc.ID, "chunks", chunkCount, "attempt", job.Attempts)
	return nil
}

// run performs metadata resolution, load, chunk, embed and index. It never
// touches the document's status; Process owns finalization.
func (p *Pipeline) run(ctx context.Context, job *docs.IngestJob, doc *docs.Document) (int, error) {
	data, err := p.blobs.Read(doc.Path)
	if err != nil {
		return 0, transient(fmt.Errorf("read blob: %w", err))
	}

	// Resolve metadata from the stored bytes and name, not from whatever
	// the client declared, and persist before the expensive parse.
	ext := strings.ToLower(filepath.Ext(doc.Name))
	mimeType := mime.TypeByExtension(ext)
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if err := p.repo.SetFileMetadata(ctx, doc.ID, mimeType, strings.TrimPrefix(ext, "."), hash); err != nil {
		return 0, transient(fmt.Errorf("persist metadata: %w", err))
	}

	ldr, err := p.loaders.Get(ext)
	if err != nil {
		return 0, err // UnsupportedFormatError, terminal
	}
	segments, err := ldr.Load(ctx, data)
	if err != nil {
		return 0, err // deterministic parse failure, terminal
	}

	var texts []string
	var sources []string
	for _, seg := range segments {
		for _, window := range p.chunker.Split(seg.Text) {
			texts = append(texts, window)
			sources = append(sources, seg.Source)
		}
	}

	// Zero chunks is a valid processed state, nothing to embed or index.
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := p.embedAll(ctx, texts)
	if err != nil {
		return 0, transient(fmt.Errorf("embed chunks: %w", err))
	}

	now := time.Now()
	chunks := make([]vectorstore.Chunk, len(texts))
	for i := range texts {
		chunks[i] = vectorstore.Chunk{
			ID:     vectorstore.PointID(doc.ID, i),
			Vector: vectors[i],
			Text:   texts[i],
			Metadata: vectorstore.Metadata{
				DocumentID:  doc.ID,
				OwnerID:     doc.OwnerID,
				FileName:    doc.Name,
				MimeType:    mimeType,
				ContentHash: hash,
				ChunkIndex:  i,
				Source:      sources[i],
				Timestamp:   now,
			},
		}
	}

	// Replace-then-write: a retry that yields fewer chunks must not leave
	// stale points behind, and point ids are deterministic anyway.
	if err := p.index.DeleteDocument(ctx, doc.ID); err != nil {
		return 0, transient(fmt.Errorf("clear previous chunks: %w", err))
	}
	if err := p.index.Upsert(ctx, chunks); err != nil {
		return 0, transient(fmt.Errorf("index chunks: %w", err))
	}

	return len(chunks), nil
}

// embedAll embeds texts in fixed-size batches on the bounded pool.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()

			mu.Lock()
			aborted := firstErr != nil
			mu.Unlock()
			if aborted {
				return
			}

			out, err := p.embedder.Embed(ctx, texts[start:end])
			if err == nil && len(out) != end-start {
				err = fmt.Errorf("expected %d embeddings, got %d", end-start, len(out))
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			copy(vectors[start:end], out)
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// fail routes every mid-pipeline failure to exactly one outcome: a delayed
// retry while attempts remain (transient only), or a terminal error status
// on the document.
func (p *Pipeline) fail(ctx context.Context, job *docs.IngestJob, doc *docs.Document, err error) error {
	if isTransient(err) && job.Attempts < job.MaxAttempts {
		p.logger.Warn("attempt failed, will retry",
			"document", doc.ID, "job", job.ID, "attempt", job.Attempts, "err", err)
		return &RetryableError{Attempt: job.Attempts, Err: err}
	}

	if _, markErr := p.repo.MarkError(ctx, doc.ID, err.Error()); markErr != nil {
		p.logger.Error("failed to record error status", "document", doc.ID, "err", markErr)
	}
	if jobErr := p.repo.MarkJobFailed(ctx, job.ID, err.Error()); jobErr != nil {
		p.logger.Error("failed to record job failure", "job", job.ID, "err", jobErr)
	}
	p.logger.Error("document failed", "document", doc.ID, "job", job.ID, "attempt", job.Attempts, "err", err)
	return err
}
