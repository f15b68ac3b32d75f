package docs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/docunest/docunest/internal/blob"
	"github.com/docunest/docunest/internal/queue"
)

// Enqueuer submits ingestion jobs for asynchronous processing.
type Enqueuer interface {
	PublishJob(ctx context.Context, msg queue.JobMessage) error
}

// LeaseChecker reports whether a document currently has an active job.
type LeaseChecker interface {
	ActiveJob(ctx context.Context, documentID string) (string, error)
}

// ChunkRemover drops a document's chunks from the vector index.
type ChunkRemover interface {
	DeleteDocument(ctx context.Context, documentID string) error
}

type ServiceOptions struct {
	MaxUploadSize int64
	AllowedTypes  []string
	MaxAttempts   int
	Leases        LeaseChecker // optional
	Chunks        ChunkRemover // optional, best-effort cleanup on delete
}

// Service owns the document lifecycle on the API side: upload validation,
// blob + row creation, dedup short-circuit, enqueue, list/delete/retry.
// Status transitions past pending belong to the ingestion pipeline.
type Service struct {
	repo    *Repo
	blobs   *blob.Store
	pub     Enqueuer
	leases  LeaseChecker
	chunks  ChunkRemover
	maxSize int64
	allowed map[string]bool
	maxAtt  int
	logger  *slog.Logger
}

func NewService(repo *Repo, blobs *blob.Store, pub Enqueuer, opts ServiceOptions) *Service {
	maxSize := opts.MaxUploadSize
	if maxSize <= 0 {
		maxSize = 50 << 20
	}
	maxAtt := opts.MaxAttempts
	if maxAtt <= 0 {
		maxAtt = 3
	}
	allowed := make(map[string]bool, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		allowed[strings.ToLower(t)] = true
	}
	return &Service{
		repo:    repo,
		blobs:   blobs,
		pub:     pub,
		leases:  opts.Leases,
		chunks:  opts.Chunks,
		maxSize: maxSize,
		allowed: allowed,
		maxAtt:  maxAtt,
		logger:  slog.Default().With("component", "docs"),
	}
}

// MaxUploadSize is the per-file byte cap, exposed so the transport layer can
// reject oversized parts before buffering their bytes.
func (s *Service) MaxUploadSize() int64 { return s.maxSize }

type UploadInput struct {
	Name     string
	Size     int64
	MimeType string // as declared by the client
	Data     []byte
}

type UploadedFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Upload validates every file first and only then writes anything durable:
// a rejected request leaves no rows and no blobs behind. For each accepted
// file the order is blob write, document row, job row, publish. A failed
// row write rolls the blob back so a pending document always has bytes.
func (s *Service) Upload(ctx context.Context, ownerID string, files []UploadInput) ([]UploadedFile, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files in request", ErrValidation)
	}

	for _, f := range files {
		if err := s.validate(f); err != nil {
			return nil, err
		}
	}

	out := make([]UploadedFile, 0, len(files))
	for _, f := range files {
		uf, err := s.accept(ctx, ownerID, f)
		if err != nil {
			return nil, err
		}
		out = append(out, *uf)
	}
	return out, nil
}

func (s *Service) validate(f UploadInput) error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: file name is required", ErrValidation)
	}
	if f.Size > s.maxSize {
		return fmt.Errorf("%w: %s exceeds the %d byte upload limit", ErrValidation, f.Name, s.maxSize)
	}
	mt := declaredMime(f)
	if !s.allowed[mt] {
		return fmt.Errorf("%w: %s has disallowed type %q", ErrValidation, f.Name, mt)
	}
	return nil
}

func (s *Service) accept(ctx context.Context, ownerID string, f UploadInput) (*UploadedFile, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(f.Data)
	hash := hex.EncodeToString(sum[:])
	mt := declaredMime(f)

	locator, err := s.blobs.Save(id, f.Name, f.Data)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		ID:       id,
		Name:     f.Name,
		Path:     locator,
		Size:     f.Size,
		MimeType: mt,
		OwnerID:  ownerID,
		Hash:     &hash,
		Status:   StatusPending,
	}

	// Dedup short-circuit: a processed document with the same bytes for the
	// same owner means the chunks are already in the index.
	dup, err := s.repo.FindProcessedByOwnerAndHash(ctx, ownerID, hash)
	if err != nil {
		_ = s.blobs.Remove(locator)
		return nil, err
	}
	if dup != nil {
		now := time.Now()
		doc.Status = StatusProcessed
		doc.ChunkCount = dup.ChunkCount
		doc.Collection = dup.Collection
		doc.EmbeddingModel = dup.EmbeddingModel
		doc.Extension = dup.Extension
		doc.ProcessedAt = &now
		if err := s.repo.CreateDocument(ctx, doc); err != nil {
			_ = s.blobs.Remove(locator)
			return nil, err
		}
		s.logger.Info("upload deduplicated", "document", id, "duplicate_of", dup.ID)
		return &UploadedFile{ID: id, Name: f.Name, Size: f.Size, Type: mt}, nil
	}

	// The job id is linked at insert time so the document row never exists
	// in pending without its job reference.
	jobID, err := NewID()
	if err != nil {
		_ = s.blobs.Remove(locator)
		return nil, err
	}
	doc.JobID = &jobID

	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		_ = s.blobs.Remove(locator)
		return nil, err
	}

	job := &IngestJob{
		ID:          jobID,
		DocumentID:  id,
		OwnerID:     ownerID,
		BlobPath:    locator,
		Status:      JobQueued,
		MaxAttempts: s.maxAtt,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		_, _ = s.repo.MarkError(ctx, id, "failed to enqueue processing job")
		return nil, err
	}

	if err := s.pub.PublishJob(ctx, queue.JobMessage{JobID: jobID, DocumentID: id}); err != nil {
		// The row stays in error so a manual retry can re-enqueue it; the
		// job row is failed so it never looks like a live queued job.
		_ = s.repo.MarkJobFailed(ctx, jobID, "failed to publish to the job queue")
		_, _ = s.repo.MarkError(ctx, id, "failed to enqueue processing job")
		return nil, err
	}

	return &UploadedFile{ID: id, Name: f.Name, Size: f.Size, Type: mt}, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// Delete soft-deletes an owned document. An in-flight job is not
// interrupted; the pipeline's conditional finalizers see the deleted status
// and drop their result. Blob and indexed chunks are cleaned best-effort.
func (s *Service) Delete(ctx context.Context, ownerID, fileID string) error {
	doc, err := s.repo.GetDocument(ctx, fileID)
	if err != nil {
		return err
	}
	if doc.Status == StatusDeleted {
		return ErrNotFound
	}
	if doc.OwnerID != ownerID {
		return ErrForbidden
	}

	if err := s.repo.SoftDelete(ctx, fileID); err != nil {
		return err
	}

	if s.chunks != nil {
		if err := s.chunks.DeleteDocument(ctx, fileID); err != nil {
			s.logger.Warn("chunk cleanup failed", "document", fileID, "err", err)
		}
	}
	if err := s.blobs.Remove(doc.Path); err != nil {
		s.logger.Warn("blob cleanup failed", "document", fileID, "err", err)
	}
	return nil
}

func (s *Service) Status(ctx context.Context, fileID string) (*Document, error) {
	doc, err := s.repo.GetDocument(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if doc.Status == StatusDeleted {
		return nil, ErrNotFound
	}
	return doc, nil
}

// Retry re-enqueues an errored document. Valid only when status is error
// and no job currently holds the document's lease.
func (s *Service) Retry(ctx context.Context, fileID string) (*Document, error) {
	doc, err := s.repo.GetDocument(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if doc.Status == StatusDeleted {
		return nil, ErrNotFound
	}
	if doc.Status != StatusError {
		return nil, fmt.Errorf("%w: document status is %q, only errored documents can be retried", ErrValidation, doc.Status)
	}
	if s.leases != nil {
		active, err := s.leases.ActiveJob(ctx, fileID)
		if err != nil {
			s.logger.Warn("lease check failed", "document", fileID, "err", err)
		} else if active != "" {
			return nil, fmt.Errorf("%w: a job is already active for this document", ErrValidation)
		}
	}

	jobID, err := NewID()
	if err != nil {
		return nil, err
	}

	// Reset first: a rejected reset must not leave a queued job row behind.
	reset, err := s.repo.ResetForRetry(ctx, doc.ID, jobID)
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, fmt.Errorf("%w: document state changed, retry rejected", ErrValidation)
	}

	job := &IngestJob{
		ID:          jobID,
		DocumentID:  doc.ID,
		OwnerID:     doc.OwnerID,
		BlobPath:    doc.Path,
		Status:      JobQueued,
		MaxAttempts: s.maxAtt,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		_, _ = s.repo.MarkError(ctx, doc.ID, "failed to enqueue processing job")
		return nil, err
	}

	if err := s.pub.PublishJob(ctx, queue.JobMessage{JobID: jobID, DocumentID: doc.ID}); err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, "failed to publish to the job queue")
		_, _ = s.repo.MarkError(ctx, doc.ID, "failed to enqueue processing job")
		return nil, err
	}

	return s.repo.GetDocument(ctx, doc.ID)
}

func declaredMime(f UploadInput) string {
	mt := strings.ToLower(strings.TrimSpace(f.MimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "" || mt == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))); byExt != "" {
			mt = byExt
			if i := strings.Index(mt, ";"); i >= 0 {
				mt = strings.TrimSpace(mt[:i])
			}
		}
	}
	return mt
}
