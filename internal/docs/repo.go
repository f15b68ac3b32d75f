package docs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateDocument(ctx context.Context, d *Document) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *Repo) GetDocument(ctx context.Context, id string) (*Document, error) {
	var d Document
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListByOwner returns the owner's documents, newest first, excluding
// soft-deleted rows.
func (r *Repo) ListByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	var out []Document
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status <> ?", ownerID, StatusDeleted).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// FindProcessedByOwnerAndHash locates a processed duplicate for dedup
// short-circuiting. Returns nil when there is none.
func (r *Repo) FindProcessedByOwnerAndHash(ctx context.Context, ownerID, hash string) (*Document, error) {
	var d Document
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND hash = ? AND status = ?", ownerID, hash, StatusProcessed).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// MarkProcessing flips a document into processing before any heavy work
// starts. Conditional on the row not being soft-deleted so a delete racing
// the worker wins. Reports whether the transition happened.
func (r *Repo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status IN ?", id, []Status{StatusPending, StatusError, StatusProcessing}).
		Update("status", StatusProcessing)
	return res.RowsAffected > 0, res.Error
}

// SetFileMetadata persists resolved mime/extension/hash before the expensive
// parse step so partial progress is inspectable.
func (r *Repo) SetFileMetadata(ctx context.Context, id, mimeType, extension, hash string) error {
	return r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"mime_type": mimeType,
			"extension": extension,
			"hash":      hash,
		}).Error
}

// MarkProcessed finalizes a successful run. Conditional on status still
// being processing: a worker finishing after a delete (or a superseding
// attempt) must not clobber newer state. Reports whether the write landed.
func (r *Repo) MarkProcessed(ctx context.Context, id string, chunkCount int, collection, embeddingModel string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{
			"status":          StatusProcessed,
			"chunk_count":     chunkCount,
			"collection":      collection,
			"embedding_model": embeddingModel,
			"processed_at":    now,
			"error_message":   nil,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkError finalizes a failed run, leaving chunk_count/collection unset.
func (r *Repo) MarkError(ctx context.Context, id string, msg string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status IN ?", id, []Status{StatusPending, StatusProcessing}).
		Updates(map[string]any{
			"status":        StatusError,
			"error_message": msg,
			"chunk_count":   nil,
			"collection":    nil,
		})
	return res.RowsAffected > 0, res.Error
}

// SoftDelete marks the document deleted. The blob and any in-flight job are
// the caller's problem; the conditional finalizers above keep a late worker
// from resurrecting the row.
func (r *Repo) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status <> ?", id, StatusDeleted).
		Update("status", StatusDeleted).Error
}

// ResetForRetry re-arms an errored document for a fresh job. Conditional on
// status = error so a concurrent state change rejects the retry.
func (r *Repo) ResetForRetry(ctx context.Context, id, jobID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status = ?", id, StatusError).
		Updates(map[string]any{
			"status":        StatusPending,
			"job_id":        jobID,
			"error_message": nil,
		})
	return res.RowsAffected > 0, res.Error
}

// ProcessedIDs filters the given document ids down to those currently
// processed for the owner. Retrieval joins vector hits through this so
// orphaned chunks are never surfaced.
func (r *Repo) ProcessedIDs(ctx context.Context, ownerID string, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}
	var found []string
	err := r.db.WithContext(ctx).Model(&Document{}).
		Where("owner_id = ? AND status = ? AND id IN ?", ownerID, StatusProcessed, ids).
		Pluck("id", &found).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(found))
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// Job CRUD

func (r *Repo) CreateJob(ctx context.Context, j *IngestJob) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *Repo) GetJob(ctx context.Context, id string) (*IngestJob, error) {
	var j IngestJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// MarkJobRunning flips the job to running and bumps the attempt counter.
// Returns the refreshed row so the caller sees the new attempt number.
func (r *Repo) MarkJobRunning(ctx context.Context, id string) (*IngestJob, error) {
	err := r.db.WithContext(ctx).Model(&IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":   JobRunning,
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
	if err != nil {
		return nil, err
	}
	return r.GetJob(ctx, id)
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, chunkCount int) error {
	return r.db.WithContext(ctx).Model(&IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      JobSucceeded,
			"chunk_count": chunkCount,
			"error":       nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      JobFailed,
			"error":       errMsg,
			"chunk_count": nil,
		}).Error
}

// PurgeJobsBefore deletes finished jobs older than cutoff, always retaining
// the most recent keep rows for observability.
func (r *Repo) PurgeJobsBefore(ctx context.Context, cutoff time.Time, keep int) (int64, error) {
	var keepIDs []string
	err := r.db.WithContext(ctx).Model(&IngestJob{}).
		Where("status IN ?", []JobStatus{JobSucceeded, JobFailed}).
		Order("updated_at DESC").
		Limit(keep).
		Pluck("id", &keepIDs).Error
	if err != nil {
		return 0, err
	}

	q := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []JobStatus{JobSucceeded, JobFailed}, cutoff)
	if len(keepIDs) > 0 {
		q = q.Where("id NOT IN ?", keepIDs)
	}
	res := q.Delete(&IngestJob{})
	return res.RowsAffected, res.Error
}

// Messages

func (r *Repo) InsertMessage(ctx context.Context, m *ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns the owner's chat history, oldest first.
func (r *Repo) ListMessages(ctx context.Context, ownerID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []ChatMessage
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}
