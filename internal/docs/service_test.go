package docs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/docunest/docunest/internal/blob"
	"github.com/docunest/docunest/internal/queue"
)

type fakeEnqueuer struct {
	published []queue.JobMessage
	err       error
}

func (f *fakeEnqueuer) PublishJob(ctx context.Context, msg queue.JobMessage) error {
	_ = ctx
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Document{}, &IngestJob{}, &ChatMessage{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, pub Enqueuer) (*Service, *Repo, string) {
	t.Helper()
	repo := NewRepo(openTestDB(t))
	dir := t.TempDir()
	blobs, err := blob.NewStore(dir)
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	svc := NewService(repo, blobs, pub, ServiceOptions{
		MaxUploadSize: 1 << 20,
		AllowedTypes:  []string{"text/plain", "application/pdf"},
		MaxAttempts:   3,
	})
	return svc, repo, dir
}

func TestUpload_CreatesPendingDocumentAndJob(t *testing.T) {
	pub := &fakeEnqueuer{}
	svc, repo, dir := newTestService(t, pub)
	ctx := context.Background()

	files, err := svc.Upload(ctx, "user-1", []UploadInput{{
		Name:     "notes.txt",
		Size:     5,
		MimeType: "text/plain",
		Data:     []byte("hello"),
	}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 uploaded file, got %d", len(files))
	}
	if files[0].Name != "notes.txt" || files[0].Size != 5 || files[0].Type != "text/plain" {
		t.Fatalf("unexpected response: %+v", files[0])
	}

	doc, err := repo.GetDocument(ctx, files[0].ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != StatusPending {
		t.Fatalf("expected pending, got %q", doc.Status)
	}
	if doc.Hash == nil || *doc.Hash == "" {
		t.Fatalf("expected content hash to be set")
	}
	if doc.JobID == nil {
		t.Fatalf("expected job id to be linked")
	}

	job, err := repo.GetJob(ctx, *doc.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != JobQueued || job.DocumentID != doc.ID || job.MaxAttempts != 3 {
		t.Fatalf("unexpected job: %+v", job)
	}

	if len(pub.published) != 1 || pub.published[0].JobID != job.ID {
		t.Fatalf("expected one published message for job %s, got %+v", job.ID, pub.published)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 blob, got %d", len(entries))
	}
}

func TestUpload_RejectsWholeBatchWithoutArtifacts(t *testing.T) {
	pub := &fakeEnqueuer{}
	svc, repo, dir := newTestService(t, pub)
	ctx := context.Background()

	big := make([]byte, 2<<20)
	_, err := svc.Upload(ctx, "user-1", []UploadInput{
		{Name: "ok.txt", Size: 2, MimeType: "text/plain", Data: []byte("ok")},
		{Name: "big.txt", Size: int64(len(big)), MimeType: "text/plain", Data: big},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	list, err := repo.ListByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no documents, got %d", len(list))
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no published messages")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no blobs, got %d", len(entries))
	}
}

func TestUpload_RejectsDisallowedType(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeEnqueuer{})

	_, err := svc.Upload(context.Background(), "user-1", []UploadInput{{
		Name:     "archive.zip",
		Size:     4,
		MimeType: "application/zip",
		Data:     []byte("PK.."),
	}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpload_DedupSkipsProcessing(t *testing.T) {
	pub := &fakeEnqueuer{}
	svc, repo, _ := newTestService(t, pub)
	ctx := context.Background()

	first, err := svc.Upload(ctx, "user-1", []UploadInput{{
		Name: "a.txt", Size: 5, MimeType: "text/plain", Data: []byte("hello"),
	}})
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}

	// Simulate the pipeline finishing the first document.
	if _, err := repo.MarkProcessing(ctx, first[0].ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if _, err := repo.MarkProcessed(ctx, first[0].ID, 7, "user-docs", "nomic-embed-text"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	second, err := svc.Upload(ctx, "user-1", []UploadInput{{
		Name: "copy.txt", Size: 5, MimeType: "text/plain", Data: []byte("hello"),
	}})
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}

	doc, err := repo.GetDocument(ctx, second[0].ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != StatusProcessed {
		t.Fatalf("expected duplicate to be processed immediately, got %q", doc.Status)
	}
	if doc.ChunkCount == nil || *doc.ChunkCount != 7 {
		t.Fatalf("expected chunk count copied from original, got %v", doc.ChunkCount)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected no job for the duplicate, got %d messages", len(pub.published))
	}
}

func TestUpload_NoDedupAcrossOwners(t *testing.T) {
	pub := &fakeEnqueuer{}
	svc, repo, _ := newTestService(t, pub)
	ctx := context.Background()

	first, err := svc.Upload(ctx, "user-1", []UploadInput{{
		Name: "a.txt", Size: 5, MimeType: "text/plain", Data: []byte("hello"),
	}})
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := repo.MarkProcessing(ctx, first[0].ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if _, err := repo.MarkProcessed(ctx, first[0].ID, 7, "user-docs", "nomic-embed-text"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	second, err := svc.Upload(ctx, "user-2", []UploadInput{{
		Name: "a.txt", Size: 5, MimeType: "text/plain", Data: []byte("hello"),
	}})
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	doc, err := repo.GetDocument(ctx, second[0].ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != StatusPending {
		t.Fatalf("another owner's bytes must still be processed, got %q", doc.Status)
	}
	if len(pub.published) != 2 {
		t.Fatalf("expected a job per owner, got %d messages", len(pub.published))
	}
}

func TestUpload_PublishFailureMarksError(t *testing.T) {
	pub := &fakeEnqueuer{err: errors.New("broker down")}
	svc, repo, _ := newTestService(t, pub)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "user-1", []UploadInput{{
		Name: "a.txt", Size: 5, MimeType: "text/plain", Data: []byte("hello"),
	}})
	if err == nil {
		t.Fatalf("expected upload to fail when publish fails")
	}

	docs, err := repo.ListByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].Status != StatusError {
		t.Fatalf("expected the document left in error, got %+v", docs)
	}
	if docs[0].JobID == nil {
		t.Fatalf("expected the job id linked even on failure")
	}
	job, err := repo.GetJob(ctx, *docs[0].JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != JobFailed {
		t.Fatalf("unpublished job must not stay queued, got %q", job.Status)
	}
}

func TestDelete_OwnershipAndLifecycle(t *testing.T) {
	pub := &fakeEnqueuer{}
	svc, _, _ := newTestService(t, pub)
	ctx := context.Background()

	files, err := svc.Upload(ctx, "user-1", []UploadInput{{
		Name: "a.txt", Size: 5, MimeType: "text/plain", Data: []byte("hello"),
	}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	id := files[0].ID

	if err := svc.Delete(ctx, "user-2", id); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for foreign owner, got %v", err)
	}
	if err := svc.Delete(ctx, "user-1", "01MISSING0000000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}

	if err := svc.Delete(ctx, "user-1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	list, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("deleted document still listed: %+v", list)
	}

	// A second delete sees the soft-deleted row as gone.
	if err := svc.Delete(ctx, "user-1", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := svc.Status(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected status of deleted document to be not found, got %v", err)
	}
}

func TestRetry_OnlyFromErrorStatus(t *testing.T) {
	pub := &fakeEnqueuer{}
	svc, repo, _ := newTestService(t, pub)
	ctx := context.Background()

	files, err := svc.Upload(ctx, "user-1", []UploadInput{{
		Name: "a.txt", Size: 5, MimeType: "text/plain", Data: []byte("hello"),
	}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	id := files[0].ID

	if _, err := svc.Retry(ctx, id); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for pending document, got %v", err)
	}

	if _, err := repo.MarkError(ctx, id, "parse failed"); err != nil {
		t.Fatalf("mark error: %v", err)
	}

	doc, err := svc.Retry(ctx, id)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if doc.Status != StatusPending {
		t.Fatalf("expected pending after retry, got %q", doc.Status)
	}
	if doc.ErrorMessage != nil {
		t.Fatalf("expected error message cleared, got %q", *doc.ErrorMessage)
	}
	if len(pub.published) != 2 {
		t.Fatalf("expected a second published message, got %d", len(pub.published))
	}
	if doc.JobID == nil || pub.published[1].JobID != *doc.JobID {
		t.Fatalf("retry message does not reference the new job")
	}
}

func TestRetry_RejectedResetCreatesNoJob(t *testing.T) {
	pub := &fakeEnqueuer{}
	svc, repo, _ := newTestService(t, pub)
	ctx := context.Background()

	files, err := svc.Upload(ctx, "user-1", []UploadInput{{
		Name: "a.txt", Size: 5, MimeType: "text/plain", Data: []byte("hello"),
	}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	id := files[0].ID
	firstJob := *mustGetDoc(t, repo, id).JobID

	if _, err := svc.Retry(ctx, id); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for pending document, got %v", err)
	}

	// The rejected retry must not leave a dangling queued job row; only the
	// upload's own job exists.
	var count int64
	if err := repo.db.Model(&IngestJob{}).Count(&count).Error; err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the original job row, got %d", count)
	}
	if got := *mustGetDoc(t, repo, id).JobID; got != firstJob {
		t.Fatalf("document job link changed by a rejected retry")
	}
}

func TestRetry_PublishFailureLeavesNoQueuedJob(t *testing.T) {
	pub := &fakeEnqueuer{}
	svc, repo, _ := newTestService(t, pub)
	ctx := context.Background()

	files, err := svc.Upload(ctx, "user-1", []UploadInput{{
		Name: "a.txt", Size: 5, MimeType: "text/plain", Data: []byte("hello"),
	}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	id := files[0].ID
	if _, err := repo.MarkError(ctx, id, "parse failed"); err != nil {
		t.Fatalf("mark error: %v", err)
	}

	pub.err = errors.New("broker down")
	if _, err := svc.Retry(ctx, id); err == nil {
		t.Fatalf("expected retry to fail when publish fails")
	}

	doc := mustGetDoc(t, repo, id)
	if doc.Status != StatusError {
		t.Fatalf("expected the document back in error, got %q", doc.Status)
	}
	job, err := repo.GetJob(ctx, *doc.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != JobFailed {
		t.Fatalf("unpublished retry job must not stay queued, got %q", job.Status)
	}
}

func mustGetDoc(t *testing.T, repo *Repo, id string) *Document {
	t.Helper()
	doc, err := repo.GetDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	return doc
}
