package docs

import (
	"context"
	"testing"
	"time"
)

func seedDocument(t *testing.T, repo *Repo, ownerID string, status Status) *Document {
	t.Helper()
	id, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	doc := &Document{
		ID:      id,
		Name:    "seed.txt",
		Path:    id + "-seed.txt",
		Size:    4,
		OwnerID: ownerID,
		Status:  status,
	}
	if err := repo.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func TestMarkProcessed_NoOpAfterDelete(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	doc := seedDocument(t, repo, "user-1", StatusPending)
	if moved, err := repo.MarkProcessing(ctx, doc.ID); err != nil || !moved {
		t.Fatalf("mark processing: moved=%v err=%v", moved, err)
	}

	// Delete races the worker and wins.
	if err := repo.SoftDelete(ctx, doc.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	finalized, err := repo.MarkProcessed(ctx, doc.ID, 3, "user-docs", "m")
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if finalized {
		t.Fatalf("stale finalize must not land on a deleted document")
	}

	got, err := repo.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDeleted {
		t.Fatalf("expected deleted, got %q", got.Status)
	}
}

func TestMarkError_NoOpAfterDelete(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	doc := seedDocument(t, repo, "user-1", StatusProcessing)
	if err := repo.SoftDelete(ctx, doc.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	marked, err := repo.MarkError(ctx, doc.ID, "boom")
	if err != nil {
		t.Fatalf("mark error: %v", err)
	}
	if marked {
		t.Fatalf("stale error must not land on a deleted document")
	}
}

func TestResetForRetry_OnlyFromError(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	doc := seedDocument(t, repo, "user-1", StatusProcessing)
	reset, err := repo.ResetForRetry(ctx, doc.ID, "01JOB")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset {
		t.Fatalf("reset must be rejected while processing")
	}

	if _, err := repo.MarkError(ctx, doc.ID, "boom"); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	reset, err = repo.ResetForRetry(ctx, doc.ID, "01JOB")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !reset {
		t.Fatalf("reset must succeed from error status")
	}
}

func TestProcessedIDs_FiltersByOwnerAndStatus(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	processed := seedDocument(t, repo, "user-1", StatusPending)
	if _, err := repo.MarkProcessing(ctx, processed.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if _, err := repo.MarkProcessed(ctx, processed.ID, 1, "user-docs", "m"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	pending := seedDocument(t, repo, "user-1", StatusPending)
	foreign := seedDocument(t, repo, "user-2", StatusProcessed)

	got, err := repo.ProcessedIDs(ctx, "user-1", []string{processed.ID, pending.ID, foreign.ID, "01NOPE"})
	if err != nil {
		t.Fatalf("processed ids: %v", err)
	}
	if len(got) != 1 || !got[processed.ID] {
		t.Fatalf("expected only %s, got %v", processed.ID, got)
	}
}

func TestMarkJobRunning_IncrementsAttempts(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	id, _ := NewID()
	if err := repo.CreateJob(ctx, &IngestJob{
		ID: id, DocumentID: "01DOC", OwnerID: "user-1",
		Status: JobQueued, MaxAttempts: 3,
	}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	j, err := repo.MarkJobRunning(ctx, id)
	if err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if j.Attempts != 1 || j.Status != JobRunning {
		t.Fatalf("unexpected job after first run: %+v", j)
	}

	j, err = repo.MarkJobRunning(ctx, id)
	if err != nil {
		t.Fatalf("mark running again: %v", err)
	}
	if j.Attempts != 2 {
		t.Fatalf("expected attempts=2, got %d", j.Attempts)
	}
}

func TestPurgeJobsBefore_RetainsRecentRows(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id, _ := NewID()
		if err := repo.CreateJob(ctx, &IngestJob{
			ID: id, DocumentID: "01DOC", OwnerID: "user-1",
			Status: JobSucceeded, MaxAttempts: 3,
		}); err != nil {
			t.Fatalf("create job %d: %v", i, err)
		}
	}

	// Cutoff in the future would purge everything, but keep=3 retains the
	// newest rows.
	n, err := repo.PurgeJobsBefore(ctx, time.Now().Add(time.Hour), 3)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 purged, got %d", n)
	}
}
