package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/avfarm/common/constants"
	"github.com/avfarm/common/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedFile(t *testing.T, st *Store, path string) int64 {
	t.Helper()
	id, _, err := st.UpsertScan(context.Background(), models.ScanRecord{Path: path, Size: 1024, Mtime: time.Now().Unix()})
	if err != nil {
		t.Fatalf("failed to seed file %s: %v", path, err)
	}
	return id
}

func TestClaimNextIncrementsAttemptCount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedFile(t, st, "/media/a.mkv")

	rec, _, err := st.ClaimNext(ctx, "worker-1", constants.OrderOldestMtime, time.Minute)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if rec.AttemptCount != 1 {
		t.Fatalf("expected attempt_count 1 after first claim, got %d", rec.AttemptCount)
	}
}

func TestClaimThenReapLeavesAttemptCountAtOne(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedFile(t, st, "/media/b.mkv")

	if _, _, err := st.ClaimNext(ctx, "worker-1", constants.OrderOldestMtime, time.Minute); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	if err := st.ReapAssignment(ctx, id); err != nil {
		t.Fatalf("ReapAssignment failed: %v", err)
	}

	rec, err := st.GetFile(ctx, id)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if rec.Status != constants.FileStatusPending {
		t.Fatalf("expected file back to pending after reap, got %q", rec.Status)
	}
	if rec.AttemptCount != 1 {
		t.Fatalf("expected attempt_count to remain 1 after a crash-then-reap cycle, got %d", rec.AttemptCount)
	}
}

func TestClaimNextRejectsWorkerAlreadyInFlight(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedFile(t, st, "/media/c.mkv")
	seedFile(t, st, "/media/d.mkv")

	if _, _, err := st.ClaimNext(ctx, "worker-1", constants.OrderOldestMtime, time.Minute); err != nil {
		t.Fatalf("first ClaimNext failed: %v", err)
	}

	_, _, err := st.ClaimNext(ctx, "worker-1", constants.OrderOldestMtime, time.Minute)
	if !errors.Is(err, ErrWorkerBusy) {
		t.Fatalf("expected ErrWorkerBusy for a worker with an in-flight assignment, got %v", err)
	}

	// A different worker is unaffected.
	if _, _, err := st.ClaimNext(ctx, "worker-2", constants.OrderOldestMtime, time.Minute); err != nil {
		t.Fatalf("second worker's ClaimNext should have succeeded: %v", err)
	}
}

func TestSetPreferredWorkerPinsThenClaimClearsIt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedFile(t, st, "/media/e.mkv")

	if err := st.SetPreferredWorker(ctx, id, "worker-preferred"); err != nil {
		t.Fatalf("SetPreferredWorker failed: %v", err)
	}

	// An unrelated worker can't claim the still-fresh pin.
	if _, _, err := st.ClaimNext(ctx, "worker-other", constants.OrderOldestMtime, time.Hour); !errors.Is(err, ErrNoWork) {
		t.Fatalf("expected ErrNoWork while the pin is fresh, got %v", err)
	}

	rec, _, err := st.ClaimNext(ctx, "worker-preferred", constants.OrderOldestMtime, time.Hour)
	if err != nil {
		t.Fatalf("preferred worker's ClaimNext failed: %v", err)
	}
	if rec.PreferredWorkerID != "" || rec.PinnedAt != nil {
		t.Fatalf("expected pin to be cleared once claimed, got preferred=%q pinned_at=%v", rec.PreferredWorkerID, rec.PinnedAt)
	}
}

func TestSetPreferredWorkerExpiresAfterGrace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedFile(t, st, "/media/f.mkv")

	if err := st.SetPreferredWorker(ctx, id, "worker-preferred"); err != nil {
		t.Fatalf("SetPreferredWorker failed: %v", err)
	}

	// With a zero grace period the pin is already expired, so any worker can claim it.
	rec, _, err := st.ClaimNext(ctx, "worker-other", constants.OrderOldestMtime, 0)
	if err != nil {
		t.Fatalf("ClaimNext should have succeeded once the pin grace elapsed: %v", err)
	}
	if rec.ID != id {
		t.Fatalf("expected to claim the pinned file, got %d", rec.ID)
	}
}

func TestRecordFailureDoesNotDoubleCountAttempts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedFile(t, st, "/media/g.mkv")

	_, lease, err := st.ClaimNext(ctx, "worker-1", constants.OrderOldestMtime, time.Minute)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	if err := st.RecordFailure(ctx, id, lease, constants.ErrKindTransferError, "boom", true, 3); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	rec, err := st.GetFile(ctx, id)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if rec.AttemptCount != 1 {
		t.Fatalf("expected attempt_count to stay at 1 after a single claim+failure, got %d", rec.AttemptCount)
	}
	if rec.Status != constants.FileStatusPending {
		t.Fatalf("expected file back to pending (1 attempt < max 3), got %q", rec.Status)
	}
}
