package marketplace

import (
	"context"
	"testing"

	core "taskmarket-backend/core/marketplace"
)

func storeAddr(label string) core.Address {
	return core.DeriveAddress("store_test", []byte(label))
}

func sampleTask(addr core.Address) core.Task {
	return core.Task{
		Addr:       addr,
		Owner:      storeAddr("owner"),
		Title:      "Index the archive",
		Budget:     100,
		Milestones: []core.Milestone{{Description: "all of it", Amount: 100}},
		Deadline:   2_000_000,
		Status:     core.TaskOpen,
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	addr := storeAddr("task")
	task := sampleTask(addr)

	t.Run("missing record", func(t *testing.T) {
		if _, err := store.GetTask(ctx, addr); err != ErrTaskNotFound {
			t.Errorf("Expected ErrTaskNotFound but got %v", err)
		}
	})

	t.Run("create then read back", func(t *testing.T) {
		if err := store.Commit(ctx, core.ChangeSet{{Op: core.OpCreate, Record: task}}); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		got, err := store.GetTask(ctx, addr)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Title != task.Title || got.Budget != task.Budget {
			t.Errorf("Read back mismatch: %+v", got)
		}
	})

	t.Run("create at occupied address rejected", func(t *testing.T) {
		err := store.Commit(ctx, core.ChangeSet{{Op: core.OpCreate, Record: task}})
		if err != ErrAlreadyExists {
			t.Errorf("Expected ErrAlreadyExists but got %v", err)
		}
	})

	t.Run("update replaces the record", func(t *testing.T) {
		task.Status = core.TaskCancelled
		if err := store.Commit(ctx, core.ChangeSet{{Op: core.OpUpdate, Record: task}}); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		got, err := store.GetTask(ctx, addr)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Status != core.TaskCancelled {
			t.Errorf("Expected status %q but got %q", core.TaskCancelled, got.Status)
		}
	})

	t.Run("delete reclaims the record", func(t *testing.T) {
		if err := store.Commit(ctx, core.ChangeSet{{Op: core.OpDelete, Record: task}}); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if _, err := store.GetTask(ctx, addr); err != ErrTaskNotFound {
			t.Errorf("Expected ErrTaskNotFound after delete but got %v", err)
		}
	})

	t.Run("update of a missing record rejected", func(t *testing.T) {
		if err := store.Commit(ctx, core.ChangeSet{{Op: core.OpUpdate, Record: task}}); err != ErrTaskNotFound {
			t.Errorf("Expected ErrTaskNotFound but got %v", err)
		}
	})
}

// A change set with one bad change must leave the whole store untouched.
func TestCommitIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	addr := storeAddr("atomic_task")
	task := sampleTask(addr)

	missing := core.Bid{Addr: storeAddr("missing_bid"), Status: core.BidPending}
	err := store.Commit(ctx, core.ChangeSet{
		{Op: core.OpCreate, Record: task},
		{Op: core.OpUpdate, Record: missing},
	})
	if err != ErrBidNotFound {
		t.Fatalf("Expected ErrBidNotFound but got %v", err)
	}
	if _, err := store.GetTask(ctx, addr); err != ErrTaskNotFound {
		t.Errorf("Expected no task after a failed commit but got %v", err)
	}
}

// Reads hand out decoded copies; mutating one must not leak back into
// the stored record.
func TestReadsAreSnapshots(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	addr := storeAddr("snapshot_task")
	if err := store.Commit(ctx, core.ChangeSet{{Op: core.OpCreate, Record: sampleTask(addr)}}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	first, err := store.GetTask(ctx, addr)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	first.Milestones[0].Paid = true
	first.Status = core.TaskCompleted

	second, err := store.GetTask(ctx, addr)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if second.Milestones[0].Paid || second.Status != core.TaskOpen {
		t.Error("Expected stored record to be unaffected by caller mutation")
	}
}

func TestPerTypeNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	addr := storeAddr("nothing")

	if _, err := store.GetBid(ctx, addr); err != ErrBidNotFound {
		t.Errorf("Expected ErrBidNotFound but got %v", err)
	}
	if _, err := store.GetEscrow(ctx, addr); err != ErrEscrowNotFound {
		t.Errorf("Expected ErrEscrowNotFound but got %v", err)
	}
	if _, err := store.GetProfile(ctx, addr); err != ErrProfileNotFound {
		t.Errorf("Expected ErrProfileNotFound but got %v", err)
	}
	if _, err := store.GetReview(ctx, addr); err != ErrReviewNotFound {
		t.Errorf("Expected ErrReviewNotFound but got %v", err)
	}
}
