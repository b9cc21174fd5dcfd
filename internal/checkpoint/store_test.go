package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoad(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "run-1", "planner", []byte(`{"tasks":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, err := store.Load(ctx, "run-1", "planner")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(snap.State) != `{"tasks":1}` {
		t.Errorf("unexpected state %s", snap.State)
	}
	if snap.SavedAt.IsZero() {
		t.Error("expected saved_at to be set")
	}
}

func TestSaveUpserts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "run-1", "planner", []byte(`v1`)); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save(ctx, "run-1", "planner", []byte(`v2`)); err != nil {
		t.Fatalf("second save: %v", err)
	}

	snap, err := store.Load(ctx, "run-1", "planner")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(snap.State) != "v2" {
		t.Errorf("expected the later snapshot, got %s", snap.State)
	}
}

func TestLoadMissing(t *testing.T) {
	store := openStore(t)
	if _, err := store.Load(context.Background(), "ghost", "planner"); err == nil {
		t.Error("expected error for missing checkpoint")
	}
}

func TestList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, stage := range []string{"preprocessor", "planner", "coordinator"} {
		if err := store.Save(ctx, "run-1", stage, []byte(stage)); err != nil {
			t.Fatalf("save %s: %v", stage, err)
		}
	}
	if err := store.Save(ctx, "run-2", "preprocessor", []byte("other")); err != nil {
		t.Fatalf("save other run: %v", err)
	}

	snaps, err := store.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 3 {
		t.Errorf("expected 3 snapshots for run-1, got %d", len(snaps))
	}
}

func TestPurge(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "run-1", "planner", []byte("old")); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Nothing is older than an hour yet.
	deleted, err := store.Purge(ctx, time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected nothing purged, got %d", deleted)
	}

	// Everything is older than a zero-duration cutoff.
	time.Sleep(1100 * time.Millisecond)
	deleted, err = store.Purge(ctx, 0)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 purged, got %d", deleted)
	}
}
