package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gasm/internal/model"
)

func TestSnapshotFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"state.json", "state.cbor"} {
		path := filepath.Join(dir, name)
		if err := SaveSnapshotFile(path, sampleSnapshot("run-1", "", 2)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		snap, err := LoadSnapshotFile(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if snap.RunID != "run-1" || snap.SavedAtUTC == "" {
			t.Fatalf("%s: unexpected snapshot %+v", name, snap.Info())
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestLoadSnapshotFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadSnapshotFile(filepath.Join(dir, "missing.json")); !errors.Is(err, model.ErrSnapshotIO) {
		t.Fatalf("expected snapshot io error, got %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSnapshotFile(bad); !errors.Is(err, model.ErrSnapshotIO) {
		t.Fatalf("expected snapshot io error, got %v", err)
	}
}

func TestSaveSnapshotFileFailureWrapsSnapshotIO(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := SaveSnapshotFile(filepath.Join(blocker, "state.json"), sampleSnapshot("run-1", "", 1))
	if !errors.Is(err, model.ErrSnapshotIO) {
		t.Fatalf("expected snapshot io error, got %v", err)
	}
}

func TestFileCheckpointerWritesNamedFileAndStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	snap := sampleSnapshot("run-7", "", 1)
	snap.Generation = 12
	cp := FileCheckpointer{Dir: dir, Store: store}
	if err := cp.Checkpoint(ctx, snap); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	loaded, err := LoadSnapshotFile(filepath.Join(dir, "checkpoint_000012.json"))
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if loaded.Generation != 12 {
		t.Fatalf("unexpected generation %d", loaded.Generation)
	}
	if _, ok, err := store.GetSnapshot(ctx, "run-7"); err != nil || !ok {
		t.Fatalf("expected mirrored snapshot, ok=%v err=%v", ok, err)
	}
}
