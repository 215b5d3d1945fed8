//go:build sqlite

package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreSnapshotRoundTrip(t *testing.T) {
	exerciseStore(t, NewSQLiteStore(filepath.Join(t.TempDir(), "gasm.db")))
}

func TestSQLiteStoreNaNBestFitness(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "gasm.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	snap := sampleSnapshot("run-nan", "2026-01-01T00:00:00Z", math.NaN())
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || !math.IsNaN(float64(runs[0].BestFitness)) {
		t.Fatalf("expected NaN best fitness, got %+v", runs)
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "gasm.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("unexpected store type %T", store)
	}
}
