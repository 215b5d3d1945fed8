package storage

import (
	"context"
	"math"
	"testing"
)

// exerciseStore runs the shared contract every backend must satisfy.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = CloseIfSupported(store)
	})

	if _, ok, err := store.GetSnapshot(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%v err=%v", ok, err)
	}

	older := sampleSnapshot("run-a", "2026-01-01T00:00:00Z", 4)
	newer := sampleSnapshot("run-b", "2026-01-02T00:00:00Z", 1.5)
	if err := store.SaveSnapshot(ctx, older); err != nil {
		t.Fatalf("save run-a: %v", err)
	}
	if err := store.SaveSnapshot(ctx, newer); err != nil {
		t.Fatalf("save run-b: %v", err)
	}

	loaded, ok, err := store.GetSnapshot(ctx, "run-b")
	if err != nil || !ok {
		t.Fatalf("get run-b: ok=%v err=%v", ok, err)
	}
	if loaded.RunID != "run-b" || len(loaded.Population) != 2 || loaded.Population[1].Literals[0] != 4 {
		t.Fatalf("unexpected snapshot: %+v", loaded)
	}
	if !math.IsNaN(float64(loaded.History[0].AvgFitness)) {
		t.Fatalf("expected NaN average to survive, got %v", loaded.History[0].AvgFitness)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-b" || runs[1].RunID != "run-a" {
		t.Fatalf("unexpected run order: %+v", runs)
	}
	if runs[0].BestFitness != 1.5 || runs[0].Population != 2 || runs[0].Generation != 1 {
		t.Fatalf("unexpected run info: %+v", runs[0])
	}

	older.Generation = 5
	if err := store.SaveSnapshot(ctx, older); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	loaded, _, err = store.GetSnapshot(ctx, "run-a")
	if err != nil || loaded.Generation != 5 {
		t.Fatalf("expected overwritten generation 5, got %d err=%v", loaded.Generation, err)
	}

	if err := store.DeleteRun(ctx, "run-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	runs, err = store.ListRuns(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run after delete, got %+v err=%v", runs, err)
	}

	if err := store.SaveSnapshot(ctx, sampleSnapshot("", "", 0)); err == nil {
		t.Fatal("expected error for empty run id")
	}
}
