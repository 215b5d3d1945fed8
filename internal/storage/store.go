package storage

import (
	"context"
	"sort"

	"gasm/internal/model"
)

// Store persists run snapshots keyed by run ID.
type Store interface {
	Init(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
	GetSnapshot(ctx context.Context, runID string) (model.Snapshot, bool, error)
	ListRuns(ctx context.Context) ([]model.RunInfo, error)
	DeleteRun(ctx context.Context, runID string) error
}

// sortRunInfos orders runs newest first, then by run ID.
func sortRunInfos(runs []model.RunInfo) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].SavedAtUTC != runs[j].SavedAtUTC {
			return runs[i].SavedAtUTC > runs[j].SavedAtUTC
		}
		return runs[i].RunID < runs[j].RunID
	})
}
