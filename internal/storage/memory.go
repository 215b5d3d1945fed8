package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gasm/internal/model"
)

// MemoryStore keeps encoded snapshots in a map, so callers never share
// slices with stored data.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	snapshots   map[string][]byte
	runs        map[string]model.RunInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.snapshots = make(map[string][]byte)
	s.runs = make(map[string]model.RunInfo)
	return nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap model.Snapshot) error {
	if snap.RunID == "" {
		return errors.New("run id is required")
	}
	payload, err := EncodeSnapshot(snap, FormatCBOR)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.snapshots[snap.RunID] = payload
	s.runs[snap.RunID] = snap.Info()
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, runID string) (model.Snapshot, bool, error) {
	s.mu.RLock()
	payload, ok := s.snapshots[runID]
	s.mu.RUnlock()
	if !ok {
		return model.Snapshot{}, false, nil
	}

	snap, err := DecodeSnapshot(payload, FormatCBOR)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", runID, err)
	}
	return snap, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunInfo, 0, len(s.runs))
	for _, info := range s.runs {
		runs = append(runs, info)
	}
	sortRunInfos(runs)
	return runs, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, runID)
	delete(s.runs, runID)
	return nil
}
