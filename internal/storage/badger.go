package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"gasm/internal/model"
)

const badgerRunPrefix = "run/"

// BadgerStore keeps CBOR-encoded snapshots in an embedded badger database.
// An empty path opens an in-memory database.
type BadgerStore struct {
	path string

	mu sync.RWMutex
	db *badger.DB
}

func NewBadgerStore(path string) *BadgerStore {
	return &BadgerStore{path: path}
}

func (s *BadgerStore) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	var opts badger.Options
	if s.path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.path, 0o750); err != nil {
			return fmt.Errorf("create badger directory %s: %w", s.path, err)
		}
		opts = badger.DefaultOptions(s.path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	s.db = db
	return nil
}

func (s *BadgerStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	if snap.RunID == "" {
		return errors.New("run id is required")
	}
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	payload, err := EncodeSnapshot(snap, FormatCBOR)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(snap.RunID), payload)
	})
}

func (s *BadgerStore) GetSnapshot(ctx context.Context, runID string) (model.Snapshot, bool, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return model.Snapshot{}, false, err
	}

	var payload []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Snapshot{}, false, nil
	}
	if err != nil {
		return model.Snapshot{}, false, err
	}

	snap, err := DecodeSnapshot(payload, FormatCBOR)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", runID, err)
	}
	return snap, true, nil
}

func (s *BadgerStore) ListRuns(ctx context.Context) ([]model.RunInfo, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}

	runs := []model.RunInfo{}
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerRunPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				snap, err := DecodeSnapshot(val, FormatCBOR)
				if err != nil {
					return fmt.Errorf("decode snapshot %s: %w", item.Key(), err)
				}
				runs = append(runs, snap.Info())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRunInfos(runs)
	return runs, nil
}

func (s *BadgerStore) DeleteRun(ctx context.Context, runID string) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete(runKey(runID))
	})
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerStore) getDB(ctx context.Context) (*badger.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func runKey(runID string) []byte {
	return []byte(badgerRunPrefix + runID)
}
