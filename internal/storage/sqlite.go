//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"

	"gasm/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	if snap.RunID == "" {
		return errors.New("run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSnapshot(snap, FormatJSON)
	if err != nil {
		return err
	}

	info := snap.Info()
	var best sql.NullFloat64
	if v := float64(info.BestFitness); !math.IsNaN(v) && !math.IsInf(v, 0) {
		best = sql.NullFloat64{Float64: v, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (run_id, schema_version, codec_version, saved_at_utc, generation, population, best_fitness, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			saved_at_utc = excluded.saved_at_utc,
			generation = excluded.generation,
			population = excluded.population,
			best_fitness = excluded.best_fitness,
			payload = excluded.payload
	`, snap.RunID, CurrentSchemaVersion, CurrentCodecVersion, info.SavedAtUTC, info.Generation, info.Population, best, payload)
	return err
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, runID string) (model.Snapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Snapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, err
	}

	snap, err := DecodeSnapshot(payload, FormatJSON)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", runID, err)
	}
	return snap, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT run_id, saved_at_utc, generation, population, best_fitness
		FROM runs
		ORDER BY saved_at_utc DESC, run_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.RunInfo{}
	for rows.Next() {
		var (
			info model.RunInfo
			best sql.NullFloat64
		)
		if err := rows.Scan(&info.RunID, &info.SavedAtUTC, &info.Generation, &info.Population, &best); err != nil {
			return nil, err
		}
		info.BestFitness = model.Float(math.NaN())
		if best.Valid {
			info.BestFitness = model.Float(best.Float64)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			saved_at_utc TEXT NOT NULL,
			generation INTEGER NOT NULL,
			population INTEGER NOT NULL,
			best_fitness REAL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
