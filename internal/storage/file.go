package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gasm/internal/model"
)

// SaveSnapshotFile writes snap to path atomically. The extension picks the
// format. SavedAtUTC is filled in when empty.
func SaveSnapshotFile(path string, snap model.Snapshot) error {
	if snap.SavedAtUTC == "" {
		snap.SavedAtUTC = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := EncodeSnapshot(snap, FormatForPath(path))
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", model.ErrSnapshotIO, path, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: %w", model.ErrSnapshotIO, err)
	}
	return nil
}

func LoadSnapshotFile(path string) (model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %w", model.ErrSnapshotIO, err)
	}
	snap, err := DecodeSnapshot(data, FormatForPath(path))
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: decode %s: %w", model.ErrSnapshotIO, path, err)
	}
	return snap, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// CheckpointName is the file name used for the periodic snapshot of a
// generation.
func CheckpointName(generation int, format Format) string {
	return fmt.Sprintf("checkpoint_%06d.%s", generation, format)
}

// FileCheckpointer writes checkpoints into Dir and, when Store is set,
// mirrors them into the run store.
type FileCheckpointer struct {
	Dir    string
	Format Format
	Store  Store
}

func (c FileCheckpointer) Checkpoint(ctx context.Context, snap model.Snapshot) error {
	format := c.Format
	if format == "" {
		format = FormatJSON
	}
	if err := SaveSnapshotFile(filepath.Join(c.Dir, CheckpointName(snap.Generation, format)), snap); err != nil {
		return err
	}
	if c.Store != nil {
		if err := c.Store.SaveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("store checkpoint: %w", err)
		}
	}
	return nil
}
