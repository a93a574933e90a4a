package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister persists a Snapshot to a JSON file atomically: write to a
// temp file in the same directory, fsync, then rename over the target. This
// is what spec.md §4.2/§4.6 mean by "flushes config atomically (write temp
// file, rename)" — a crash can never leave a truncated credential file.
type FilePersister struct {
	Path string
}

// NewFilePersister creates a FilePersister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

// Save writes snap to Path atomically.
func (fp *FilePersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credential snapshot: %w", err)
	}
	return writeFileAtomic(fp.Path, data)
}

// Load reads and parses a credential Snapshot from path. A missing file is
// not an error; it yields an empty Snapshot so a fresh pool can be seeded.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{Strategy: StrategyRoundRobin}, nil
		}
		return Snapshot{}, fmt.Errorf("reading credential file %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parsing credential file %s: %w", path, err)
	}
	return snap, nil
}

// writeFileAtomic writes data to path via a temp file + rename, fsyncing
// both the temp file and its parent directory so the rename itself is
// durable on crash.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpName, path, err)
	}

	if dirF, err := os.Open(dir); err == nil {
		_ = dirF.Sync()
		_ = dirF.Close()
	}
	return nil
}
