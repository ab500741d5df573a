// Package file implements snapshot persistence as a single JSON document on
// disk, replaced atomically on save.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"gitlab.com/henri.philipps/sitewatch"
	"gitlab.com/henri.philipps/sitewatch/storage"
)

// Storage persists the snapshot at a fixed path.
type Storage struct {
	path   string
	logger *slog.Logger
}

// compile time check of interface implementation
var _ storage.SnapshotStorage = &Storage{}

// New returns a file-backed snapshot storage writing to the given path.
func New(path string, logger *slog.Logger) *Storage {
	return &Storage{path: path, logger: logger.With(slog.String("backend", "file"))}
}

// Load reads the snapshot document. A missing file is the first-run case and
// yields an empty snapshot; anything else unreadable is surfaced as corrupt
// so the operator can intervene instead of getting a false "everything is new"
// diff.
func (s *Storage) Load(_ context.Context) (sitewatch.Snapshot, error) {
	snap := sitewatch.NewSnapshot()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("no snapshot file yet - starting with empty state", slog.String("path", s.path))
			return snap, nil
		}
		return snap, fmt.Errorf("%w: reading %s: %v", sitewatch.ErrSnapshotCorrupt, s.path, err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return sitewatch.NewSnapshot(), fmt.Errorf("%w: parsing %s: %v", sitewatch.ErrSnapshotCorrupt, s.path, err)
	}
	if snap.Sites == nil {
		snap.Sites = map[string]sitewatch.SiteSnapshot{}
	}

	return snap, nil
}

// Save writes the snapshot to a temporary file in the target directory and
// renames it over the previous document in one step.
func (s *Storage) Save(_ context.Context, snap sitewatch.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved", slog.String("path", s.path), slog.Int("sites", len(snap.Sites)))
	return nil
}
