// Package memory is an in-memory implementation of the snapshot storage
// interface - mainly for testing.
package memory

import (
	"context"
	"sync"

	"log/slog"

	"gitlab.com/henri.philipps/sitewatch"
	"gitlab.com/henri.philipps/sitewatch/storage"
)

// Storage keeps the snapshot in memory. Load and Save deep-copy, so callers
// can never mutate the stored state through a loaded value.
type Storage struct {
	snap   sitewatch.Snapshot
	logger *slog.Logger
	mu     sync.Mutex
}

// compile time check of interface implementation
var _ storage.SnapshotStorage = &Storage{}

// New returns an empty in-memory snapshot storage.
func New(logger *slog.Logger) *Storage {
	return &Storage{snap: sitewatch.NewSnapshot(), logger: logger.With(slog.String("backend", "memory"))}
}

func (s *Storage) Load(_ context.Context) (sitewatch.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snap.Clone(), nil
}

func (s *Storage) Save(_ context.Context, snap sitewatch.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = snap.Clone()
	return nil
}
