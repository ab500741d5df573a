package storage

import (
	"context"

	"gitlab.com/henri.philipps/sitewatch"
)

// SnapshotStorage is an interface for persisting the last known state of all
// monitored sites between runs.
type SnapshotStorage interface {
	// Load returns the persisted snapshot. A store that has never been
	// written returns an empty snapshot and no error (the first-run case).
	// Unreadable state returns an error wrapping sitewatch.ErrSnapshotCorrupt
	// and must never be silently reset to empty.
	Load(ctx context.Context) (sitewatch.Snapshot, error)

	// Save atomically replaces the persisted snapshot. A crash mid-save must
	// leave the previously persisted snapshot intact.
	Save(ctx context.Context, snap sitewatch.Snapshot) error
}
