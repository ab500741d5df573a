// Package postgres implements snapshot persistence in a postgres table, one
// row per site with the page states as a JSONB document. Save replaces the
// whole snapshot in a single transaction.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"log/slog"

	_ "github.com/lib/pq"

	"gitlab.com/henri.philipps/sitewatch"
	"gitlab.com/henri.philipps/sitewatch/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS site_snapshots (
	site       TEXT PRIMARY KEY,
	pages      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Storage is a postgres-backed snapshot storage.
type Storage struct {
	conn   *sqlx.DB
	logger *slog.Logger
}

// compile time check of interface implementation
var _ storage.SnapshotStorage = &Storage{}

// New connects to postgres with the given uri and ensures the schema exists.
func New(uri string, logger *slog.Logger) (*Storage, error) {
	conn, err := sqlx.Open("postgres", uri)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating snapshot schema: %w", err)
	}

	return &Storage{conn: conn, logger: logger.With(slog.String("backend", "postgres"))}, nil
}

type snapshotRow struct {
	Site  string `db:"site"`
	Pages []byte `db:"pages"`
}

func (s *Storage) Load(ctx context.Context) (sitewatch.Snapshot, error) {
	snap := sitewatch.NewSnapshot()

	var rows []snapshotRow
	if err := s.conn.SelectContext(ctx, &rows, `SELECT site, pages FROM site_snapshots`); err != nil {
		return snap, fmt.Errorf("%w: querying site_snapshots: %v", sitewatch.ErrSnapshotCorrupt, err)
	}

	for _, row := range rows {
		var site sitewatch.SiteSnapshot
		if err := json.Unmarshal(row.Pages, &site); err != nil {
			return sitewatch.NewSnapshot(), fmt.Errorf("%w: parsing pages of site %s: %v", sitewatch.ErrSnapshotCorrupt, row.Site, err)
		}
		snap.Sites[row.Site] = site
	}

	return snap, nil
}

func (s *Storage) Save(ctx context.Context, snap sitewatch.Snapshot) error {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM site_snapshots`); err != nil {
		return fmt.Errorf("clearing site_snapshots: %w", err)
	}

	for name, site := range snap.Sites {
		pages, err := json.Marshal(site)
		if err != nil {
			return fmt.Errorf("marshaling pages of site %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO site_snapshots (site, pages, updated_at) VALUES ($1, $2, now())`,
			name, pages); err != nil {
			return fmt.Errorf("inserting site %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved", slog.Int("sites", len(snap.Sites)))
	return nil
}
