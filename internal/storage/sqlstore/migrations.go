package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	version  int
	postgres string
	sqlite   string
}

var migrations = []migration{
	{
		version: 1,
		postgres: `
CREATE TABLE IF NOT EXISTS seen_announcements (
	source_id       TEXT        NOT NULL,
	announcement_id TEXT        NOT NULL,
	generation      BIGINT      NOT NULL,
	first_seen_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source_id, announcement_id)
);

CREATE TABLE IF NOT EXISTS cycle_state (
	id             BIGSERIAL   PRIMARY KEY,
	source_id      TEXT        NOT NULL UNIQUE,
	last_cycle_at  TIMESTAMPTZ NOT NULL,
	last_cycle_id  TEXT        NOT NULL DEFAULT '',
	total_notified BIGINT      NOT NULL DEFAULT 0
);`,
		sqlite: `
CREATE TABLE IF NOT EXISTS seen_announcements (
	source_id       TEXT      NOT NULL,
	announcement_id TEXT      NOT NULL,
	generation      INTEGER   NOT NULL,
	first_seen_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source_id, announcement_id)
);

CREATE TABLE IF NOT EXISTS cycle_state (
	id             INTEGER   PRIMARY KEY AUTOINCREMENT,
	source_id      TEXT      NOT NULL UNIQUE,
	last_cycle_at  TIMESTAMP NOT NULL,
	last_cycle_id  TEXT      NOT NULL DEFAULT '',
	total_notified INTEGER   NOT NULL DEFAULT 0
);`,
	},
	{
		version:  2,
		postgres: `CREATE INDEX IF NOT EXISTS idx_seen_source_generation ON seen_announcements (source_id, generation);`,
		sqlite:   `CREATE INDEX IF NOT EXISTS idx_seen_source_generation ON seen_announcements (source_id, generation);`,
	},
}

// Migrate applies every migration newer than the recorded schema version.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		stmt := m.sqlite
		if db.DriverName() == DriverPostgres {
			stmt = m.postgres
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}
