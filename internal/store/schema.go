package store

import (
	"context"
	"database/sql"
	"fmt"
)

// =============================================================================
// Schema Migration
// =============================================================================

// migrate creates the event schema.
//
// This is idempotent - safe to run on every startup. Event ids come from a
// sequence so they are assigned in commit order; the composite index serves
// the dominant query shape (one component over a time window).
func migrate(ctx context.Context, db *sql.DB) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "latency_events_id_seq",
			sql:  `CREATE SEQUENCE IF NOT EXISTS latency_events_id_seq START 1`,
		},
		{
			name: "latency_events",
			sql: `CREATE TABLE IF NOT EXISTS latency_events (
				id BIGINT PRIMARY KEY DEFAULT nextval('latency_events_id_seq'),
				ts_us BIGINT NOT NULL,
				component VARCHAR NOT NULL,
				source_label VARCHAR NOT NULL,
				duration_us BIGINT NOT NULL,
				success BOOLEAN NOT NULL,
				metadata VARCHAR
			)`,
		},
		{
			name: "idx_latency_events_component_ts",
			sql:  `CREATE INDEX IF NOT EXISTS idx_latency_events_component_ts ON latency_events(component, ts_us)`,
		},
		{
			name: "idx_latency_events_ts",
			sql:  `CREATE INDEX IF NOT EXISTS idx_latency_events_ts ON latency_events(ts_us)`,
		},
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		log.Debug("migration applied", "name", m.name)
	}

	return nil
}
