package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xtxerr/pulse/internal/event"
)

// eventColumns is the canonical select list for latency_events.
const eventColumns = "id, ts_us, component, source_label, duration_us, success, metadata"

// maxEventsPerInsert bounds the parameter count of one multi-row INSERT.
// 6 bound columns * 100 rows = 600 parameters per statement.
const maxEventsPerInsert = 100

// =============================================================================
// Insert
// =============================================================================

// InsertEvents persists a batch of events atomically: either every event in
// the batch becomes durable or none does. Ids are assigned by the database
// sequence at commit, so they are monotonic in commit order.
func (s *Store) InsertEvents(ctx context.Context, events []event.LatencyEvent) error {
	if len(events) == 0 {
		return nil
	}

	// A single multi-row INSERT commits on its own, atomically.
	if len(events) <= maxEventsPerInsert {
		query, args, err := buildEventInsert(events)
		if err != nil {
			return err
		}
		_, err = s.writeExec(ctx, query, args...)
		return err
	}

	// Larger batches span statements, so wrap them in one transaction.
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		for i := 0; i < len(events); i += maxEventsPerInsert {
			end := i + maxEventsPerInsert
			if end > len(events) {
				end = len(events)
			}

			query, args, err := buildEventInsert(events[i:end])
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// buildEventInsert builds a multi-row INSERT statement. The id column is
// omitted so the sequence default assigns it.
func buildEventInsert(events []event.LatencyEvent) (string, []interface{}, error) {
	const columnsPerRow = 6

	args := make([]interface{}, 0, len(events)*columnsPerRow)

	var query strings.Builder
	query.Grow(120 + len(events)*16)

	query.WriteString(`INSERT INTO latency_events (ts_us, component, source_label, duration_us, success, metadata) VALUES `)

	for i, ev := range events {
		if i > 0 {
			query.WriteByte(',')
		}
		query.WriteString("(?,?,?,?,?,?)")

		meta, err := encodeMetadata(ev.Metadata)
		if err != nil {
			return "", nil, fmt.Errorf("encode metadata: %w", err)
		}

		args = append(args,
			ev.TsUs,
			string(ev.Component),
			ev.SourceLabel,
			ev.DurationUs,
			ev.Success,
			meta,
		)
	}

	return query.String(), args, nil
}

func encodeMetadata(m map[string]string) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeMetadata(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// =============================================================================
// Filters
// =============================================================================

// filterClause translates a Filter into a WHERE fragment. The lower time
// bound is inclusive, the upper bound exclusive. Zero values are unbounded.
func filterClause(f event.Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.Component != "" {
		conds = append(conds, "component = ?")
		args = append(args, string(f.Component))
	}
	if f.SinceUs > 0 {
		conds = append(conds, "ts_us >= ?")
		args = append(args, f.SinceUs)
	}
	if f.UntilUs > 0 {
		conds = append(conds, "ts_us < ?")
		args = append(args, f.UntilUs)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// =============================================================================
// Queries
// =============================================================================

// GetEvents returns matching events, newest first.
func (s *Store) GetEvents(ctx context.Context, f event.Filter, limit int) ([]event.LatencyEvent, error) {
	where, args := filterClause(f)

	query := `SELECT ` + eventColumns + ` FROM latency_events` + where + ` ORDER BY ts_us DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	capacity := limit
	if capacity <= 0 {
		capacity = 100
	}
	events := make([]event.LatencyEvent, 0, capacity)

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// ScanEvents streams matching events oldest first, calling fn for each.
// Used by the export path so a large result never materializes in memory.
func (s *Store) ScanEvents(ctx context.Context, f event.Filter, fn func(event.LatencyEvent) error) error {
	where, args := filterClause(f)

	query := `SELECT ` + eventColumns + ` FROM latency_events` + where + ` ORDER BY ts_us ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}

	return rows.Err()
}

func scanEvent(rows *sql.Rows) (event.LatencyEvent, error) {
	var ev event.LatencyEvent
	var component string
	var meta sql.NullString

	if err := rows.Scan(
		&ev.ID, &ev.TsUs, &component, &ev.SourceLabel,
		&ev.DurationUs, &ev.Success, &meta,
	); err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}

	ev.Component = event.Component(component)

	m, err := decodeMetadata(meta)
	if err != nil {
		return ev, fmt.Errorf("decode metadata: %w", err)
	}
	ev.Metadata = m

	return ev, nil
}

// CountEvents returns the number of matching events.
func (s *Store) CountEvents(ctx context.Context, f event.Filter) (int64, error) {
	where, args := filterClause(f)

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM latency_events`+where, args...).Scan(&count)
	return count, err
}

// DurationStats holds the aggregates the database computes directly.
type DurationStats struct {
	Count  int64
	MeanUs float64
	MinUs  int64
	MaxUs  int64
}

// GetDurationStats computes count, mean, min and max over the matching
// events in one pass inside the database.
func (s *Store) GetDurationStats(ctx context.Context, f event.Filter) (DurationStats, error) {
	where, args := filterClause(f)

	var stats DurationStats
	var mean sql.NullFloat64
	var min, max sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(duration_us), MIN(duration_us), MAX(duration_us) FROM latency_events`+where,
		args...,
	).Scan(&stats.Count, &mean, &min, &max)
	if err != nil {
		return stats, fmt.Errorf("query duration stats: %w", err)
	}

	if mean.Valid {
		stats.MeanUs = mean.Float64
	}
	if min.Valid {
		stats.MinUs = min.Int64
	}
	if max.Valid {
		stats.MaxUs = max.Int64
	}

	return stats, nil
}

// GetDurationsSorted returns the matching durations in ascending order,
// for exact percentile computation. Callers bound the window first via
// CountEvents; this materializes the full result.
func (s *Store) GetDurationsSorted(ctx context.Context, f event.Filter) ([]int64, error) {
	where, args := filterClause(f)

	rows, err := s.db.QueryContext(ctx,
		`SELECT duration_us FROM latency_events`+where+` ORDER BY duration_us ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query durations: %w", err)
	}
	defer rows.Close()

	durations := make([]int64, 0, 1024)
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		durations = append(durations, d)
	}

	return durations, rows.Err()
}

// ScanDurations streams the matching durations in arbitrary order, calling
// fn for each. Used to feed the histogram strategy without materializing
// the window.
func (s *Store) ScanDurations(ctx context.Context, f event.Filter, fn func(int64) error) error {
	where, args := filterClause(f)

	rows, err := s.db.QueryContext(ctx,
		`SELECT duration_us FROM latency_events`+where,
		args...,
	)
	if err != nil {
		return fmt.Errorf("query durations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return fmt.Errorf("scan duration: %w", err)
		}
		if err := fn(d); err != nil {
			return err
		}
	}

	return rows.Err()
}

// TimeBounds returns the oldest and newest stored timestamps.
// Both are zero when the table is empty.
func (s *Store) TimeBounds(ctx context.Context) (oldestUs, newestUs int64, err error) {
	var oldest, newest sql.NullInt64

	err = s.db.QueryRowContext(ctx,
		`SELECT MIN(ts_us), MAX(ts_us) FROM latency_events`,
	).Scan(&oldest, &newest)
	if err != nil {
		return 0, 0, fmt.Errorf("query time bounds: %w", err)
	}

	if oldest.Valid {
		oldestUs = oldest.Int64
	}
	if newest.Valid {
		newestUs = newest.Int64
	}
	return oldestUs, newestUs, nil
}

// ComponentCount is a per-component row count.
type ComponentCount struct {
	Component event.Component `json:"component"`
	Count     int64           `json:"count"`
}

// CountByComponent returns stored row counts grouped by component.
func (s *Store) CountByComponent(ctx context.Context) ([]ComponentCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT component, COUNT(*) FROM latency_events GROUP BY component ORDER BY component`,
	)
	if err != nil {
		return nil, fmt.Errorf("query component counts: %w", err)
	}
	defer rows.Close()

	var counts []ComponentCount
	for rows.Next() {
		var c ComponentCount
		var component string
		if err := rows.Scan(&component, &c.Count); err != nil {
			return nil, fmt.Errorf("scan component count: %w", err)
		}
		c.Component = event.Component(component)
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// =============================================================================
// Retention
// =============================================================================

// DeleteEventsBefore removes events with ts_us older than cutoffUs and
// returns the number of rows deleted. Runs under the commit lock.
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoffUs int64) (int64, error) {
	result, err := s.writeExec(ctx,
		`DELETE FROM latency_events WHERE ts_us < ?`, cutoffUs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// TrimEventsToCount deletes the oldest events until at most keep rows
// remain. The count and the delete run in one write transaction so a
// concurrent commit cannot slip rows in between.
func (s *Store) TrimEventsToCount(ctx context.Context, keep int64) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	var deleted int64
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		var count int64
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM latency_events`).Scan(&count); err != nil {
			return err
		}

		excess := count - keep
		if excess <= 0 {
			return nil
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM latency_events WHERE id IN (
				SELECT id FROM latency_events ORDER BY ts_us ASC, id ASC LIMIT ?
			)`, excess)
		if err != nil {
			return err
		}

		deleted, err = result.RowsAffected()
		return err
	})

	return deleted, err
}
