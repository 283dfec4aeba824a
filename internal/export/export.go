// Package export streams stored events out in bulk.
//
// Exports read through the store's streaming scan on the read-side
// connection pool, so a long extraction never touches the commit path.
// Rows arrive in ascending timestamp order in all formats.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/logging"
)

// parquetChunkRows is how many rows buffer before a parquet write call.
const parquetChunkRows = 1000

// Format selects the export encoding.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

// ParseFormat converts a format string. Empty selects JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatParquet, FormatCSV, FormatJSON:
		return Format(s), nil
	case "":
		return FormatJSON, nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidFormat, "%q", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatParquet:
		return "application/vnd.apache.parquet"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// FileName returns a timestamped download name for the format.
func (f Format) FileName(at time.Time) string {
	return fmt.Sprintf("pulse-events-%s.%s", at.UTC().Format("20060102T150405Z"), f)
}

// eventRow is the parquet shape of one event. Metadata is flattened to a
// JSON string column.
type eventRow struct {
	ID          int64  `parquet:"id"`
	TsUs        int64  `parquet:"ts_us"`
	Component   string `parquet:"component,zstd"`
	SourceLabel string `parquet:"source_label,zstd"`
	DurationUs  int64  `parquet:"duration_us"`
	Success     bool   `parquet:"success"`
	Metadata    string `parquet:"metadata,optional,zstd"`
}

// EventScanner is the store surface exports read from.
type EventScanner interface {
	ScanEvents(ctx context.Context, f event.Filter, fn func(event.LatencyEvent) error) error
}

// Exporter writes filtered events to an output stream.
type Exporter struct {
	store EventScanner
	log   *slog.Logger
}

// New creates an exporter reading from store.
func New(store EventScanner) *Exporter {
	return &Exporter{
		store: store,
		log:   logging.Component("export"),
	}
}

// Export streams every event matching f to w in the given format and
// returns the row count. The filter is validated first; encoding errors
// abort the stream mid-write.
func (e *Exporter) Export(ctx context.Context, w io.Writer, f event.Filter, format Format) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}

	start := time.Now()
	var rows int64
	var err error

	switch format {
	case FormatParquet:
		rows, err = e.writeParquet(ctx, w, f)
	case FormatCSV:
		rows, err = e.writeCSV(ctx, w, f)
	case FormatJSON:
		rows, err = e.writeJSON(ctx, w, f)
	default:
		return 0, errors.Wrapf(errors.ErrInvalidFormat, "%q", format)
	}
	if err != nil {
		return rows, err
	}

	e.log.Info("export finished",
		"format", string(format),
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds())
	return rows, nil
}

func (e *Exporter) writeParquet(ctx context.Context, w io.Writer, f event.Filter) (int64, error) {
	pw := parquet.NewGenericWriter[eventRow](w, parquet.Compression(&parquet.Zstd))

	var total int64
	chunk := make([]eventRow, 0, parquetChunkRows)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		n, err := pw.Write(chunk)
		if err != nil {
			return errors.Wrap(err, "write parquet rows")
		}
		total += int64(n)
		chunk = chunk[:0]
		return nil
	}

	err := e.store.ScanEvents(ctx, f, func(ev event.LatencyEvent) error {
		row := eventRow{
			ID:          ev.ID,
			TsUs:        ev.TsUs,
			Component:   string(ev.Component),
			SourceLabel: ev.SourceLabel,
			DurationUs:  ev.DurationUs,
			Success:     ev.Success,
		}
		if len(ev.Metadata) > 0 {
			meta, err := json.Marshal(ev.Metadata)
			if err != nil {
				return errors.Wrap(err, "encode metadata")
			}
			row.Metadata = string(meta)
		}
		chunk = append(chunk, row)
		if len(chunk) == parquetChunkRows {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	if err := pw.Close(); err != nil {
		return total, errors.Wrap(err, "close parquet writer")
	}
	return total, nil
}

var csvHeader = []string{"id", "ts_us", "component", "source_label", "duration_us", "success", "metadata"}

func (e *Exporter) writeCSV(ctx context.Context, w io.Writer, f event.Filter) (int64, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, errors.Wrap(err, "write csv header")
	}

	var total int64
	err := e.store.ScanEvents(ctx, f, func(ev event.LatencyEvent) error {
		meta := ""
		if len(ev.Metadata) > 0 {
			b, err := json.Marshal(ev.Metadata)
			if err != nil {
				return errors.Wrap(err, "encode metadata")
			}
			meta = string(b)
		}
		record := []string{
			strconv.FormatInt(ev.ID, 10),
			strconv.FormatInt(ev.TsUs, 10),
			string(ev.Component),
			ev.SourceLabel,
			strconv.FormatInt(ev.DurationUs, 10),
			strconv.FormatBool(ev.Success),
			meta,
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "write csv row")
		}
		total++
		return nil
	})
	if err != nil {
		return total, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return total, errors.Wrap(err, "flush csv")
	}
	return total, nil
}

func (e *Exporter) writeJSON(ctx context.Context, w io.Writer, f event.Filter) (int64, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, errors.Wrap(err, "write json")
	}

	var total int64
	err := e.store.ScanEvents(ctx, f, func(ev event.LatencyEvent) error {
		b, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrap(err, "encode event")
		}
		sep := ",\n"
		if total == 0 {
			sep = "\n"
		}
		if _, err := io.WriteString(w, sep); err != nil {
			return errors.Wrap(err, "write json")
		}
		if _, err := w.Write(b); err != nil {
			return errors.Wrap(err, "write json")
		}
		total++
		return nil
	})
	if err != nil {
		return total, err
	}

	if _, err := io.WriteString(w, "\n]\n"); err != nil {
		return total, errors.Wrap(err, "write json")
	}
	return total, nil
}
