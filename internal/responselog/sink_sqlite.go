package responselog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteSink implements Sink for SQLite databases.
type SQLiteSink struct {
	db        *sql.DB
	table     string
	retention *retention
}

// NewSQLiteSink creates a SQLite sink for measurement.
// It creates the table if it doesn't exist and prunes rows older than
// retentionDays in the background when that is positive.
func NewSQLiteSink(db *sql.DB, measurement string, retentionDays int) (*SQLiteSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if measurement == "" {
		measurement = DefaultMeasurement
	}

	table := quoteSQLiteIdent(measurement)
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + table + ` (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			namespace TEXT,
			path TEXT,
			method TEXT,
			remote_addr TEXT,
			headers TEXT,
			full_path TEXT,
			query_string TEXT,
			payload TEXT,
			status_code INTEGER DEFAULT 0,
			response TEXT,
			response_content_type TEXT,
			response_time INTEGER DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", measurement, err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS " + quoteSQLiteIdent("idx_"+measurement+"_timestamp") + " ON " + table + "(timestamp)",
		"CREATE INDEX IF NOT EXISTS " + quoteSQLiteIdent("idx_"+measurement+"_series") + " ON " + table + "(namespace, path, method)",
		"CREATE INDEX IF NOT EXISTS " + quoteSQLiteIdent("idx_"+measurement+"_status") + " ON " + table + "(status_code)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	sink := &SQLiteSink{db: db, table: table}
	sink.retention = startRetention(measurement, retentionDays, sink.prune)
	return sink, nil
}

// Commit inserts the record as one row.
func (s *SQLiteSink) Commit(ctx context.Context, schema *Schema, record *Record) error {
	columns, values := rowValues(schema, record)

	args := make([]interface{}, 0, len(values)+2)
	args = append(args, uuid.NewString(), record.Timestamp.UTC().Format(time.RFC3339Nano))
	args = append(args, values...)

	query := "INSERT INTO " + quoteSQLiteIdent(schema.Measurement) +
		" (id, timestamp, " + strings.Join(columns, ", ") + ")" +
		" VALUES (?" + strings.Repeat(", ?", len(args)-1) + ")"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s row: %w", schema.Measurement, err)
	}
	return nil
}

// Close stops retention. The database connection is managed by the storage layer.
func (s *SQLiteSink) Close() error {
	s.retention.stop()
	return nil
}

// prune deletes rows stamped before cutoff.
func (s *SQLiteSink) prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE timestamp < ?",
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", s.table, err)
	}
	return result.RowsAffected()
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
