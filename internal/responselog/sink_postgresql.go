package responselog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLSink implements Sink for PostgreSQL.
// Each measurement is a table with one column per tag and field.
type PostgreSQLSink struct {
	pool      *pgxpool.Pool
	table     string
	retention *retention
}

// NewPostgreSQLSink creates a PostgreSQL sink for measurement.
// It creates the table if it doesn't exist and prunes rows older than
// retentionDays in the background when that is positive.
func NewPostgreSQLSink(ctx context.Context, pool *pgxpool.Pool, measurement string, retentionDays int) (*PostgreSQLSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if measurement == "" {
		measurement = DefaultMeasurement
	}

	table := pgx.Identifier{measurement}.Sanitize()
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+table+` (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
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
			response_time BIGINT DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", measurement, err)
	}

	indexes := map[string]string{
		"timestamp": "timestamp",
		"series":    "namespace, path, method",
		"status":    "status_code",
	}
	for suffix, cols := range indexes {
		name := pgx.Identifier{"idx_" + measurement + "_" + suffix}.Sanitize()
		if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS "+name+" ON "+table+"("+cols+")"); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	sink := &PostgreSQLSink{pool: pool, table: table}
	sink.retention = startRetention(measurement, retentionDays, sink.prune)
	return sink, nil
}

// Commit inserts the record as one row.
func (s *PostgreSQLSink) Commit(ctx context.Context, schema *Schema, record *Record) error {
	columns, values := rowValues(schema, record)

	placeholders := make([]string, 0, len(columns)+2)
	args := make([]interface{}, 0, len(columns)+2)
	args = append(args, uuid.New(), record.Timestamp)
	for i := 1; i <= len(columns)+2; i++ {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
	}
	args = append(args, values...)

	query := "INSERT INTO " + pgx.Identifier{schema.Measurement}.Sanitize() +
		" (id, timestamp, " + strings.Join(columns, ", ") + ")" +
		" VALUES (" + strings.Join(placeholders, ", ") + ")"

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s row: %w", schema.Measurement, err)
	}
	return nil
}

// Close stops retention. The pool is managed by the storage layer.
func (s *PostgreSQLSink) Close() error {
	s.retention.stop()
	return nil
}

// prune deletes rows stamped before cutoff.
func (s *PostgreSQLSink) prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+s.table+" WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", s.table, err)
	}
	return tag.RowsAffected(), nil
}
