package responselog

import (
	"context"
	"fmt"
	"strings"

	client "github.com/influxdata/influxdb1-client/v2"

	"responselog/internal/storage"
)

// The line protocol escapes commas, spaces and equals signs in tag values but
// has no escape for line breaks.
var tagLineBreaks = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// InfluxDBSink implements Sink for InfluxDB 1.x.
type InfluxDBSink struct {
	client *storage.InfluxDBClient
}

// NewInfluxDBSink creates a sink writing through c.
func NewInfluxDBSink(c *storage.InfluxDBClient) (*InfluxDBSink, error) {
	if c == nil {
		return nil, fmt.Errorf("InfluxDB client is required")
	}
	return &InfluxDBSink{client: c}, nil
}

// Commit writes the record as a single point.
func (s *InfluxDBSink) Commit(ctx context.Context, schema *Schema, record *Record) error {
	tags, fields, ts := schema.Point(record)
	for k, v := range tags {
		tags[k] = tagLineBreaks.Replace(v)
	}

	pt, err := client.NewPoint(schema.Measurement, tags, fields, ts)
	if err != nil {
		return fmt.Errorf("failed to build %s point: %w", schema.Measurement, err)
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  s.client.Database(),
		Precision: "ns",
	})
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	bp.AddPoint(pt)

	if err := s.client.Write(ctx, bp); err != nil {
		return fmt.Errorf("failed to write %s point: %w", schema.Measurement, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the storage layer.
func (s *InfluxDBSink) Close() error {
	return nil
}
