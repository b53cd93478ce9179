package responselog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink implements Sink for Redis streams.
// Each measurement is a stream; every record is one entry.
type RedisSink struct {
	client *redis.Client
	maxLen int64
}

// NewRedisSink creates a Redis sink. A positive maxLen caps each stream
// at roughly that many entries.
func NewRedisSink(client *redis.Client, maxLen int64) (*RedisSink, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if maxLen < 0 {
		maxLen = 0
	}
	return &RedisSink{client: client, maxLen: maxLen}, nil
}

// Commit appends the record to the measurement's stream.
func (s *RedisSink) Commit(ctx context.Context, schema *Schema, record *Record) error {
	tags, fields, ts := schema.Point(record)

	values := make([]interface{}, 0, 2*(len(schema.Tags)+len(schema.Fields)+1))
	values = append(values, "timestamp", ts.UTC().Format(time.RFC3339Nano))
	for _, name := range schema.Tags {
		values = append(values, name, tags[name])
	}
	for _, name := range schema.Fields {
		if v, ok := fields[name]; ok {
			values = append(values, name, v)
		}
	}

	args := &redis.XAddArgs{
		Stream: schema.Measurement,
		Values: values,
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to %s stream: %w", schema.Measurement, err)
	}
	return nil
}

// Close is a no-op; the client is managed by the storage layer.
func (s *RedisSink) Close() error {
	return nil
}
