//go:build integration

// Package dbassert provides database assertion helpers for integration tests.
// It reads response log records back from InfluxDB, PostgreSQL, MongoDB and Redis.
package dbassert

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Entry is one stored record, independent of the store it was read from.
type Entry struct {
	Timestamp           time.Time
	Namespace           string
	Path                string
	Method              string
	RemoteAddr          string
	Headers             string
	FullPath            string
	QueryString         string
	Payload             string
	StatusCode          int
	Response            string
	ResponseContentType string
	ResponseTime        int64
}

// Expected contains expected values for record assertions.
// Zero values are not checked, allowing partial matching.
type Expected struct {
	Namespace           string
	Path                string
	Method              string
	FullPath            string
	QueryString         string
	Payload             string
	StatusCode          int
	Response            string
	ResponseContentType string
}

// AssertEntry compares entry against the non-zero fields of want.
func AssertEntry(t *testing.T, want Expected, entry Entry) {
	t.Helper()

	check := func(field, want, got string) {
		if want != "" {
			assert.Equal(t, want, got, field)
		}
	}
	check("namespace", want.Namespace, entry.Namespace)
	check("path", want.Path, entry.Path)
	check("method", want.Method, entry.Method)
	check("full_path", want.FullPath, entry.FullPath)
	check("query_string", want.QueryString, entry.QueryString)
	check("payload", want.Payload, entry.Payload)
	check("response", want.Response, entry.Response)
	check("response_content_type", want.ResponseContentType, entry.ResponseContentType)
	if want.StatusCode != 0 {
		assert.Equal(t, want.StatusCode, entry.StatusCode, "status_code")
	}

	assert.False(t, entry.Timestamp.IsZero(), "timestamp must be set")
	assert.Positive(t, entry.ResponseTime, "response_time must be positive")
	assert.True(t, gjson.Valid(entry.Headers), "headers must be JSON: %s", entry.Headers)
}

// QueryPostgreSQL returns every row of the measurement's table, oldest first.
func QueryPostgreSQL(t *testing.T, pool *pgxpool.Pool, measurement string) []Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT timestamp, namespace, path, method, remote_addr, headers, full_path,
		       query_string, payload, status_code, response, response_content_type, response_time
		FROM %s
		ORDER BY timestamp ASC
	`, pgx.Identifier{measurement}.Sanitize())

	rows, err := pool.Query(ctx, query)
	require.NoError(t, err, "failed to query response log")
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.Timestamp, &e.Namespace, &e.Path, &e.Method, &e.RemoteAddr, &e.Headers, &e.FullPath,
			&e.QueryString, &e.Payload, &e.StatusCode, &e.Response, &e.ResponseContentType, &e.ResponseTime,
		)
		require.NoError(t, err, "failed to scan response log row")
		entries = append(entries, e)
	}
	require.NoError(t, rows.Err(), "error iterating response log rows")

	return entries
}

type mongoEntry struct {
	Timestamp time.Time `bson:"timestamp"`
	Tags      struct {
		Namespace string `bson:"namespace"`
		Path      string `bson:"path"`
		Method    string `bson:"method"`
	} `bson:"tags"`
	RemoteAddr          string `bson:"remote_addr"`
	Headers             string `bson:"headers"`
	FullPath            string `bson:"full_path"`
	QueryString         string `bson:"query_string"`
	Payload             string `bson:"payload"`
	StatusCode          int    `bson:"status_code"`
	Response            string `bson:"response"`
	ResponseContentType string `bson:"response_content_type"`
	ResponseTime        int64  `bson:"response_time"`
}

// QueryMongoDB returns every document of the measurement's collection, oldest first.
func QueryMongoDB(t *testing.T, db *mongo.Database, measurement string) []Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := db.Collection(measurement).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	require.NoError(t, err, "failed to query response log")
	defer func() { _ = cursor.Close(ctx) }()

	var docs []mongoEntry
	require.NoError(t, cursor.All(ctx, &docs), "failed to decode response log documents")

	entries := make([]Entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, Entry{
			Timestamp:           d.Timestamp,
			Namespace:           d.Tags.Namespace,
			Path:                d.Tags.Path,
			Method:              d.Tags.Method,
			RemoteAddr:          d.RemoteAddr,
			Headers:             d.Headers,
			FullPath:            d.FullPath,
			QueryString:         d.QueryString,
			Payload:             d.Payload,
			StatusCode:          d.StatusCode,
			Response:            d.Response,
			ResponseContentType: d.ResponseContentType,
			ResponseTime:        d.ResponseTime,
		})
	}
	return entries
}

// QueryRedis returns every entry of the measurement's stream, oldest first.
func QueryRedis(t *testing.T, client *redis.Client, measurement string) []Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgs, err := client.XRange(ctx, measurement, "-", "+").Result()
	require.NoError(t, err, "failed to read response log stream")

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		str := func(key string) string {
			s, _ := msg.Values[key].(string)
			return s
		}
		ts, err := time.Parse(time.RFC3339Nano, str("timestamp"))
		require.NoError(t, err, "invalid timestamp in stream entry %s", msg.ID)
		status, err := strconv.Atoi(str("status_code"))
		require.NoError(t, err, "invalid status_code in stream entry %s", msg.ID)
		elapsed, err := strconv.ParseInt(str("response_time"), 10, 64)
		require.NoError(t, err, "invalid response_time in stream entry %s", msg.ID)

		entries = append(entries, Entry{
			Timestamp:           ts,
			Namespace:           str("namespace"),
			Path:                str("path"),
			Method:              str("method"),
			RemoteAddr:          str("remote_addr"),
			Headers:             str("headers"),
			FullPath:            str("full_path"),
			QueryString:         str("query_string"),
			Payload:             str("payload"),
			StatusCode:          status,
			Response:            str("response"),
			ResponseContentType: str("response_content_type"),
			ResponseTime:        elapsed,
		})
	}
	return entries
}

// QueryInfluxDB runs SELECT * against the measurement over the HTTP API, oldest first.
func QueryInfluxDB(t *testing.T, host string, port int, database, measurement string) []Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("db", database)
	params.Set("epoch", "ns")
	params.Set("q", fmt.Sprintf(`SELECT * FROM %q`, measurement))
	target := fmt.Sprintf("http://%s/query?%s", net.JoinHostPort(host, strconv.Itoa(port)), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to query InfluxDB")
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	series := gjson.GetBytes(body, "results.0.series.0")
	if !series.Exists() {
		return nil
	}

	columns := map[string]int{}
	for i, c := range series.Get("columns").Array() {
		columns[c.String()] = i
	}

	var entries []Entry
	for _, row := range series.Get("values").Array() {
		values := row.Array()
		col := func(name string) gjson.Result {
			i, ok := columns[name]
			if !ok || i >= len(values) {
				return gjson.Result{}
			}
			return values[i]
		}
		entries = append(entries, Entry{
			Timestamp:           time.Unix(0, col("time").Int()).UTC(),
			Namespace:           col("namespace").String(),
			Path:                col("path").String(),
			Method:              col("method").String(),
			RemoteAddr:          col("remote_addr").String(),
			Headers:             col("headers").String(),
			FullPath:            col("full_path").String(),
			QueryString:         col("query_string").String(),
			Payload:             col("payload").String(),
			StatusCode:          int(col("status_code").Int()),
			Response:            col("response").String(),
			ResponseContentType: col("response_content_type").String(),
			ResponseTime:        col("response_time").Int(),
		})
	}
	return entries
}
