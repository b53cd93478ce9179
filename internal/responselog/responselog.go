// Package responselog records every HTTP request/response pair served by an
// application as one point in a time-series store.
//
// The pipeline runs once per request: the start time is captured on entry, and
// on exit a Record is built from the request and response, passed through the
// status filter and committed synchronously to a Sink. Commit failures are
// handed to the registered error handler and never change the response.
package responselog

import (
	"context"
	"time"
)

// Sink commits records to a time-series store.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Commit writes one record as one point described by schema.
	// It blocks until the store acknowledges or fails. It does not retry.
	Commit(ctx context.Context, schema *Schema, record *Record) error

	// Close releases resources owned by the sink.
	// Connections shared through the storage layer are not closed.
	Close() error
}

// Record is a single normalized request/response observation.
// It is built once per request and never mutated after being handed to a Sink.
type Record struct {
	// Timestamp is when the request started (UTC)
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// Tags
	Namespace string `json:"namespace" bson:"namespace"`
	Path      string `json:"path" bson:"path"`
	Method    string `json:"method" bson:"method"`

	// Fields
	RemoteAddr          string        `json:"remote_addr" bson:"remote_addr"`
	Headers             string        `json:"headers" bson:"headers"`
	FullPath            string        `json:"full_path" bson:"full_path"`
	QueryString         string        `json:"query_string" bson:"query_string"`
	Payload             string        `json:"payload" bson:"payload"`
	StatusCode          int           `json:"status_code" bson:"status_code"`
	Response            string        `json:"response" bson:"response"`
	ResponseContentType string        `json:"response_content_type" bson:"response_content_type"`
	ResponseTime        time.Duration `json:"response_time" bson:"response_time"`
}

// Tag and field names of the response log measurement.
const (
	TagNamespace = "namespace"
	TagPath      = "path"
	TagMethod    = "method"

	FieldRemoteAddr          = "remote_addr"
	FieldHeaders             = "headers"
	FieldFullPath            = "full_path"
	FieldQueryString         = "query_string"
	FieldPayload             = "payload"
	FieldStatusCode          = "status_code"
	FieldResponse            = "response"
	FieldResponseContentType = "response_content_type"
	FieldResponseTime        = "response_time"
)

// Schema describes how records map onto points of a measurement.
// It is built once by NewSchema and shared read-only by every request.
type Schema struct {
	Measurement string
	Tags        []string
	Fields      []string
}

// NewSchema returns the schema of the response log measurement.
// An empty measurement name falls back to DefaultMeasurement.
func NewSchema(measurement string) *Schema {
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	return &Schema{
		Measurement: measurement,
		Tags:        []string{TagNamespace, TagPath, TagMethod},
		Fields: []string{
			FieldRemoteAddr,
			FieldHeaders,
			FieldFullPath,
			FieldQueryString,
			FieldPayload,
			FieldStatusCode,
			FieldResponse,
			FieldResponseContentType,
			FieldResponseTime,
		},
	}
}

// Point projects a record onto the schema's tag and field names.
// The response time is stored as integer nanoseconds.
func (s *Schema) Point(r *Record) (tags map[string]string, fields map[string]interface{}, ts time.Time) {
	tags = make(map[string]string, len(s.Tags))
	for _, name := range s.Tags {
		tags[name] = r.tag(name)
	}
	fields = make(map[string]interface{}, len(s.Fields))
	for _, name := range s.Fields {
		if v, ok := r.field(name); ok {
			fields[name] = v
		}
	}
	return tags, fields, r.Timestamp
}

func (r *Record) tag(name string) string {
	switch name {
	case TagNamespace:
		return r.Namespace
	case TagPath:
		return r.Path
	case TagMethod:
		return r.Method
	}
	return ""
}

func (r *Record) field(name string) (interface{}, bool) {
	switch name {
	case FieldRemoteAddr:
		return r.RemoteAddr, true
	case FieldHeaders:
		return r.Headers, true
	case FieldFullPath:
		return r.FullPath, true
	case FieldQueryString:
		return r.QueryString, true
	case FieldPayload:
		return r.Payload, true
	case FieldStatusCode:
		return int64(r.StatusCode), true
	case FieldResponse:
		return r.Response, true
	case FieldResponseContentType:
		return r.ResponseContentType, true
	case FieldResponseTime:
		return r.ResponseTime.Nanoseconds(), true
	}
	return nil, false
}

// Config holds response logging configuration
type Config struct {
	// Measurement is the measurement name records are written under
	Measurement string

	// Namespace tags every record, so several applications can share a measurement
	Namespace string

	// StatusCodes limits logging to these response status codes.
	// Empty means every status code is logged.
	StatusCodes []int

	// CommitTimeout bounds a single commit (0 = no timeout beyond the request context)
	CommitTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Measurement: DefaultMeasurement,
	}
}
