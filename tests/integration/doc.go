// Package integration verifies stored response log records after HTTP
// requests. These tests use real databases via testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
