//go:build integration

package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"responselog/config"
	"responselog/internal/responselog"
	"responselog/internal/server"
	"responselog/internal/storage"
)

// TestServerConfig configures how the test server is set up.
type TestServerConfig struct {
	// StorageType is one of the storage.Type* constants
	StorageType string

	// Measurement isolates each test's table, collection or stream
	Measurement string

	// Namespace tags every record
	Namespace string

	// StatusCodeOnly limits which responses are stored
	StatusCodeOnly []int

	// RetentionDays configures cleanup for stores that support it
	RetentionDays int
}

// TestServerFixture holds test server resources.
type TestServerFixture struct {
	// ServerURL is the base URL of the test server
	ServerURL string

	// Result owns the middleware and its storage
	Result *responselog.Result

	server *httptest.Server

	mu         sync.Mutex
	commitErrs []error
}

// SetupTestServer creates a test server logging to the configured store.
func SetupTestServer(t *testing.T, cfg TestServerConfig) *TestServerFixture {
	t.Helper()

	result, err := responselog.New(testCtx, buildAppConfig(t, cfg))
	require.NoError(t, err, "failed to create response log")

	f := &TestServerFixture{Result: result}
	result.Middleware.SetErrorHandler(func(err error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.commitErrs = append(f.commitErrs, err)
	})

	f.server = httptest.NewServer(server.New(&server.Config{ResponseLog: result.Middleware}))
	f.ServerURL = f.server.URL

	t.Cleanup(func() { f.Shutdown(t) })
	return f
}

// Shutdown stops the server and releases storage.
func (f *TestServerFixture) Shutdown(t *testing.T) {
	t.Helper()

	if f.server != nil {
		f.server.Close()
		f.server = nil
	}
	if f.Result != nil {
		if err := f.Result.Close(); err != nil {
			t.Logf("failed to close response log: %v", err)
		}
		f.Result = nil
	}
}

// CommitErrors returns the errors reported by the middleware so far.
func (f *TestServerFixture) CommitErrors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.commitErrs...)
}

// Do sends a request to the test server and drains the response.
func (f *TestServerFixture) Do(t *testing.T, method, target, contentType, body string) int {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, f.ServerURL+target, reader)
	require.NoError(t, err, "failed to create request")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode
}

// buildAppConfig creates an application config for testing.
func buildAppConfig(t *testing.T, cfg TestServerConfig) *config.Config {
	t.Helper()

	appCfg := &config.Config{
		Enabled: true,
		InfluxDB: config.InfluxDBConfig{
			Host:        influxHost,
			Port:        influxPort,
			User:        "root",
			Password:    "root",
			Database:    testDatabase,
			Retries:     3,
			UDPPort:     4444,
			PoolSize:    10,
			Measurement: cfg.Measurement,
			Namespace:   cfg.Namespace,
		},
		StatusCodeOnly: cfg.StatusCodeOnly,
		Storage: config.StorageConfig{
			Type:          cfg.StorageType,
			RetentionDays: cfg.RetentionDays,
		},
	}

	switch cfg.StorageType {
	case storage.TypeInfluxDB:
	case storage.TypePostgreSQL:
		appCfg.Storage.PostgreSQL = config.PostgreSQLStorageConfig{
			URL:      pgURL,
			MaxConns: 5,
		}
	case storage.TypeMongoDB:
		appCfg.Storage.MongoDB = config.MongoDBStorageConfig{
			URL:      mongoURL,
			Database: testDatabase,
		}
	case storage.TypeRedis:
		appCfg.Storage.Redis = config.RedisStorageConfig{
			URL:    redisURL,
			MaxLen: 1000,
		}
	default:
		t.Fatalf("unsupported storage type: %s", cfg.StorageType)
	}

	return appCfg
}
