package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	client "github.com/influxdata/influxdb1-client/v2"
	"golang.org/x/sync/semaphore"
)

// InfluxDB defaults.
const (
	DefaultInfluxDBHost     = "localhost"
	DefaultInfluxDBPort     = 8086
	DefaultInfluxDBUser     = "root"
	DefaultInfluxDBPassword = "root"
	DefaultInfluxDBRetries  = 3
	DefaultInfluxDBUDPPort  = 4444
	DefaultInfluxDBPoolSize = 10

	influxPingTimeout = 5 * time.Second
)

// InfluxDBConfig holds InfluxDB 1.x connection configuration.
type InfluxDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// Database is required for the HTTP transport; UDP writes go to the
	// database configured on the server's UDP listener.
	Database string

	// SSL switches the HTTP transport to https
	SSL bool
	// VerifySSL enables certificate verification when SSL is on
	VerifySSL bool

	// Retries is the number of times a write is retried after a connection
	// failure (0 = retry until success or until the context ends)
	Retries int
	// Timeout is the HTTP request timeout (0 = none)
	Timeout time.Duration

	// UseUDP writes over UDP to UDPPort instead of HTTP
	UseUDP  bool
	UDPPort int

	// Proxy is the outbound proxy URL for the HTTP transport
	Proxy string

	// PoolSize is the maximum number of concurrent writes
	PoolSize int
}

// DefaultInfluxDBConfig returns an InfluxDBConfig with sensible defaults
func DefaultInfluxDBConfig() InfluxDBConfig {
	return InfluxDBConfig{
		Host:     DefaultInfluxDBHost,
		Port:     DefaultInfluxDBPort,
		User:     DefaultInfluxDBUser,
		Password: DefaultInfluxDBPassword,
		Retries:  DefaultInfluxDBRetries,
		UDPPort:  DefaultInfluxDBUDPPort,
		PoolSize: DefaultInfluxDBPoolSize,
	}
}

// influxConn is the part of client.Client used for writes.
type influxConn interface {
	Ping(timeout time.Duration) (time.Duration, string, error)
	Write(bp client.BatchPoints) error
	Close() error
}

// InfluxDBClient writes batches of points to InfluxDB.
// Writes are limited to PoolSize in flight and retried on connection failures.
type InfluxDBClient struct {
	conn     influxConn
	database string
	retries  int
	sem      *semaphore.Weighted

	// newBackOff builds the retry schedule of one write
	newBackOff func() backoff.BackOff
}

// NewInfluxDBClient creates an InfluxDB client from cfg.
// No connection is made; see NewInfluxDB for the storage wrapper that also pings.
func NewInfluxDBClient(cfg InfluxDBConfig) (*InfluxDBClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("InfluxDB host is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultInfluxDBPoolSize
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("InfluxDB retries must not be negative: %d", cfg.Retries)
	}

	var conn influxConn
	var err error
	if cfg.UseUDP {
		conn, err = newInfluxUDPConn(cfg)
	} else {
		conn, err = newInfluxHTTPConn(cfg)
	}
	if err != nil {
		return nil, err
	}

	return newInfluxDBClient(conn, cfg), nil
}

func newInfluxDBClient(conn influxConn, cfg InfluxDBConfig) *InfluxDBClient {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultInfluxDBPoolSize
	}
	return &InfluxDBClient{
		conn:       conn,
		database:   cfg.Database,
		retries:    cfg.Retries,
		sem:        semaphore.NewWeighted(int64(poolSize)),
		newBackOff: defaultInfluxBackOff,
	}
}

func newInfluxHTTPConn(cfg InfluxDBConfig) (influxConn, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("InfluxDB database is required for the HTTP transport")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid InfluxDB port: %d", cfg.Port)
	}

	scheme := "http"
	if cfg.SSL {
		scheme = "https"
	}

	httpCfg := client.HTTPConfig{
		Addr:               scheme + "://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Username:           cfg.User,
		Password:           cfg.Password,
		UserAgent:          "responselog",
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.SSL && !cfg.VerifySSL,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil || proxyURL.Scheme == "" || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid InfluxDB proxy URL: %q", cfg.Proxy)
		}
		httpCfg.Proxy = http.ProxyURL(proxyURL)
	}

	c, err := client.NewHTTPClient(httpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB HTTP client: %w", err)
	}
	return c, nil
}

func newInfluxUDPConn(cfg InfluxDBConfig) (influxConn, error) {
	if cfg.UDPPort <= 0 || cfg.UDPPort > 65535 {
		return nil, fmt.Errorf("invalid InfluxDB UDP port: %d", cfg.UDPPort)
	}

	c, err := client.NewUDPClient(client.UDPConfig{
		Addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.UDPPort)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB UDP client: %w", err)
	}
	return c, nil
}

// Database returns the database points are written to.
func (c *InfluxDBClient) Database() string {
	return c.database
}

// Write sends bp. It waits for a free connection slot, then retries connection
// failures up to the configured number of times. Errors reported by the server
// are not retried.
func (c *InfluxDBClient) Write(ctx context.Context, bp client.BatchPoints) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire InfluxDB connection: %w", err)
	}
	defer c.sem.Release(1)

	var b backoff.BackOff = c.newBackOff()
	if c.retries > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.retries))
	}

	return backoff.Retry(func() error {
		err := c.conn.Write(bp)
		if err == nil {
			return nil
		}
		if !isConnectionError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

// Ping checks the server is reachable.
func (c *InfluxDBClient) Ping(timeout time.Duration) error {
	_, _, err := c.conn.Ping(timeout)
	return err
}

// Close closes the underlying client.
func (c *InfluxDBClient) Close() error {
	return c.conn.Close()
}

// isConnectionError reports whether err happened before the server answered.
func isConnectionError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func defaultInfluxBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// influxStorage implements Storage for InfluxDB
type influxStorage struct {
	noBackends
	client *InfluxDBClient
}

// NewInfluxDB creates the InfluxDB storage. An unreachable server is logged,
// not fatal: commits fail and are reported per request until it comes up.
func NewInfluxDB(_ context.Context, cfg InfluxDBConfig) (Storage, error) {
	c, err := NewInfluxDBClient(cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.UseUDP {
		if err := c.Ping(influxPingTimeout); err != nil {
			slog.Warn("InfluxDB is not reachable", "host", cfg.Host, "port", cfg.Port, "error", err)
		}
	}

	return &influxStorage{client: c}, nil
}

func (s *influxStorage) Type() string {
	return TypeInfluxDB
}

func (s *influxStorage) InfluxDB() *InfluxDBClient {
	return s.client
}

func (s *influxStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
