package responselog

import (
	"context"
	"errors"
	"fmt"

	"responselog/config"
	"responselog/internal/storage"
)

// Result holds the initialized middleware and its dependencies.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Middleware *Middleware
	Sink       Sink
	Storage    storage.Storage
}

// Close releases all resources held by the response log.
func (r *Result) Close() error {
	var errs []error
	if r.Sink != nil {
		if err := r.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New creates the response log middleware from configuration.
// The caller must call Result.Close() during shutdown.
//
// If response logging is disabled, the middleware commits to a NoopSink and
// no storage is opened.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	mwCfg := buildMiddlewareConfig(cfg)

	if !cfg.Enabled {
		sink := NoopSink{}
		return &Result{
			Middleware: NewMiddleware(sink, mwCfg),
			Sink:       sink,
		}, nil
	}

	store, err := storage.New(ctx, BuildStorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	sink, err := createSink(ctx, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Result{
		Middleware: NewMiddleware(sink, mwCfg),
		Sink:       sink,
		Storage:    store,
	}, nil
}

// BuildStorageConfig creates a storage.Config from the application config.
func BuildStorageConfig(cfg *config.Config) storage.Config {
	storageCfg := storage.DefaultConfig()
	if cfg.Storage.Type != "" {
		storageCfg.Type = cfg.Storage.Type
	}

	storageCfg.InfluxDB = storage.InfluxDBConfig{
		Host:      cfg.InfluxDB.Host,
		Port:      cfg.InfluxDB.Port,
		User:      cfg.InfluxDB.User,
		Password:  cfg.InfluxDB.Password,
		Database:  cfg.InfluxDB.Database,
		SSL:       cfg.InfluxDB.SSL,
		VerifySSL: cfg.InfluxDB.VerifySSL,
		Retries:   cfg.InfluxDB.Retries,
		Timeout:   cfg.InfluxDB.Timeout,
		UseUDP:    cfg.InfluxDB.UseUDP,
		UDPPort:   cfg.InfluxDB.UDPPort,
		Proxy:     cfg.InfluxDB.Proxies,
		PoolSize:  cfg.InfluxDB.PoolSize,
	}

	if cfg.Storage.SQLite.Path != "" {
		storageCfg.SQLite.Path = cfg.Storage.SQLite.Path
	}
	storageCfg.PostgreSQL.URL = cfg.Storage.PostgreSQL.URL
	if cfg.Storage.PostgreSQL.MaxConns > 0 {
		storageCfg.PostgreSQL.MaxConns = cfg.Storage.PostgreSQL.MaxConns
	}
	storageCfg.MongoDB.URL = cfg.Storage.MongoDB.URL
	if cfg.Storage.MongoDB.Database != "" {
		storageCfg.MongoDB.Database = cfg.Storage.MongoDB.Database
	}
	storageCfg.Redis.URL = cfg.Storage.Redis.URL
	if cfg.Storage.Redis.PoolSize > 0 {
		storageCfg.Redis.PoolSize = cfg.Storage.Redis.PoolSize
	}

	return storageCfg
}

// createSink creates the appropriate Sink for the given storage backend.
func createSink(ctx context.Context, store storage.Storage, cfg *config.Config) (Sink, error) {
	measurement := cfg.InfluxDB.Measurement
	retentionDays := cfg.Storage.RetentionDays

	switch store.Type() {
	case storage.TypeInfluxDB:
		return NewInfluxDBSink(store.InfluxDB())

	case storage.TypeSQLite:
		return NewSQLiteSink(store.SQLiteDB(), measurement, retentionDays)

	case storage.TypePostgreSQL:
		return NewPostgreSQLSink(ctx, store.PostgreSQLPool(), measurement, retentionDays)

	case storage.TypeMongoDB:
		return NewMongoDBSink(ctx, store.MongoDatabase(), measurement, retentionDays)

	case storage.TypeRedis:
		return NewRedisSink(store.Redis(), cfg.Storage.Redis.MaxLen)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

// buildMiddlewareConfig creates a responselog.Config from the application config.
func buildMiddlewareConfig(cfg *config.Config) Config {
	mwCfg := DefaultConfig()
	if cfg.InfluxDB.Measurement != "" {
		mwCfg.Measurement = cfg.InfluxDB.Measurement
	}
	mwCfg.Namespace = cfg.InfluxDB.Namespace
	mwCfg.StatusCodes = cfg.StatusCodeOnly
	mwCfg.CommitTimeout = cfg.CommitTimeout
	return mwCfg
}
