// Package config provides configuration management for the application.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RESPONSE_LOG"

// DefaultBodySizeLimit is the request body cap when none is configured (10MB).
const DefaultBodySizeLimit int64 = 10 * 1024 * 1024

// Config holds the application configuration
type Config struct {
	// Enabled turns response logging on (default: true)
	Enabled bool `mapstructure:"enabled"`

	InfluxDB InfluxDBConfig `mapstructure:"influxdb"`

	// StatusCodeOnly limits logging to these status codes (empty = all)
	StatusCodeOnly []int `mapstructure:"status_code_only" validate:"dive,min=100,max=599"`

	// CommitTimeout bounds a single commit (0 = no timeout)
	CommitTimeout time.Duration `mapstructure:"commit_timeout" validate:"gte=0"`

	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// InfluxDBConfig holds the time-series store connection and the measurement layout
type InfluxDBConfig struct {
	Host      string        `mapstructure:"host" validate:"required"`
	Port      int           `mapstructure:"port" validate:"min=1,max=65535"`
	User      string        `mapstructure:"user"`
	Password  string        `mapstructure:"password"`
	Database  string        `mapstructure:"database"`
	SSL       bool          `mapstructure:"ssl"`
	VerifySSL bool          `mapstructure:"verify_ssl"`
	Retries   int           `mapstructure:"retries" validate:"gte=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
	UseUDP    bool          `mapstructure:"use_udp"`
	UDPPort   int           `mapstructure:"udp_port" validate:"min=1,max=65535"`
	Proxies   string        `mapstructure:"proxies" validate:"omitempty,url"`
	PoolSize  int           `mapstructure:"pool_size" validate:"min=1"`

	Measurement string `mapstructure:"measurement" validate:"required"`
	Namespace   string `mapstructure:"namespace"`
}

// StorageConfig selects the store records are committed to
type StorageConfig struct {
	// Type is one of: influxdb, sqlite, postgresql, mongodb, redis
	Type string `mapstructure:"type" validate:"oneof=influxdb sqlite postgresql mongodb redis"`

	// RetentionDays deletes older records (0 = keep forever). Not used by influxdb.
	RetentionDays int `mapstructure:"retention_days" validate:"gte=0"`

	SQLite     SQLiteStorageConfig     `mapstructure:"sqlite"`
	PostgreSQL PostgreSQLStorageConfig `mapstructure:"postgresql"`
	MongoDB    MongoDBStorageConfig    `mapstructure:"mongodb"`
	Redis      RedisStorageConfig      `mapstructure:"redis"`
}

// SQLiteStorageConfig holds SQLite-specific storage configuration
type SQLiteStorageConfig struct {
	Path string `mapstructure:"path"`
}

// PostgreSQLStorageConfig holds PostgreSQL-specific storage configuration
type PostgreSQLStorageConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns" validate:"gte=0"`
}

// MongoDBStorageConfig holds MongoDB-specific storage configuration
type MongoDBStorageConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// RedisStorageConfig holds Redis stream storage configuration
type RedisStorageConfig struct {
	URL    string `mapstructure:"url"`
	MaxLen int64  `mapstructure:"max_len" validate:"gte=0"`
	// PoolSize caps client connections; 0 keeps the go-redis default
	PoolSize int `mapstructure:"pool_size" validate:"gte=0"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required,numeric"`
	// BodySizeLimit caps request bodies in bytes
	BodySizeLimit int64 `mapstructure:"body_size_limit" validate:"gte=0"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint" validate:"required,startswith=/"`
}

// LogConfig holds process logging configuration
type LogConfig struct {
	// Format is "json" or "text"
	Format string `mapstructure:"format" validate:"oneof=json text"`
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// defaults are applied before the config file and environment.
// Every key Load reads needs an entry so the environment can override it.
var defaults = map[string]interface{}{
	"enabled":              true,
	"influxdb.host":        "localhost",
	"influxdb.port":        8086,
	"influxdb.user":        "root",
	"influxdb.password":    "root",
	"influxdb.database":    "",
	"influxdb.ssl":         false,
	"influxdb.verify_ssl":  false,
	"influxdb.retries":     3,
	"influxdb.timeout":     "0s",
	"influxdb.use_udp":     false,
	"influxdb.udp_port":    4444,
	"influxdb.proxies":     "",
	"influxdb.pool_size":   10,
	"influxdb.measurement": "response_log",
	"influxdb.namespace":   "",
	"status_code_only":     "",
	"commit_timeout":       "0s",

	"storage.type":                 "influxdb",
	"storage.retention_days":       0,
	"storage.sqlite.path":          ".cache/responselog.db",
	"storage.postgresql.url":       "",
	"storage.postgresql.max_conns": 10,
	"storage.mongodb.url":          "",
	"storage.mongodb.database":     "responselog",
	"storage.redis.url":            "",
	"storage.redis.max_len":        0,
	"storage.redis.pool_size":      0,

	"server.port":            "8080",
	"server.body_size_limit": DefaultBodySizeLimit,
	"metrics.enabled":  true,
	"metrics.endpoint": "/metrics",
	"log.format":       "json",
	"log.level":        "info",
}

// configPaths are searched in order for config.yaml.
var configPaths = []string{".", "./config"}

// Load reads configuration from defaults, an optional config.yaml, an optional
// .env file and the environment, in increasing order of precedence.
// Values in config.yaml may reference the environment as ${VAR} or ${VAR:-default}.
func Load() (*Config, error) {
	// .env is optional and never overrides variables already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind PORT: %w", err)
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToIntSliceHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its field constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// readConfigFile merges the first config.yaml found in configPaths.
func readConfigFile(v *viper.Viper) error {
	for _, dir := range configPaths {
		path := filepath.Join(dir, "config.yaml")
		raw, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		v.SetConfigType("yaml")
		if err := v.MergeConfig(bytes.NewReader([]byte(expandEnv(string(raw))))); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default} references.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if val, ok := os.LookupEnv(m[1]); ok && val != "" {
			return val
		}
		return m[2]
	})
}

// stringToIntSliceHook decodes "200, 404" into []int{200, 404}.
func stringToIntSliceHook() mapstructure.DecodeHookFuncType {
	intSlice := reflect.TypeOf([]int{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != intSlice {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []int{}, nil
		}
		parts := strings.Split(raw, ",")
		codes := make([]int, 0, len(parts))
		for _, p := range parts {
			code, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("invalid status code %q", strings.TrimSpace(p))
			}
			codes = append(codes, code)
		}
		return codes, nil
	}
}
