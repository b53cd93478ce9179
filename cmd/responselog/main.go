// Package main runs an HTTP server whose responses are logged to a time-series store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"responselog/config"
	"responselog/internal/logging"
	"responselog/internal/observability"
	"responselog/internal/responselog"
	"responselog/internal/server"
	"responselog/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// JSON until the configured format is known
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(os.Stdout, cfg.Log.Format, cfg.Log.Level); err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}

	slog.Info("starting responselog",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	logResult, err := responselog.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to initialize response logging", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := logResult.Close(); err != nil {
			slog.Error("failed to close response log storage", "error", err)
		}
	}()

	logResult.Middleware.SetErrorHandler(func(err error) {
		slog.Error("failed to write response log", "measurement", cfg.InfluxDB.Measurement, "error", err)
	})

	if cfg.Enabled {
		slog.Info("response logging enabled",
			"storage_type", cfg.Storage.Type,
			"measurement", cfg.InfluxDB.Measurement,
			"namespace", cfg.InfluxDB.Namespace,
			"status_code_only", cfg.StatusCodeOnly,
		)
	} else {
		slog.Info("response logging disabled")
	}

	if cfg.Metrics.Enabled {
		recorder := observability.NewMetricRecorder()
		recorder.MustRegister(prometheus.DefaultRegisterer)
		logResult.Middleware.SetEventRecorder(recorder)
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	srv := server.New(&server.Config{
		ResponseLog:     logResult.Middleware,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("starting server", "address", addr)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}
