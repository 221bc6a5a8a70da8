// Package main starts the localfirst HTTP server: it opens the configured
// persistence medium, loads every bundled app and serves the catalog API,
// the kv endpoints used by remote clients and Prometheus metrics.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/datavtar/localfirst/internal/ai"
	"github.com/datavtar/localfirst/internal/apps"
	"github.com/datavtar/localfirst/internal/config"
	"github.com/datavtar/localfirst/internal/db"
	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/logger"
	"github.com/datavtar/localfirst/internal/server/handler/http"
	"github.com/datavtar/localfirst/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	if err := run(options, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func run(options *config.Options, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	medium, err := db.OpenMedium(ctx, options, zapLogger)
	if err != nil {
		return fmt.Errorf("cannot open medium: %w", err)
	}
	defer medium.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	instrumented, err := kv.Instrument(medium, options.Medium, reg)
	if err != nil {
		return fmt.Errorf("cannot register metrics: %w", err)
	}

	// Load every app. A corrupt snapshot only costs its own collection.
	registry := apps.New(instrumented, zapLogger)
	if err := registry.Load(ctx); err != nil {
		zapLogger.Warn("some collections started empty", zap.Error(err))
	}

	var completer ai.Completer
	if client := ai.New(options.AIConfig(), nil, zapLogger); client.Configured() {
		completer = client
	} else if options.AI.BaseURL != "" {
		zapLogger.Warn("ai credentials incomplete, ai features disabled")
	}

	catalogService := service.NewCatalogService(registry, completer, zapLogger)

	router := http.NewRouter(
		&http.CatalogHandler{Service: catalogService},
		http.NewKVHandler(instrumented),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if medium.SQL != nil && options.Medium == "postgres" {
		db.StartTombstoneCleaner(gctx, medium.SQL, time.Hour, options.Retention, zapLogger)
	}

	g.Go(func() error {
		var err error
		if options.TLSCert != "" && options.TLSKey != "" {
			zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port), zap.String("medium", options.Medium))
			err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
		} else {
			zapLogger.Info("starting HTTP server", zap.String("addr", options.Port), zap.String("medium", options.Medium))
			err = server.ListenAndServe()
		}
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
