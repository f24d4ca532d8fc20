// Package server provides the public entry point for initializing the
// modelmux gateway server.
//
// This package exists in pkg/ (not internal/) so embedders can compose the
// gateway with their own middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelmux/modelmux/internal/api"
	"github.com/modelmux/modelmux/internal/api/handlers"
	"github.com/modelmux/modelmux/internal/catalog"
	"github.com/modelmux/modelmux/internal/config"
	"github.com/modelmux/modelmux/internal/dispatch"
	"github.com/modelmux/modelmux/internal/metrics"
	"github.com/modelmux/modelmux/internal/retention"
	"github.com/modelmux/modelmux/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Config is the public configuration for the gateway server.
type Config struct {
	Port         int
	Version      string
	CatalogPath  string
	MetricsDir   string
	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string
}

// Server holds the initialized modelmux gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Catalog is the model registry, exposed so embedders can register
	// additional models at runtime.
	Catalog *catalog.Catalog

	// Config is the server configuration.
	Config *Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown. It flushes
	// pending metrics, stops provider adapters, and drains telemetry.
	ShutdownFunc func(context.Context) error
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	cfg := config.Load()
	return &Config{
		Port:         cfg.Port,
		Version:      cfg.Version,
		CatalogPath:  cfg.Catalog.Path,
		MetricsDir:   cfg.Metrics.Dir,
		OTELEnabled:  cfg.Telemetry.Enabled,
		OTELEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	}
}

// New initializes all gateway components and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, LoadConfig())
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(ctx context.Context, pubCfg *Config) (*Server, error) {
	cfg := config.Load()
	if pubCfg.Port > 0 {
		cfg.Port = pubCfg.Port
	}
	if pubCfg.CatalogPath != "" {
		cfg.Catalog.Path = pubCfg.CatalogPath
	}
	if pubCfg.MetricsDir != "" {
		cfg.Metrics.Dir = pubCfg.MetricsDir
	}

	telemetryShutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	log.Info().Int("models", cat.ModelCount()).Msg("✅ Model catalog loaded")

	recorder := metrics.NewRecorder(cfg.Metrics.Dir, cfg.Metrics.MaxLogLength, cfg.Metrics.MaxLogArchiveFiles)
	log.Info().Str("dir", cfg.Metrics.Dir).Msg("✅ Metrics recorder initialized")

	dispatcher := dispatch.New(cat, recorder)
	log.Info().Msg("✅ Dispatcher initialized")

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitor := retention.NewJanitor(recorder, cfg.Metrics.Dir, 0, 0)
	go janitor.Run(janitorCtx)

	h := handlers.New(cat, dispatcher, recorder)
	router := api.NewRouter(cfg, h)

	shutdown := func(ctx context.Context) error {
		stopJanitor()
		dispatcher.Close()
		recorder.Flush()
		return telemetryShutdown(ctx)
	}

	return &Server{
		Handler:      router,
		Catalog:      cat,
		Config:       pubCfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
