package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the modelmux gateway.
type Config struct {
	Port      int
	Version   string
	Catalog   CatalogConfig
	Metrics   MetricsConfig
	Telemetry TelemetryConfig
}

type CatalogConfig struct {
	// Path to the model catalog YAML. Empty means the embedded default.
	Path string
}

type MetricsConfig struct {
	Dir                string
	MaxLogLength       int
	MaxLogArchiveFiles int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("MODELMUX_PORT", 8080),
		Version: envStr("MODELMUX_VERSION", "0.2.0"),
		Catalog: CatalogConfig{
			Path: envStr("MODELMUX_CATALOG_PATH", ""),
		},
		Metrics: MetricsConfig{
			Dir:                envStr("MODELMUX_METRICS_DIR", "metrics"),
			MaxLogLength:       envInt("MODELMUX_MAX_LOG_LENGTH", 1000),
			MaxLogArchiveFiles: envInt("MODELMUX_MAX_LOG_ARCHIVE_FILES", 50),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "modelmux"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
