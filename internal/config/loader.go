package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/printpush/printpush.yaml",
		"printpush.yaml",
	}

	if envPath := os.Getenv("PRINTPUSH_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/printpush/printpush.yaml < ./printpush.yaml < $PRINTPUSH_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path, false); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFromFile reads configuration from a specific file path. Unlike the
// search path, the file must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path, true); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) error {
	if port := os.Getenv("APP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("APP_PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Server.Env = env
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Server.LogLevel = level
	}
	if v := os.Getenv("REQUIRE_TLS"); v != "" {
		cfg.Server.RequireTLS = v == "true"
	}
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		cfg.Store.Driver = driver
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.Store.SQLitePath = path
	}
	if name := os.Getenv("PRINTER_NAME"); name != "" {
		cfg.Printer.Name = name
	}
	if url := os.Getenv("RELAY_URL"); url != "" {
		cfg.Relay.URL = url
	}
	if url := os.Getenv("REMOTE_CONFIG_URL"); url != "" {
		cfg.RemoteConfig.URL = url
	}
	if project := os.Getenv("PUBSUB_PROJECT_ID"); project != "" {
		cfg.PubSub.ProjectID = project
	}
	if sub := os.Getenv("PUBSUB_SUBSCRIPTION"); sub != "" {
		cfg.PubSub.Subscription = sub
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = v == "true"
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.OTLPEndpoint = endpoint
	}
	return nil
}

func loadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch cfg.Store.Driver {
	case DriverMemory, DriverPostgres:
	case DriverSQLite:
		if cfg.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be one of memory, sqlite, postgres, got %q", cfg.Store.Driver)
	}

	if strings.TrimSpace(cfg.Printer.Name) == "" {
		return fmt.Errorf("printer.name must not be empty")
	}

	if cfg.Dispatch.MaxInFlight < 1 {
		return fmt.Errorf("dispatch.max_in_flight must be at least 1")
	}
	if cfg.Dispatch.MaxPending < cfg.Dispatch.MaxInFlight {
		return fmt.Errorf("dispatch.max_pending must be at least dispatch.max_in_flight")
	}

	if cfg.RemoteConfig.RefreshInterval <= 0 {
		return fmt.Errorf("remote_config.refresh_interval must be positive")
	}
	if cfg.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	if cfg.Relay.RateLimit < 0 {
		return fmt.Errorf("relay.rate_limit must not be negative")
	}

	return nil
}
