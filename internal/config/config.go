// Package config loads the service configuration from YAML files and the
// environment.
package config

import "time"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration for PrintPush.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Store        StoreConfig        `yaml:"store"`
	Printer      PrinterConfig      `yaml:"printer"`
	Relay        RelayConfig        `yaml:"relay"`
	RemoteConfig RemoteConfigConfig `yaml:"remote_config"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Sweeper      SweeperConfig      `yaml:"sweeper"`
	PubSub       PubSubConfig       `yaml:"pubsub"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Env             string        `yaml:"env"`
	LogLevel        string        `yaml:"log_level"`
	RequireTLS      bool          `yaml:"require_tls"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the persistence backend. Postgres connection settings
// come from the DB_* environment variables.
type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
}

type PrinterConfig struct {
	Name string `yaml:"name"`
}

type RelayConfig struct {
	// URL overrides the relay named by the remote config when set.
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
}

type RemoteConfigConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	FailureTTL      time.Duration `yaml:"failure_ttl"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type DispatchConfig struct {
	MaxInFlight   int64         `yaml:"max_in_flight"`
	MaxPending    int64         `yaml:"max_pending"`
	SendTimeout   time.Duration `yaml:"send_timeout"`
	TerminalDelay time.Duration `yaml:"terminal_delay"`
}

type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type PubSubConfig struct {
	ProjectID    string `yaml:"project_id"`
	Subscription string `yaml:"subscription"`
}

type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint"`
	SampleRatio    float64       `yaml:"sample_ratio"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

// Defaults returns a configuration with every tunable set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Env:             "development",
			LogLevel:        "info",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "./data/printpush.db",
		},
		Printer: PrinterConfig{
			Name: "Printer",
		},
		Relay: RelayConfig{
			Timeout: 10 * time.Second,
			Burst:   10,
		},
		RemoteConfig: RemoteConfigConfig{
			Timeout:         15 * time.Second,
			CacheTTL:        24 * time.Hour,
			FailureTTL:      5 * time.Minute,
			RefreshInterval: time.Hour,
		},
		Dispatch: DispatchConfig{
			MaxInFlight:   8,
			MaxPending:    64,
			SendTimeout:   30 * time.Second,
			TerminalDelay: 5 * time.Second,
		},
		Sweeper: SweeperConfig{
			Interval: 60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:   "localhost:4317",
			SampleRatio:    1.0,
			ExportInterval: 15 * time.Second,
		},
	}
}
