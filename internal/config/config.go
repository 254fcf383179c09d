// Package config loads pipeline configuration from a TOML file with
// environment variable overrides.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	envConfigPath = "FLOWREPORT_CONFIG"
	envDatabase   = "FLOWREPORT_DATABASE_DSN"
	envHTTPAddr   = "FLOWREPORT_HTTP_ADDR"
	envEnviron    = "FLOWREPORT_ENV"
)

// Config is the root configuration for all binaries.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Database    DatabaseConfig  `toml:"database"`
	Jobs        JobsConfig      `toml:"jobs"`
	Telemetry   TelemetryConfig `toml:"telemetry"`
}

// ServerConfig controls the HTTP trigger/query surface.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// DatabaseConfig controls the gorm connection.
type DatabaseConfig struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// JobsConfig controls batch job behaviour.
type JobsConfig struct {
	RollupBatchSize     int      `toml:"rollup_batch_size"`
	FreezeWindow        Duration `toml:"freeze_window"`
	FreezeBatchSize     int      `toml:"freeze_batch_size"`
	DispatchWorkers     int      `toml:"dispatch_workers"`
	RenderTimeout       Duration `toml:"render_timeout"`
	DeliveryTimeout     Duration `toml:"delivery_timeout"`
	DeliveryMaxAttempts int      `toml:"delivery_max_attempts"`
	DeliveryBackoff     Duration `toml:"delivery_backoff"`
	RecipientLimit      int      `toml:"recipient_limit"`
}

// TelemetryConfig controls logging, metrics and tracing.
type TelemetryConfig struct {
	ServiceName      string  `toml:"service_name"`
	TracingEnabled   bool    `toml:"tracing_enabled"`
	ExporterEndpoint string  `toml:"exporter_endpoint"`
	ExporterProtocol string  `toml:"exporter_protocol"`
	SamplingRatio    float64 `toml:"sampling_ratio"`
}

// Duration unwraps TOML duration strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the built-in configuration used when no file is present.
func Default() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			DSN:          "file:flowreport.db?_fk=1",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Jobs: JobsConfig{
			RollupBatchSize:     100,
			FreezeWindow:        Duration{7 * 24 * time.Hour},
			FreezeBatchSize:     200,
			DispatchWorkers:     4,
			RenderTimeout:       Duration{30 * time.Second},
			DeliveryTimeout:     Duration{15 * time.Second},
			DeliveryMaxAttempts: 3,
			DeliveryBackoff:     Duration{2 * time.Second},
			RecipientLimit:      20,
		},
		Telemetry: TelemetryConfig{
			ServiceName:      "flowreport",
			TracingEnabled:   false,
			ExporterProtocol: "grpc",
			SamplingRatio:    1.0,
		},
	}
}

// Load reads configuration from FLOWREPORT_CONFIG (if set) and applies
// environment overrides on top of the defaults.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv(envConfigPath)); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if dsn := strings.TrimSpace(os.Getenv(envDatabase)); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := strings.TrimSpace(os.Getenv(envHTTPAddr)); addr != "" {
		cfg.Server.Addr = addr
	}
	if env := strings.TrimSpace(os.Getenv(envEnviron)); env != "" {
		cfg.Environment = env
	}

	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	defaults := Default()
	if c.Jobs.RollupBatchSize <= 0 {
		c.Jobs.RollupBatchSize = defaults.Jobs.RollupBatchSize
	}
	if c.Jobs.FreezeWindow.Duration <= 0 {
		c.Jobs.FreezeWindow = defaults.Jobs.FreezeWindow
	}
	if c.Jobs.FreezeBatchSize <= 0 {
		c.Jobs.FreezeBatchSize = defaults.Jobs.FreezeBatchSize
	}
	if c.Jobs.DispatchWorkers <= 0 {
		c.Jobs.DispatchWorkers = defaults.Jobs.DispatchWorkers
	}
	if c.Jobs.RenderTimeout.Duration <= 0 {
		c.Jobs.RenderTimeout = defaults.Jobs.RenderTimeout
	}
	if c.Jobs.DeliveryTimeout.Duration <= 0 {
		c.Jobs.DeliveryTimeout = defaults.Jobs.DeliveryTimeout
	}
	if c.Jobs.DeliveryMaxAttempts <= 0 {
		c.Jobs.DeliveryMaxAttempts = defaults.Jobs.DeliveryMaxAttempts
	}
	if c.Jobs.DeliveryBackoff.Duration <= 0 {
		c.Jobs.DeliveryBackoff = defaults.Jobs.DeliveryBackoff
	}
	if c.Jobs.RecipientLimit <= 0 {
		c.Jobs.RecipientLimit = defaults.Jobs.RecipientLimit
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
	return c
}

// IsProduction reports whether the process runs in the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
