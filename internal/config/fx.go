package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) JobsConfig { return cfg.Jobs }),
	fx.Provide(func(cfg Config) TelemetryConfig { return cfg.Telemetry }),
)
