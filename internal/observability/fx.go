// Package observability groups logging, tracing and metrics wiring.
package observability

import (
	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/logger"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/metrics"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/tracing"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	logger.Module,
	fx.Invoke(tracing.NewProvider),
	fx.Provide(func(cfg config.Config) *metrics.PipelineMetrics {
		return metrics.PipelineWithConfig(metrics.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Environment: cfg.Environment,
		})
	}),
)
