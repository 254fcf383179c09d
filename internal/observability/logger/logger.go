// Package logger provides the shared zap logger and context helpers.
package logger

import (
	"context"
	"strings"

	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the process logger into the fx graph and replaces the
// zap globals so FromContext works everywhere.
var Module = fx.Module("logger",
	fx.Provide(New),
	fx.Invoke(func(log *zap.Logger) {
		zap.ReplaceGlobals(log)
	}),
)

// New builds the process logger for the configured environment.
func New(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	dev := zap.NewDevelopmentConfig()
	dev.DisableStacktrace = true
	return dev.Build()
}

// FromContext returns the global logger enriched with trace and span ids
// when the context carries a recording span.
func FromContext(ctx context.Context) *zap.Logger {
	log := zap.L()
	if ctx == nil {
		return log
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return log
	}
	return log.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// Named returns a child of the global logger. Convenience for call sites
// without an injected logger.
func Named(name string) *zap.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return zap.L()
	}
	return zap.L().Named(name)
}
