package freezer

import (
	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("freezer",
	fx.Provide(func(jobs config.JobsConfig) Config {
		return Config{
			BatchSize: jobs.FreezeBatchSize,
			Window:    jobs.FreezeWindow.Duration,
		}
	}),
	fx.Provide(NewService),
	fx.Provide(NewWorker),
)
