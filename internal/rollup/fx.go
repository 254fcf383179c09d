package rollup

import (
	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rollup",
	fx.Provide(func(jobs config.JobsConfig) Config {
		return Config{BatchSize: jobs.RollupBatchSize}
	}),
	fx.Provide(NewService),
)
