package schedule

import (
	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"github.com/flowcoder2025/FlowReport-sub001/internal/schedule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("schedule.admin",
	fx.Provide(func(jobs config.JobsConfig) service.Config {
		return service.Config{RecipientLimit: jobs.RecipientLimit}
	}),
	fx.Provide(service.NewService),
)
