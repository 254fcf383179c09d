package report

import (
	"net/http"

	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report/deliver"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report/render"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("report.dispatch",
	fx.Provide(func(jobs config.JobsConfig) service.Config {
		return service.Config{
			Workers:             jobs.DispatchWorkers,
			RenderTimeout:       jobs.RenderTimeout.Duration,
			DeliveryTimeout:     jobs.DeliveryTimeout.Duration,
			DeliveryMaxAttempts: jobs.DeliveryMaxAttempts,
			DeliveryBackoff:     jobs.DeliveryBackoff.Duration,
		}
	}),
	fx.Provide(render.NewHTMLRenderer),
	fx.Provide(func(log *zap.Logger, jobs config.JobsConfig) deliver.Registry {
		client := &http.Client{Timeout: jobs.DeliveryTimeout.Duration}
		return deliver.NewRegistry(
			deliver.NewWebhookChannel(client, log),
			deliver.NewEmailChannel(nil, log),
		)
	}),
	fx.Provide(service.NewService),
)
