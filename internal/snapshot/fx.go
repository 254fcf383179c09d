package snapshot

import (
	"github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/service"
	"go.uber.org/fx"
)

var Module = fx.Module("snapshot.store",
	fx.Provide(service.NewService),
)
