package freezer

import (
	"context"

	"github.com/bwmarrin/snowflake"
	workspacedomain "github.com/flowcoder2025/FlowReport-sub001/internal/workspace/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Worker runs the freeze job across every workspace. It backs the weekly
// batch tick; each workspace is an independent unit.
type Worker struct {
	db  *gorm.DB
	log *zap.Logger
	svc *Service
}

func NewWorker(db *gorm.DB, log *zap.Logger, svc *Service) *Worker {
	return &Worker{
		db:  db,
		log: log.Named("freezer.worker"),
		svc: svc,
	}
}

// RunOnce freezes all workspaces and aggregates per-workspace results.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	var workspaceIDs []int64
	if err := w.db.WithContext(ctx).
		Model(&workspacedomain.Workspace{}).
		Order("id ASC").
		Pluck("id", &workspaceIDs).Error; err != nil {
		// Batch-boundary failure: nothing was processed, retry next tick.
		return Result{}, err
	}

	total := Result{}
	for _, id := range workspaceIDs {
		result, err := w.svc.FreezeScope(ctx, Scope{WorkspaceID: snowflake.ID(id)})
		if err != nil {
			w.log.Warn("workspace freeze failed", zap.Int64("workspace_id", id), zap.Error(err))
			total.Failed++
			continue
		}
		total.Processed += result.Processed
		total.Frozen += result.Frozen
		total.Skipped += result.Skipped
		total.Failed += result.Failed
		total.Errors = append(total.Errors, result.Errors...)
	}
	return total, nil
}
