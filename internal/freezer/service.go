// Package freezer takes immutable, numbered copies of live snapshots.
package freezer

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	"github.com/flowcoder2025/FlowReport-sub001/internal/events"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/metrics"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Outbox  *events.Outbox
	Metrics *metrics.PipelineMetrics `optional:"true"`
	Config  Config                   `optional:"true"`
}

// Service freezes live snapshots into write-once versions. At most one
// SNAPSHOT version is created per live snapshot per freeze window, so the
// weekly job is safe to trigger more than once.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	outbox  *events.Outbox
	metrics *metrics.PipelineMetrics
	cfg     Config
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("freezer"),
		genID:   p.GenID,
		clock:   p.Clock,
		outbox:  p.Outbox,
		metrics: p.Metrics,
		cfg:     p.Config.withDefaults(),
	}
}

// Scope selects the live snapshots one freeze invocation covers.
type Scope struct {
	WorkspaceID snowflake.ID
	PeriodType  period.Type   // empty selects all period types
	Window      time.Duration // zero uses the configured freeze window
}

// UnitError describes one failed freeze unit inside a batch.
type UnitError struct {
	SnapshotID snowflake.ID `json:"snapshot_id"`
	Error      string       `json:"error"`
}

// Result summarizes one freeze batch invocation.
type Result struct {
	Processed int         `json:"processed"`
	Frozen    int         `json:"frozen"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Errors    []UnitError `json:"errors,omitempty"`
}

// FreezeScope freezes every live snapshot matching the scope. Unit
// failures never abort sibling snapshots.
func (s *Service) FreezeScope(ctx context.Context, scope Scope) (Result, error) {
	if scope.WorkspaceID == 0 {
		return Result{}, snapshotdomain.ErrInvalidWorkspace
	}
	if scope.PeriodType != "" && !scope.PeriodType.Valid() {
		return Result{}, period.ErrInvalidType
	}
	window := scope.Window
	if window <= 0 {
		window = s.cfg.Window
	}

	query := s.db.WithContext(ctx).
		Where("workspace_id = ?", scope.WorkspaceID).
		Order("id ASC").
		Limit(s.cfg.BatchSize)
	if scope.PeriodType != "" {
		query = query.Where("period_type = ?", scope.PeriodType)
	}

	var snapshots []snapshotdomain.MetricSnapshot
	if err := query.Find(&snapshots).Error; err != nil {
		return Result{}, err
	}

	now := s.clock.Now()
	result := Result{}
	for _, snap := range snapshots {
		result.Processed++
		frozen, err := s.freezeOne(ctx, snap, now, window)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, UnitError{SnapshotID: snap.ID, Error: err.Error()})
			s.log.Warn("freeze unit failed",
				zap.String("snapshot_id", snap.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if frozen {
			result.Frozen++
			s.metrics.IncFreezeCreated()
		} else {
			result.Skipped++
			s.metrics.IncFreezeSkipped()
		}
	}
	return result, nil
}

// freezeOne creates the next version for one live snapshot unless a
// frozen version already exists inside the window. The copied data is
// detached from the live row, so later merges never reach it.
func (s *Service) freezeOne(ctx context.Context, snap snapshotdomain.MetricSnapshot, now time.Time, window time.Duration) (bool, error) {
	frozen := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recent int64
		if err := tx.Model(&snapshotdomain.SnapshotVersion{}).
			Where("snapshot_id = ?", snap.ID).
			Where("status = ?", snapshotdomain.VersionStatusSnapshot).
			Where("created_at > ?", now.Add(-window)).
			Count(&recent).Error; err != nil {
			return err
		}
		if recent > 0 {
			return nil
		}

		var highWater int
		if err := tx.Raw(
			`SELECT COALESCE(MAX(version_no), 0) FROM snapshot_versions WHERE snapshot_id = ?`,
			snap.ID,
		).Scan(&highWater).Error; err != nil {
			return err
		}

		copied := snap.MetricValues().Clone().ToRaw()
		version := snapshotdomain.SnapshotVersion{
			ID:         s.genID.Generate(),
			SnapshotID: snap.ID,
			VersionNo:  highWater + 1,
			Status:     snapshotdomain.VersionStatusSnapshot,
			Data:       datatypes.JSONMap(copied),
			CreatedBy:  snapshotdomain.SystemAuthor,
			CreatedAt:  now,
		}
		if err := tx.Create(&version).Error; err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			WorkspaceID: snap.WorkspaceID,
			Type:        events.EventSnapshotFrozen,
			Payload: events.SnapshotFrozenPayload{
				SnapshotID: snap.ID.String(),
				VersionNo:  version.VersionNo,
			}.ToMap(),
			DedupeKey: "freeze:" + snap.ID.String() + ":" + now.Format("2006-01-02"),
		}); err != nil {
			return err
		}

		frozen = true
		return nil
	})
	return frozen, err
}
