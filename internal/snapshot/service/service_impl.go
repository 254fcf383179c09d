package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/metrics"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	"github.com/flowcoder2025/FlowReport-sub001/internal/workspace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Workspaces *workspace.Resolver
	Metrics    *metrics.PipelineMetrics `optional:"true"`
}

// Service is the gorm-backed snapshot store. Concurrent upserts against
// the same identity are serialized through a per-identity mutex so
// connector sync and CSV import racing on one bucket merge instead of
// clobbering each other.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	workspaces *workspace.Resolver
	metrics    *metrics.PipelineMetrics

	locks sync.Map // identity key -> *sync.Mutex
}

func NewService(p ServiceParam) snapshotdomain.Store {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("snapshot.store"),
		genID:      p.GenID,
		clock:      p.Clock,
		workspaces: p.Workspaces,
		metrics:    p.Metrics,
	}
}

func (s *Service) UpsertMerge(ctx context.Context, identity snapshotdomain.Identity, partial map[string]any) (bool, error) {
	if len(partial) == 0 {
		return false, snapshotdomain.ErrEmptyMetrics
	}
	values, err := snapshotdomain.ParseMetrics(partial)
	if err != nil {
		s.metrics.IncSnapshotUpsert("rejected")
		return false, err
	}

	norm, err := s.normalize(ctx, identity)
	if err != nil {
		s.metrics.IncSnapshotUpsert("rejected")
		return false, err
	}

	mu := s.lockFor(norm)
	mu.Lock()
	defer mu.Unlock()

	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findByIdentity(ctx, tx, norm)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		if existing == nil {
			record := &snapshotdomain.MetricSnapshot{
				ID:           s.genID.Generate(),
				WorkspaceID:  norm.WorkspaceID,
				ConnectionID: norm.ConnectionID,
				PeriodType:   norm.PeriodType,
				PeriodStart:  norm.PeriodStart,
				Metrics:      datatypes.JSONMap(values.ToRaw()),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Create(record).Error; err != nil {
				return err
			}
			created = true
			return nil
		}

		merged := make(map[string]any, len(existing.Metrics)+len(values))
		for key, value := range existing.Metrics {
			merged[key] = value
		}
		for key, value := range values.ToRaw() {
			merged[key] = value
		}
		return tx.Model(&snapshotdomain.MetricSnapshot{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{
				"metrics":    datatypes.JSONMap(merged),
				"updated_at": now,
			}).Error
	})
	if err != nil {
		s.metrics.IncSnapshotUpsert("rejected")
		return false, err
	}

	if created {
		s.metrics.IncSnapshotUpsert("created")
	} else {
		s.metrics.IncSnapshotUpsert("merged")
	}
	return created, nil
}

func (s *Service) Read(ctx context.Context, identity snapshotdomain.Identity) (snapshotdomain.Metrics, error) {
	norm, err := s.normalize(ctx, identity)
	if err != nil {
		return nil, err
	}
	record, err := s.findByIdentity(ctx, s.db, norm)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, snapshotdomain.ErrSnapshotNotFound
	}
	return record.MetricValues(), nil
}

func (s *Service) Query(ctx context.Context, req snapshotdomain.QueryRequest) ([]snapshotdomain.MetricSnapshot, error) {
	if req.WorkspaceID == 0 {
		return nil, snapshotdomain.ErrInvalidWorkspace
	}
	if !req.PeriodType.Valid() {
		return nil, period.ErrInvalidType
	}
	if req.From.IsZero() || req.To.IsZero() || !req.From.Before(req.To) {
		return nil, snapshotdomain.ErrInvalidPeriodRange
	}

	query := s.db.WithContext(ctx).
		Where("workspace_id = ?", req.WorkspaceID).
		Where("period_type = ?", req.PeriodType).
		Where("period_start >= ? AND period_start < ?", req.From.UTC(), req.To.UTC())
	if len(req.ConnectionIDs) > 0 {
		query = query.Where("connection_id IN ?", req.ConnectionIDs)
	}
	if req.Limit > 0 {
		query = query.Limit(req.Limit).Offset(req.Offset)
	}

	var records []snapshotdomain.MetricSnapshot
	if err := query.Order("period_start ASC, connection_id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// normalize validates the identity and floors the period start to its
// bucket in the workspace timezone. The stored instant is UTC so lookups
// are byte-stable across callers.
func (s *Service) normalize(ctx context.Context, identity snapshotdomain.Identity) (snapshotdomain.Identity, error) {
	if identity.WorkspaceID == 0 {
		return snapshotdomain.Identity{}, snapshotdomain.ErrInvalidWorkspace
	}
	if !identity.PeriodType.Valid() {
		return snapshotdomain.Identity{}, period.ErrInvalidType
	}
	if identity.PeriodStart.IsZero() {
		return snapshotdomain.Identity{}, snapshotdomain.ErrInvalidPeriodRange
	}

	loc, err := s.workspaces.Location(ctx, identity.WorkspaceID)
	if err != nil {
		return snapshotdomain.Identity{}, err
	}

	start, err := identity.PeriodType.NormalizeStart(identity.PeriodStart, loc)
	if err != nil {
		return snapshotdomain.Identity{}, err
	}
	identity.PeriodStart = start.UTC()
	return identity, nil
}

func (s *Service) findByIdentity(ctx context.Context, tx *gorm.DB, identity snapshotdomain.Identity) (*snapshotdomain.MetricSnapshot, error) {
	var record snapshotdomain.MetricSnapshot
	err := tx.WithContext(ctx).
		Where("workspace_id = ?", identity.WorkspaceID).
		Where("connection_id = ?", identity.ConnectionID).
		Where("period_type = ?", identity.PeriodType).
		Where("period_start = ?", identity.PeriodStart).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) lockFor(identity snapshotdomain.Identity) *sync.Mutex {
	key := fmt.Sprintf("%d:%d:%s:%d",
		identity.WorkspaceID,
		identity.ConnectionID,
		identity.PeriodType,
		identity.PeriodStart.Unix(),
	)
	actual, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
