// Package rollup promotes fine-grained live snapshots into coarser
// period buckets.
package rollup

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/events"
	"github.com/flowcoder2025/FlowReport-sub001/internal/metric"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/metrics"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	"github.com/flowcoder2025/FlowReport-sub001/internal/workspace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config controls the rollup job.
type Config struct {
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Store      snapshotdomain.Store
	Workspaces *workspace.Resolver
	Outbox     *events.Outbox           `optional:"true"`
	Metrics    *metrics.PipelineMetrics `optional:"true"`
	Config     Config                   `optional:"true"`
}

// Service computes rollups through the snapshot store's upsert path, so a
// re-run over unchanged fine data overwrites the coarse record with an
// identical result.
type Service struct {
	log        *zap.Logger
	store      snapshotdomain.Store
	workspaces *workspace.Resolver
	outbox     *events.Outbox
	metrics    *metrics.PipelineMetrics
	cfg        Config
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("rollup"),
		store:      p.Store,
		workspaces: p.Workspaces,
		outbox:     p.Outbox,
		metrics:    p.Metrics,
		cfg:        p.Config.withDefaults(),
	}
}

// UnitError describes one failed rollup unit inside a batch.
type UnitError struct {
	ConnectionID snowflake.ID `json:"connection_id"`
	Error        string       `json:"error"`
}

// Result summarizes one rollup batch invocation.
type Result struct {
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Errors    []UnitError `json:"errors,omitempty"`
}

// Run rolls up every connection that has fine-grained data inside the
// target window. A failed connection never aborts its siblings.
func (s *Service) Run(ctx context.Context, workspaceID snowflake.ID, target period.Type, targetStart time.Time) (Result, error) {
	windowStart, windowEnd, fine, err := s.resolveWindow(ctx, workspaceID, target, targetStart)
	if err != nil {
		return Result{}, err
	}

	records, err := s.queryWindow(ctx, snapshotdomain.QueryRequest{
		WorkspaceID: workspaceID,
		PeriodType:  fine,
		From:        windowStart,
		To:          windowEnd,
	})
	if err != nil {
		return Result{}, err
	}

	byConnection := make(map[snowflake.ID][]snapshotdomain.MetricSnapshot)
	for _, record := range records {
		byConnection[record.ConnectionID] = append(byConnection[record.ConnectionID], record)
	}

	connections := make([]snowflake.ID, 0, len(byConnection))
	for conn := range byConnection {
		connections = append(connections, conn)
	}
	sort.Slice(connections, func(i, j int) bool { return connections[i] < connections[j] })

	result := Result{}
	for _, conn := range connections {
		result.Processed++
		if err := s.rollupRecords(ctx, workspaceID, conn, target, windowStart, windowEnd, fine, byConnection[conn]); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, UnitError{ConnectionID: conn, Error: err.Error()})
			s.metrics.IncRollupUnit("failed")
			s.log.Warn("rollup unit failed",
				zap.String("workspace_id", workspaceID.String()),
				zap.String("connection_id", conn.String()),
				zap.Error(err),
			)
			continue
		}
		result.Succeeded++
		s.metrics.IncRollupUnit("success")
	}

	if s.outbox != nil && result.Succeeded > 0 {
		if err := s.outbox.Publish(ctx, events.Event{
			WorkspaceID: workspaceID,
			Type:        events.EventRollupCompleted,
			Payload: map[string]any{
				"period_type":  string(target),
				"period_start": windowStart.Format(time.RFC3339),
				"processed":    result.Processed,
				"succeeded":    result.Succeeded,
				"failed":       result.Failed,
			},
		}); err != nil {
			s.log.Warn("rollup event not recorded", zap.Error(err))
		}
	}
	return result, nil
}

// RollupWindow rolls up one (workspace, connection) unit into the target
// bucket containing targetStart.
func (s *Service) RollupWindow(ctx context.Context, workspaceID, connectionID snowflake.ID, target period.Type, targetStart time.Time) error {
	windowStart, windowEnd, fine, err := s.resolveWindow(ctx, workspaceID, target, targetStart)
	if err != nil {
		return err
	}

	records, err := s.queryWindow(ctx, snapshotdomain.QueryRequest{
		WorkspaceID:   workspaceID,
		PeriodType:    fine,
		From:          windowStart,
		To:            windowEnd,
		ConnectionIDs: []snowflake.ID{connectionID},
	})
	if err != nil {
		return err
	}
	return s.rollupRecords(ctx, workspaceID, connectionID, target, windowStart, windowEnd, fine, records)
}

// queryWindow pages through the fine-grained records so one batch read
// never loads an unbounded window in a single query. The store's stable
// (period_start, connection_id) ordering keeps pages disjoint.
func (s *Service) queryWindow(ctx context.Context, req snapshotdomain.QueryRequest) ([]snapshotdomain.MetricSnapshot, error) {
	req.Limit = s.cfg.BatchSize
	req.Offset = 0

	var all []snapshotdomain.MetricSnapshot
	for {
		page, err := s.store.Query(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < req.Limit {
			return all, nil
		}
		req.Offset += req.Limit
	}
}

func (s *Service) resolveWindow(ctx context.Context, workspaceID snowflake.ID, target period.Type, targetStart time.Time) (time.Time, time.Time, period.Type, error) {
	fine, err := target.Finer()
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	loc, err := s.workspaces.Location(ctx, workspaceID)
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	start, err := target.NormalizeStart(targetStart, loc)
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	return start.UTC(), target.End(start).UTC(), fine, nil
}

func (s *Service) rollupRecords(
	ctx context.Context,
	workspaceID, connectionID snowflake.ID,
	target period.Type,
	windowStart, windowEnd time.Time,
	fine period.Type,
	records []snapshotdomain.MetricSnapshot,
) error {
	if len(records) == 0 {
		s.metrics.IncRollupUnit("empty")
		return nil
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	seen := make(map[string]metric.Aggregation)

	for _, record := range records {
		// The query range already bounds period starts; this guards
		// against fine buckets straddling the window end.
		if !target.Contains(windowStart, fine, record.PeriodStart) {
			continue
		}
		for key, value := range record.MetricValues() {
			agg := metric.Classify(key)
			if agg == metric.AggregationUnknown {
				continue
			}
			seen[key] = agg
			if value == nil {
				continue
			}
			sums[key] += *value
			counts[key]++
		}
	}

	out := make(map[string]any, len(seen))
	for key, agg := range seen {
		switch agg {
		case metric.AggregationSum:
			// Null contributions count as zero.
			out[key] = sums[key]
		case metric.AggregationAverage:
			if counts[key] == 0 {
				// Present but never numeric in the window.
				out[key] = nil
				continue
			}
			out[key] = sums[key] / float64(counts[key])
		}
	}
	if len(out) == 0 {
		s.metrics.IncRollupUnit("empty")
		return nil
	}

	_, err := s.store.UpsertMerge(ctx, snapshotdomain.Identity{
		WorkspaceID:  workspaceID,
		ConnectionID: connectionID,
		PeriodType:   target,
		PeriodStart:  windowStart,
	}, out)
	return err
}
