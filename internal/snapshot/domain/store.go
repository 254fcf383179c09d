package domain

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
)

// Metrics is the typed in-memory form of a snapshot's metric mapping.
// A nil value means the source reported the metric with no value.
type Metrics map[string]*float64

// Identity addresses exactly one live snapshot. ConnectionID zero means
// the workspace-level record.
type Identity struct {
	WorkspaceID  snowflake.ID
	ConnectionID snowflake.ID
	PeriodType   period.Type
	PeriodStart  time.Time
}

// QueryRequest filters live snapshots for reporting and analytics reads.
// Limit zero returns the whole range; batch callers page with
// Limit/Offset over the store's stable ordering.
type QueryRequest struct {
	WorkspaceID   snowflake.ID
	PeriodType    period.Type
	From          time.Time // inclusive
	To            time.Time // exclusive
	ConnectionIDs []snowflake.ID
	Limit         int
	Offset        int
}

// Store owns the live snapshot records.
//
// UpsertMerge is the single write path: it normalizes the period start to
// its bucket in the workspace timezone and merges the partial mapping
// key-by-key into the existing record. The merge is per-key overwrite,
// never whole-record replacement, so re-importing the same file twice
// cannot double-count. A call either applies entirely or not at all.
type Store interface {
	UpsertMerge(ctx context.Context, identity Identity, partial map[string]any) (created bool, err error)
	Read(ctx context.Context, identity Identity) (Metrics, error)
	Query(ctx context.Context, req QueryRequest) ([]MetricSnapshot, error)
}

var (
	ErrInvalidWorkspace   = errors.New("invalid_workspace")
	ErrInvalidPeriodRange = errors.New("invalid_period_range")
	ErrInvalidMetricValue = errors.New("invalid_metric_value")
	ErrEmptyMetrics       = errors.New("empty_metrics")
	ErrSnapshotNotFound   = errors.New("snapshot_not_found")
)

// ParseMetrics validates a raw mapping at the store boundary and converts
// it to typed values. Any non-numeric, non-null value rejects the whole
// mapping.
func ParseMetrics(raw map[string]any) (Metrics, error) {
	out := make(Metrics, len(raw))
	for key, value := range raw {
		if key == "" {
			return nil, ErrInvalidMetricValue
		}
		switch v := value.(type) {
		case nil:
			out[key] = nil
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, ErrInvalidMetricValue
			}
			f := v
			out[key] = &f
		case float32:
			f := float64(v)
			out[key] = &f
		case int:
			f := float64(v)
			out[key] = &f
		case int32:
			f := float64(v)
			out[key] = &f
		case int64:
			f := float64(v)
			out[key] = &f
		case *float64:
			if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
				return nil, ErrInvalidMetricValue
			}
			out[key] = v
		default:
			return nil, ErrInvalidMetricValue
		}
	}
	return out, nil
}

// ToRaw converts typed metrics back into the JSON mapping persisted on the
// snapshot row.
func (m Metrics) ToRaw() map[string]any {
	raw := make(map[string]any, len(m))
	for key, value := range m {
		if value == nil {
			raw[key] = nil
			continue
		}
		raw[key] = *value
	}
	return raw
}

// Clone deep-copies the mapping. Used by the freezer so later live
// mutations cannot reach frozen data.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for key, value := range m {
		if value == nil {
			out[key] = nil
			continue
		}
		f := *value
		out[key] = &f
	}
	return out
}
