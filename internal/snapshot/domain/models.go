// Package domain contains persistence models and contracts for live
// metric snapshots and their frozen versions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	"gorm.io/datatypes"
)

// VersionStatus marks the role of a snapshot version row.
type VersionStatus string

const (
	// VersionStatusLive is reserved for bootstrap rows written when a
	// snapshot history is seeded; the freezer never produces it.
	VersionStatusLive VersionStatus = "LIVE"
	// VersionStatusSnapshot marks an immutable frozen copy.
	VersionStatusSnapshot VersionStatus = "SNAPSHOT"
)

// SystemAuthor is the author marker stamped on versions created by the
// freeze job.
const SystemAuthor = "system"

// MetricSnapshot is the live, mutable aggregate for one identity tuple.
// Exactly one row exists per (workspace, connection, period type, period
// start); the unique index enforces it.
type MetricSnapshot struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	WorkspaceID  snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_metric_snapshot_identity,priority:1" json:"workspace_id"`
	ConnectionID snowflake.ID      `gorm:"not null;default:0;uniqueIndex:ux_metric_snapshot_identity,priority:2" json:"connection_id"`
	PeriodType   period.Type       `gorm:"type:text;not null;uniqueIndex:ux_metric_snapshot_identity,priority:3" json:"period_type"`
	PeriodStart  time.Time         `gorm:"not null;uniqueIndex:ux_metric_snapshot_identity,priority:4" json:"period_start"`
	Metrics      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metrics"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (MetricSnapshot) TableName() string { return "metric_snapshots" }

// PeriodEnd derives the exclusive end of the snapshot's bucket.
func (s MetricSnapshot) PeriodEnd() time.Time {
	return s.PeriodType.End(s.PeriodStart)
}

// MetricValues decodes the stored mapping into typed nullable floats.
func (s MetricSnapshot) MetricValues() Metrics {
	values, _ := ParseMetrics(map[string]any(s.Metrics))
	return values
}

// SnapshotVersion is an immutable, numbered point-in-time copy of a live
// snapshot's data. Version numbers per snapshot are strictly increasing
// with no gaps; Data is write-once.
type SnapshotVersion struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	SnapshotID snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_snapshot_version_no,priority:1" json:"snapshot_id"`
	VersionNo  int               `gorm:"not null;uniqueIndex:ux_snapshot_version_no,priority:2" json:"version_no"`
	Status     VersionStatus     `gorm:"type:text;not null" json:"status"`
	Data       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"data"`
	CreatedBy  string            `gorm:"type:text;not null" json:"created_by"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (SnapshotVersion) TableName() string { return "snapshot_versions" }
