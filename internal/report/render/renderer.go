// Package render turns aggregated metrics into the report artifact that
// gets delivered to recipients.
package render

import (
	"context"
	"time"
)

// RenderInput is the deterministic input for one report.
type RenderInput struct {
	Workspace   WorkspaceView
	Period      PeriodView
	Totals      []MetricRowView
	Connections []ConnectionSectionView
}

type WorkspaceView struct {
	Name     string
	Timezone string
}

type PeriodView struct {
	Label string
	Start time.Time
	End   time.Time
}

// MetricRowView is one metric line. Value is pre-formatted so the
// template stays free of aggregation knowledge.
type MetricRowView struct {
	Name        string
	Value       string
	Aggregation string
}

// ConnectionSectionView is the per-source breakdown under the totals.
type ConnectionSectionView struct {
	Name string
	Rows []MetricRowView
}

// Artifact is the rendered output handed to delivery channels.
type Artifact struct {
	ContentType string
	Subject     string
	Body        string
}

type Renderer interface {
	Render(ctx context.Context, input RenderInput) (Artifact, error)
}
