// Package domain contains the generated report audit model and dispatch
// result types.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
)

// GeneratedReport is the immutable record of one dispatched report. Rows
// are written once at dispatch time and never updated; together with
// snapshot versions they form the audit trail for "what did we send".
type GeneratedReport struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID `gorm:"not null;index" json:"workspace_id"`
	ScheduleID  snowflake.ID `gorm:"not null;index" json:"schedule_id"`
	PeriodType  period.Type  `gorm:"type:text;not null" json:"period_type"`
	PeriodStart time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time    `gorm:"not null" json:"period_end"`
	ContentType string       `gorm:"type:text;not null" json:"content_type"`
	Body        string       `gorm:"type:text;not null" json:"-"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (GeneratedReport) TableName() string { return "generated_reports" }

// Stage names the dispatch step a unit error came from.
type Stage string

const (
	StageRender   Stage = "render"
	StagePersist  Stage = "persist"
	StageDeliver  Stage = "deliver"
	StageSchedule Stage = "schedule"
)

// UnitError records one failure inside a dispatch batch. RecipientID is
// set only for deliver-stage errors, which are scoped to a single
// recipient rather than the whole schedule.
type UnitError struct {
	ScheduleID  snowflake.ID `json:"schedule_id"`
	RecipientID snowflake.ID `json:"recipient_id,omitempty"`
	Stage       Stage        `json:"stage"`
	Error       string       `json:"error"`
}

// Result summarizes a dispatch batch. A schedule counts as succeeded
// when its report was generated and the schedule advanced, even if some
// recipients failed; those failures are still accounted for in
// DeliveryFailed and Errors.
type Result struct {
	Processed      int         `json:"processed"`
	Succeeded      int         `json:"succeeded"`
	Failed         int         `json:"failed"`
	Delivered      int         `json:"delivered"`
	DeliveryFailed int         `json:"delivery_failed"`
	Errors         []UnitError `json:"errors,omitempty"`
}

var (
	ErrRenderFailed         = errors.New("render_failed")
	ErrDeliveryFailed       = errors.New("delivery_failed")
	ErrScheduleUpdateFailed = errors.New("schedule_update_failed")
	ErrReportNotFound       = errors.New("report_not_found")
)
