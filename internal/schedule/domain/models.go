// Package domain contains persistence models and recurrence math for
// report schedules.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
)

// ChannelKind names a delivery transport for a recipient.
type ChannelKind string

const (
	ChannelEmail   ChannelKind = "email"
	ChannelWebhook ChannelKind = "webhook"
)

// ReportSchedule is a recurring rule describing when a workspace's report
// is generated and distributed. One schedule exists per (workspace,
// period type).
type ReportSchedule struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_report_schedule_period,priority:1" json:"workspace_id"`
	PeriodType  period.Type  `gorm:"type:text;not null;uniqueIndex:ux_report_schedule_period,priority:2" json:"period_type"`

	// DayParam is a weekday (0-6, Sunday first) for weekly schedules and
	// a day of month (1-31) for monthly ones.
	DayParam int    `gorm:"not null" json:"day_param"`
	Hour     int    `gorm:"not null" json:"hour"`
	Timezone string `gorm:"type:text;not null;default:'UTC'" json:"timezone"`

	IsActive  bool       `gorm:"not null;default:true" json:"is_active"`
	LastRunAt *time.Time `gorm:"" json:"last_run_at"`
	NextRunAt time.Time  `gorm:"not null;index" json:"next_run_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (ReportSchedule) TableName() string { return "report_schedules" }

// ReportRecipient belongs to exactly one schedule.
type ReportRecipient struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ScheduleID snowflake.ID `gorm:"not null;index" json:"schedule_id"`
	Channel    ChannelKind  `gorm:"type:text;not null" json:"channel"`
	Address    string       `gorm:"type:text;not null" json:"address"`
	IsActive   bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (ReportRecipient) TableName() string { return "report_recipients" }

var (
	ErrInvalidSchedulePeriod  = errors.New("invalid_schedule_period")
	ErrInvalidDayParam        = errors.New("invalid_day_param")
	ErrInvalidHour            = errors.New("invalid_hour")
	ErrInvalidTimezone        = errors.New("invalid_timezone")
	ErrInvalidAddress         = errors.New("invalid_address")
	ErrInvalidChannel         = errors.New("invalid_channel")
	ErrScheduleNotFound       = errors.New("schedule_not_found")
	ErrScheduleExists         = errors.New("schedule_exists")
	ErrRecipientNotFound      = errors.New("recipient_not_found")
	ErrRecipientLimitExceeded = errors.New("recipient_limit_exceeded")
)
