package domain

import (
	"context"
	"net/mail"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
)

// CreateScheduleRequest describes a new recurring report rule.
type CreateScheduleRequest struct {
	WorkspaceID snowflake.ID
	PeriodType  period.Type
	DayParam    int
	Hour        int
	Timezone    string
}

// UpdateScheduleRequest patches an existing schedule. Nil fields are
// left untouched.
type UpdateScheduleRequest struct {
	ScheduleID snowflake.ID
	DayParam   *int
	Hour       *int
	Timezone   *string
	IsActive   *bool
}

// AddRecipientRequest attaches a delivery target to a schedule.
type AddRecipientRequest struct {
	ScheduleID snowflake.ID
	Channel    ChannelKind
	Address    string
}

// Admin manages schedules and their recipients.
type Admin interface {
	CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*ReportSchedule, error)
	UpdateSchedule(ctx context.Context, req UpdateScheduleRequest) (*ReportSchedule, error)
	ListSchedules(ctx context.Context, workspaceID snowflake.ID) ([]ReportSchedule, error)
	AddRecipient(ctx context.Context, req AddRecipientRequest) (*ReportRecipient, error)
	RemoveRecipient(ctx context.Context, recipientID snowflake.ID) error
	ListRecipients(ctx context.Context, scheduleID snowflake.ID) ([]ReportRecipient, error)
}

// ValidateAddress checks that an address is plausible for its channel.
// Email addresses must parse per RFC 5322; webhook addresses must be
// absolute http(s) URLs.
func ValidateAddress(channel ChannelKind, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrInvalidAddress
	}
	switch channel {
	case ChannelEmail:
		if _, err := mail.ParseAddress(address); err != nil {
			return ErrInvalidAddress
		}
	case ChannelWebhook:
		u, err := url.Parse(address)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidAddress
		}
	default:
		return ErrInvalidChannel
	}
	return nil
}
