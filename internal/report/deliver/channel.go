// Package deliver fans rendered reports out to recipient channels.
package deliver

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	scheduledomain "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/domain"
)

// Message is one rendered report addressed to a single recipient.
type Message struct {
	WorkspaceID snowflake.ID
	ReportID    snowflake.ID
	Subject     string
	ContentType string
	Body        string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Channel delivers messages over one transport. Implementations must
// not hold locks across the blocking call and should respect ctx
// deadlines.
type Channel interface {
	Kind() scheduledomain.ChannelKind
	Deliver(ctx context.Context, address string, msg Message) (providerMessageID string, err error)
}

// Registry maps channel kinds to their implementation.
type Registry map[scheduledomain.ChannelKind]Channel

// NewRegistry indexes channels by kind. Later registrations win.
func NewRegistry(channels ...Channel) Registry {
	registry := make(Registry, len(channels))
	for _, channel := range channels {
		registry[channel.Kind()] = channel
	}
	return registry
}
