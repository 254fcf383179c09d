package deliver

import (
	"context"
	"fmt"

	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/logger"
	scheduledomain "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/domain"
	"go.uber.org/zap"
)

// EmailSender is the provider seam. Implementations hand the rendered
// report to an email vendor and return the provider message id.
type EmailSender interface {
	Send(ctx context.Context, to, subject, contentType, body string) (string, error)
}

// EmailChannel adapts an EmailSender to the Channel interface.
type EmailChannel struct {
	sender EmailSender
	log    *zap.Logger
}

func NewEmailChannel(sender EmailSender, log *zap.Logger) *EmailChannel {
	l := log.Named("deliver.email")
	if sender == nil {
		sender = logSender{log: l}
	}
	return &EmailChannel{sender: sender, log: l}
}

func (c *EmailChannel) Kind() scheduledomain.ChannelKind {
	return scheduledomain.ChannelEmail
}

func (c *EmailChannel) Deliver(ctx context.Context, address string, msg Message) (string, error) {
	return c.sender.Send(ctx, address, msg.Subject, msg.ContentType, msg.Body)
}

// logSender is the default sender until a vendor is configured. It
// records the send and succeeds, so development and test environments
// exercise the full dispatch path without external traffic.
type logSender struct {
	log *zap.Logger
}

func (s logSender) Send(ctx context.Context, to, subject, contentType, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.log.Info("email send (log sink)",
		zap.String("to", logger.MaskAddress(to)),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return fmt.Sprintf("log-%s", logger.MaskAddress(to)), nil
}
