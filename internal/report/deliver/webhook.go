package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/logger"
	scheduledomain "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/domain"
	"go.uber.org/zap"
)

const webhookUserAgent = "flowreport/1.0"

// webhookPayload is the JSON body posted to recipient endpoints.
type webhookPayload struct {
	Event       string    `json:"event"`
	ReportID    string    `json:"report_id"`
	WorkspaceID string    `json:"workspace_id"`
	Subject     string    `json:"subject"`
	ContentType string    `json:"content_type"`
	Body        string    `json:"body"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// WebhookChannel POSTs reports as JSON to recipient URLs. Any 2xx
// response counts as delivered; everything else is retryable by the
// caller.
type WebhookChannel struct {
	client *http.Client
	log    *zap.Logger
}

func NewWebhookChannel(client *http.Client, log *zap.Logger) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &WebhookChannel{
		client: client,
		log:    log.Named("deliver.webhook"),
	}
}

func (c *WebhookChannel) Kind() scheduledomain.ChannelKind {
	return scheduledomain.ChannelWebhook
}

func (c *WebhookChannel) Deliver(ctx context.Context, address string, msg Message) (string, error) {
	payload, err := json.Marshal(webhookPayload{
		Event:       "report.generated",
		ReportID:    msg.ReportID.String(),
		WorkspaceID: msg.WorkspaceID.String(),
		Subject:     msg.Subject,
		ContentType: msg.ContentType,
		Body:        msg.Body,
		PeriodStart: msg.PeriodStart,
		PeriodEnd:   msg.PeriodEnd,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("webhook rejected",
			zap.String("url", logger.MaskWebhookURL(address)),
			zap.Int("status", resp.StatusCode),
		)
		return "", fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	id := resp.Header.Get("X-Message-Id")
	if id == "" {
		id = fmt.Sprintf("webhook-%s", msg.ReportID)
	}
	return id, nil
}
