package deliver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testMessage() Message {
	return Message{
		WorkspaceID: 1001,
		ReportID:    7001,
		Subject:     "Acme Weekly report, 2025-03-10",
		ContentType: "text/html; charset=utf-8",
		Body:        "<html>report</html>",
		PeriodStart: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC),
	}
}

func TestWebhookDeliverPostsJSON(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("X-Message-Id", "msg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	channel := NewWebhookChannel(server.Client(), zap.NewNop())
	id, err := channel.Deliver(context.Background(), server.URL, testMessage())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if id != "msg-123" {
		t.Fatalf("provider id = %q", id)
	}
	if got.Event != "report.generated" || got.Subject == "" || got.Body == "" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhookDeliverRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel := NewWebhookChannel(server.Client(), zap.NewNop())
	if _, err := channel.Deliver(context.Background(), server.URL, testMessage()); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestWebhookDeliverSynthesizesMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewWebhookChannel(server.Client(), zap.NewNop())
	id, err := channel.Deliver(context.Background(), server.URL, testMessage())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if id == "" {
		t.Fatal("expected synthesized message id")
	}
}

func TestRegistrySelectsByKind(t *testing.T) {
	webhook := NewWebhookChannel(nil, zap.NewNop())
	email := NewEmailChannel(nil, zap.NewNop())
	registry := NewRegistry(webhook, email)

	if registry[webhook.Kind()] != Channel(webhook) {
		t.Fatal("webhook channel not registered")
	}
	if registry[email.Kind()] != Channel(email) {
		t.Fatal("email channel not registered")
	}
}
