package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGatewayWebhook(t *testing.T) {
	var inserted []GatewayConfirmationArgs
	h := NewHandler(func(_ context.Context, args GatewayConfirmationArgs) error {
		inserted = append(inserted, args)
		return nil
	}, "sekret", nil)

	jobID := uuid.New()
	customerID := uuid.New()
	body := `{"job_id":"` + jobID.String() + `","customer_id":"` + customerID.String() + `","reference":"ch_123","status":"succeeded"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("X-Webhook-Token", "sekret")
	rec := httptest.NewRecorder()
	h.GatewayWebhook(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", rec.Code)
	}
	if len(inserted) != 1 || inserted[0].JobID != jobID || inserted[0].GatewayRef != "ch_123" {
		t.Fatalf("inserted args: %+v", inserted)
	}
}

func TestGatewayWebhookBadToken(t *testing.T) {
	h := NewHandler(func(_ context.Context, _ GatewayConfirmationArgs) error {
		t.Fatal("insert should not run")
		return nil
	}, "sekret", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(`{}`))
	req.Header.Set("X-Webhook-Token", "wrong")
	rec := httptest.NewRecorder()
	h.GatewayWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
}

func TestGatewayWebhookIgnoresFailedCharge(t *testing.T) {
	h := NewHandler(func(_ context.Context, _ GatewayConfirmationArgs) error {
		t.Fatal("failed charges must not be enqueued")
		return nil
	}, "sekret", nil)

	body := `{"job_id":"` + uuid.NewString() + `","customer_id":"` + uuid.NewString() + `","reference":"ch_9","status":"failed"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("X-Webhook-Token", "sekret")
	rec := httptest.NewRecorder()
	h.GatewayWebhook(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", rec.Code)
	}
}

func TestGatewayWebhookBadIDs(t *testing.T) {
	h := NewHandler(func(_ context.Context, _ GatewayConfirmationArgs) error { return nil }, "sekret", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(`{"job_id":"nope","customer_id":"nope","status":"succeeded"}`))
	req.Header.Set("X-Webhook-Token", "sekret")
	rec := httptest.NewRecorder()
	h.GatewayWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}
