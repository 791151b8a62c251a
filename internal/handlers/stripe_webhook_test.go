package handlers_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/example/slotledger/internal/availability"
	"github.com/example/slotledger/internal/booking"
	"github.com/example/slotledger/internal/catalog"
	"github.com/example/slotledger/internal/clock"
	"github.com/example/slotledger/internal/handlers"
	"github.com/example/slotledger/internal/ledger"
	"github.com/example/slotledger/internal/storage/memory"
)

const testWebhookSecret = "whsec_test_secret"

func newStripeFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	clk := clock.NewFixed(time.Date(2026, 9, 7, 9, 0, 0, 0, loc))
	logger := slog.Default()
	store := memory.NewStore()
	cat := catalog.Default()

	holds := booking.NewHoldService(store, clk)
	credits := ledger.NewService(store, store, clk, logger)
	promoter := booking.NewPromoter(store, credits, store, clk, logger)
	avail := availability.NewComputer(cat, loc, store, nil, clk, availability.DefaultPolicy(), logger)

	h := handlers.New(cat, avail, holds, promoter, credits, store, clk, loc, logger,
		handlers.Config{StripeWebhookSecret: testWebhookSecret})
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{mux: mux, store: store, credits: credits, clk: clk}
}

func signedStripeRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(signed.Payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func stripeEvent(t *testing.T, eventID, eventType string, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     time.Now().Unix(),
		"type":        eventType,
		"api_version": "2024-06-20",
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func TestStripeWebhook_RejectsBadSignature(t *testing.T) {
	f := newStripeFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing signature: expected 400, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("forged signature: expected 400, got %d", rec.Code)
	}
}

func TestStripeWebhook_CheckoutCompletedPromotesHolds(t *testing.T) {
	f := newStripeFixture(t)
	ctx := context.Background()

	hold := `{"slot_start":"2026-09-09T13:00:00Z","slot_end":"2026-09-09T14:15:00Z","hold_key":"k1","external_ref":"cs_test_1"}`
	if rec := f.do(t, http.MethodPost, "/api/v1/public/holds", hold); rec.Code != http.StatusCreated {
		t.Fatalf("place: %d", rec.Code)
	}

	payload := stripeEvent(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":     "cs_test_1",
		"object": "checkout.session",
		"metadata": map[string]any{
			"service_key": "exterior",
		},
		"customer_details": map[string]any{
			"name":  "Ada",
			"email": "ada@example.com",
		},
	})

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, signedStripeRequest(t, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	exists, err := f.store.BookingExistsForRef(ctx, "cs_test_1")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatalf("expected booking promoted from the checkout session")
	}

	// Stripe redelivers; the event id dedupes it.
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, signedStripeRequest(t, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	if resp["status"] != "duplicate" {
		t.Fatalf("expected duplicate status, got %v", resp)
	}
}

func TestStripeWebhook_InvoicePaidGrantsCredits(t *testing.T) {
	f := newStripeFixture(t)
	ctx := context.Background()

	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	payload := stripeEvent(t, "evt_2", "invoice.paid", map[string]any{
		"id":           "in_test_1",
		"object":       "invoice",
		"period_start": periodStart.Unix(),
		"period_end":   periodStart.AddDate(0, 1, 0).Unix(),
		"metadata": map[string]any{
			"user_id": "u1",
			"tier":    "exterior-monthly",
		},
	})

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, signedStripeRequest(t, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	bal, err := f.credits.Balance(ctx, "u1", "exterior")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 4 {
		t.Fatalf("exterior-monthly grants 4 credits, got %d", bal)
	}

	// Stripe may redeliver the same invoice under a brand-new event id, so
	// the event dedupe does not catch it. The grant itself must absorb the
	// duplicate, commit the dedupe row, and answer 200.
	replay := stripeEvent(t, "evt_2b", "invoice.paid", map[string]any{
		"id":           "in_test_1",
		"object":       "invoice",
		"period_start": periodStart.Unix(),
		"period_end":   periodStart.AddDate(0, 1, 0).Unix(),
		"metadata": map[string]any{
			"user_id": "u1",
			"tier":    "exterior-monthly",
		},
	})
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, signedStripeRequest(t, replay))
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed invoice: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", resp)
	}
	bal, _ = f.credits.Balance(ctx, "u1", "exterior")
	if bal != 4 {
		t.Fatalf("replayed invoice must not double the grant, got %d", bal)
	}
}
