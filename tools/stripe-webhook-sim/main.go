// Command stripe-webhook-sim posts signed fake Stripe events at a running
// engine, for local testing without the Stripe CLI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL    = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "engine base url")
		evtType    = flag.String("type", getenv("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		sessionID  = flag.String("session-id", getenv("SESSION_ID", ""), "checkout session id (defaults to a fresh cs_test id)")
		serviceKey = flag.String("service", getenv("SERVICE_KEY", "exterior"), "service_key metadata")
		addons     = flag.String("addons", getenv("ADDONS", ""), "comma separated addon keys")
		userID     = flag.String("user-id", getenv("USER_ID", ""), "user_id metadata (invoice events)")
		tier       = flag.String("tier", getenv("TIER", "exterior-monthly"), "tier metadata (invoice events)")
		invoiceID  = flag.String("invoice-id", getenv("INVOICE_ID", ""), "invoice id (defaults to a fresh in_test id)")
		secret     = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}

	now := time.Now().UTC()
	eventID := fmt.Sprintf("evt_test_%d", now.UnixNano())
	if *sessionID == "" {
		*sessionID = fmt.Sprintf("cs_test_%d", now.UnixNano())
	}
	if *invoiceID == "" {
		*invoiceID = fmt.Sprintf("in_test_%d", now.UnixNano())
	}

	payload, err := buildEventJSON(eventID, *evtType, now, *sessionID, *serviceKey, *addons, *userID, *tier, *invoiceID)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, sessionID, serviceKey, addons, userID, tier, invoiceID string) ([]byte, error) {
	created := t.Unix()
	envelope := func(object map[string]any) ([]byte, error) {
		return json.Marshal(map[string]any{
			"id":          eventID,
			"object":      "event",
			"created":     created,
			"type":        eventType,
			"api_version": "2024-06-20",
			"data":        map[string]any{"object": object},
		})
	}

	switch eventType {
	case "checkout.session.completed":
		// The session id is the external ref a hold must already carry
		// (attach it first via /api/v1/public/holds/attach).
		return envelope(map[string]any{
			"id":     sessionID,
			"object": "checkout.session",
			"metadata": map[string]any{
				"service_key": serviceKey,
				"addons":      addons,
			},
			"customer_details": map[string]any{
				"name":  "Sim Customer",
				"email": "sim@example.com",
			},
		})
	case "invoice.paid":
		if userID == "" {
			return nil, fmt.Errorf("invoice.paid requires -user-id")
		}
		return envelope(map[string]any{
			"id":           invoiceID,
			"object":       "invoice",
			"period_start": created,
			"period_end":   t.AddDate(0, 1, 0).Unix(),
			"metadata": map[string]any{
				"user_id": userID,
				"tier":    tier,
			},
		})
	case "credit_note.created":
		if userID == "" {
			return nil, fmt.Errorf("credit_note.created requires -user-id")
		}
		return envelope(map[string]any{
			"id":      fmt.Sprintf("cn_test_%d", t.UnixNano()),
			"object":  "credit_note",
			"invoice": map[string]any{"id": invoiceID},
			"metadata": map[string]any{
				"user_id":      userID,
				"tier":         tier,
				"period_start": t.AddDate(0, -1, 0).Format(time.RFC3339),
				"period_end":   t.Format(time.RFC3339),
			},
		})
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
