// Package handlers is the HTTP surface: public availability and hold
// endpoints, the credit balance endpoint, and the billing webhooks that
// drive promotion and the ledger.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/slotledger/internal/availability"
	"github.com/example/slotledger/internal/booking"
	"github.com/example/slotledger/internal/catalog"
	"github.com/example/slotledger/internal/clock"
	"github.com/example/slotledger/internal/ledger"
)

// EventStore is the store slice the webhooks need: provider-event dedupe
// executed in the same transaction as the event's effect.
type EventStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	RecordProviderEvent(ctx context.Context, provider, providerEventID, eventType string, payload []byte) (bool, error)
}

type Handler struct {
	catalog                *catalog.Catalog
	availability           *availability.Computer
	holds                  *booking.HoldService
	promoter               *booking.Promoter
	credits                *ledger.Service
	events                 EventStore
	clock                  clock.Clock
	loc                    *time.Location
	logger                 *slog.Logger
	horizonDays            int
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

type Config struct {
	HorizonDays                   int
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
}

func New(cat *catalog.Catalog, avail *availability.Computer, holds *booking.HoldService, promoter *booking.Promoter, credits *ledger.Service, events EventStore, clk clock.Clock, loc *time.Location, logger *slog.Logger, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	horizonDays := cfg.HorizonDays
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &Handler{
		catalog:                cat,
		availability:           avail,
		holds:                  holds,
		promoter:               promoter,
		credits:                credits,
		events:                 events,
		clock:                  clk,
		loc:                    loc,
		logger:                 logger,
		horizonDays:            horizonDays,
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/availability", h.Availability)
	mux.HandleFunc("/api/v1/public/holds", h.PlaceHold)
	mux.HandleFunc("/api/v1/public/holds/attach", h.AttachHold)
	mux.HandleFunc("/api/v1/public/holds/release", h.ReleaseHold)
	mux.HandleFunc("/api/v1/credits/balance", h.CreditBalance)
	mux.HandleFunc("/webhooks/stripe", h.StripeWebhook)
	mux.HandleFunc("/webhooks/billing/local", h.LocalBillingWebhook)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
