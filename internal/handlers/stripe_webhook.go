package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/example/slotledger/internal/booking"
	"github.com/example/slotledger/internal/ledger"
)

// StripeWebhook handles Stripe webhooks (no auth beyond signature
// verification). Dedupe and the event's effect commit in one transaction,
// so a failed handler leaves the event unrecorded and lets Stripe's retry
// through.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeWebhookSecret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
	)

	var duplicate bool
	err = h.events.WithTx(r.Context(), func(txCtx context.Context) error {
		fresh, err := h.events.RecordProviderEvent(txCtx, "stripe", evt.ID, evtType, body)
		if err != nil {
			return err
		}
		if !fresh {
			duplicate = true
			return nil
		}
		return h.applyStripeEvent(txCtx, evtType, evt.Data.Raw)
	})
	switch {
	case err == nil && duplicate:
		h.logger.Info("billing provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID)
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
	case errors.Is(err, booking.ErrSlotConflict):
		h.logger.Error("promotion lost the slot", "provider_event_id", evt.ID, "err", err)
		writeJSON(w, http.StatusConflict, map[string]any{"error": "slot_conflict"})
	case errors.Is(err, ledger.ErrInsufficientCredit):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": "insufficient_credit"})
	case err != nil:
		h.logger.Error("stripe webhook failed", "provider_event_id", evt.ID, "err", err)
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

func (h *Handler) applyStripeEvent(ctx context.Context, evtType string, raw []byte) error {
	switch evtType {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			return nil
		}
		return h.promoteCheckoutSession(ctx, session)

	case "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			h.logger.Error("stripe: invalid invoice payload", "err", err)
			return nil
		}
		userID := strings.TrimSpace(inv.Metadata["user_id"])
		tier := strings.TrimSpace(strings.ToLower(inv.Metadata["tier"]))
		if userID == "" || tier == "" {
			h.logger.Warn("stripe: missing metadata on invoice (user_id/tier)", "invoice_id", inv.ID)
			return nil
		}
		plan := ledger.PlanForTier(tier)
		if !plan.Known() {
			h.logger.Info("stripe: tier grants no credits", "tier", tier, "invoice_id", inv.ID)
			return nil
		}

		validFrom := h.clock.Now()
		if inv.PeriodStart > 0 {
			validFrom = time.Unix(inv.PeriodStart, 0).UTC()
		}
		var validUntil *time.Time
		if inv.PeriodEnd > 0 {
			t := time.Unix(inv.PeriodEnd, 0).UTC()
			validUntil = &t
		}

		err := h.credits.Grant(ctx, userID, plan.ServiceType, plan.Credits, inv.ID, validFrom, validUntil)
		if errors.Is(err, ledger.ErrInvoiceProcessed) {
			h.logger.Info("stripe: invoice already granted", "invoice_id", inv.ID)
			return nil
		}
		return err

	case "credit_note.created":
		var cn stripe.CreditNote
		if err := json.Unmarshal(raw, &cn); err != nil {
			h.logger.Error("stripe: invalid credit note payload", "err", err)
			return nil
		}
		userID := strings.TrimSpace(cn.Metadata["user_id"])
		tier := strings.TrimSpace(strings.ToLower(cn.Metadata["tier"]))
		if userID == "" || tier == "" || cn.Invoice == nil {
			h.logger.Warn("stripe: missing metadata on credit note (user_id/tier/invoice)", "credit_note_id", cn.ID)
			return nil
		}
		plan := ledger.PlanForTier(tier)
		if !plan.Known() {
			return nil
		}

		now := h.clock.Now()
		periodStart := now.AddDate(0, -1, 0)
		periodEnd := now
		if raw := cn.Metadata["period_start"]; raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				periodStart = t
			}
		}
		if raw := cn.Metadata["period_end"]; raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				periodEnd = t
			}
		}
		return h.credits.RevokeUnused(ctx, userID, plan.ServiceType, cn.Invoice.ID, periodStart, periodEnd)

	default:
		h.logger.Info("stripe: event type ignored", "event_type", evtType)
		return nil
	}
}

func (h *Handler) promoteCheckoutSession(ctx context.Context, session stripe.CheckoutSession) error {
	customer := booking.CustomerInfo{}
	if session.CustomerDetails != nil {
		customer.Name = session.CustomerDetails.Name
		customer.Email = session.CustomerDetails.Email
		customer.Phone = session.CustomerDetails.Phone
	}

	in := booking.PromoteInput{
		ExternalRef: session.ID,
		ServiceKey:  strings.TrimSpace(session.Metadata["service_key"]),
		Addons:      splitCSV(session.Metadata["addons"]),
		Customer:    customer,
	}
	return h.promoter.Promote(ctx, in)
}
