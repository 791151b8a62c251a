package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/slotledger/internal/booking"
	"github.com/example/slotledger/internal/ledger"
)

type localSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type localBillingEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"` // purchase-completed | invoice-paid | invoice-refunded

	// purchase-completed
	ExternalRef    string               `json:"external_ref"`
	ServiceKey     string               `json:"service_key"`
	Addons         []string             `json:"addons"`
	Customer       booking.CustomerInfo `json:"customer"`
	Slots          []localSlot          `json:"slots"`
	PayWithCredits bool                 `json:"pay_with_credits"`

	// invoice-paid / invoice-refunded, plus user_id for the credit path
	UserID      string `json:"user_id"`
	Tier        string `json:"tier"`
	InvoiceID   string `json:"invoice_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// LocalBillingWebhook is the non-Stripe billing gateway callback used in
// development and by the in-house gateway. Same contract as the Stripe path:
// dedupe by event id, effect and dedupe in one transaction.
func (h *Handler) LocalBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var evt localBillingEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	evt.EventID = strings.TrimSpace(evt.EventID)
	evt.Type = strings.TrimSpace(evt.Type)
	if evt.EventID == "" || evt.Type == "" {
		http.Error(w, "missing event_id or type", http.StatusBadRequest)
		return
	}

	var duplicate bool
	err = h.events.WithTx(r.Context(), func(txCtx context.Context) error {
		fresh, err := h.events.RecordProviderEvent(txCtx, "local", evt.EventID, evt.Type, body)
		if err != nil {
			return err
		}
		if !fresh {
			duplicate = true
			return nil
		}
		return h.applyLocalEvent(txCtx, evt)
	})
	switch {
	case err == nil && duplicate:
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
	case errors.Is(err, booking.ErrSlotConflict):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "slot_conflict"})
	case errors.Is(err, ledger.ErrInsufficientCredit):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": "insufficient_credit"})
	case errors.Is(err, booking.ErrNoSlots), errors.Is(err, booking.ErrInvalidSlot), errors.Is(err, ledger.ErrInvalidEntry):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		h.logger.Error("local billing webhook failed", "event_id", evt.EventID, "err", err)
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

func (h *Handler) applyLocalEvent(ctx context.Context, evt localBillingEvent) error {
	switch evt.Type {
	case "purchase-completed":
		in := booking.PromoteInput{
			ExternalRef: strings.TrimSpace(evt.ExternalRef),
			ServiceKey:  strings.TrimSpace(evt.ServiceKey),
			Addons:      evt.Addons,
			Customer:    evt.Customer,
		}
		for _, s := range evt.Slots {
			start, err := time.Parse(time.RFC3339, s.Start)
			if err != nil {
				return booking.ErrInvalidSlot
			}
			end, err := time.Parse(time.RFC3339, s.End)
			if err != nil {
				return booking.ErrInvalidSlot
			}
			in.Slots = append(in.Slots, booking.Slot{Start: start, End: end})
		}
		if evt.PayWithCredits {
			svc, err := h.creditServiceType(evt)
			if err != nil {
				return err
			}
			in.Credit = &booking.CreditSpend{UserID: evt.UserID, ServiceType: svc}
		}
		return h.promoter.Promote(ctx, in)

	case "invoice-paid":
		plan := ledger.PlanForTier(strings.ToLower(strings.TrimSpace(evt.Tier)))
		if !plan.Known() {
			h.logger.Info("tier grants no credits; skipping", "tier", evt.Tier, "invoice_id", evt.InvoiceID)
			return nil
		}
		validFrom := h.clock.Now()
		if evt.PeriodStart != "" {
			t, err := time.Parse(time.RFC3339, evt.PeriodStart)
			if err != nil {
				return ledger.ErrInvalidEntry
			}
			validFrom = t
		}
		var validUntil *time.Time
		if evt.PeriodEnd != "" {
			t, err := time.Parse(time.RFC3339, evt.PeriodEnd)
			if err != nil {
				return ledger.ErrInvalidEntry
			}
			validUntil = &t
		}
		err := h.credits.Grant(ctx, evt.UserID, plan.ServiceType, plan.Credits, evt.InvoiceID, validFrom, validUntil)
		if errors.Is(err, ledger.ErrInvoiceProcessed) {
			h.logger.Info("invoice already granted", "invoice_id", evt.InvoiceID)
			return nil
		}
		return err

	case "invoice-refunded":
		plan := ledger.PlanForTier(strings.ToLower(strings.TrimSpace(evt.Tier)))
		if !plan.Known() {
			return nil
		}
		now := h.clock.Now()
		periodStart := now.AddDate(0, -1, 0)
		periodEnd := now
		if evt.PeriodStart != "" {
			t, err := time.Parse(time.RFC3339, evt.PeriodStart)
			if err != nil {
				return ledger.ErrInvalidEntry
			}
			periodStart = t
		}
		if evt.PeriodEnd != "" {
			t, err := time.Parse(time.RFC3339, evt.PeriodEnd)
			if err != nil {
				return ledger.ErrInvalidEntry
			}
			periodEnd = t
		}
		return h.credits.RevokeUnused(ctx, evt.UserID, plan.ServiceType, evt.InvoiceID, periodStart, periodEnd)

	default:
		h.logger.Info("local billing event type ignored", "type", evt.Type)
		return nil
	}
}

// creditServiceType resolves which credit bucket pays for a purchase. The
// gateway may name the bucket directly via tier metadata; otherwise the
// service's own credit type applies.
func (h *Handler) creditServiceType(evt localBillingEvent) (string, error) {
	if evt.UserID == "" {
		return "", errors.New("pay_with_credits requires user_id")
	}
	if tier := strings.TrimSpace(evt.Tier); tier != "" {
		if plan := ledger.PlanForTier(strings.ToLower(tier)); plan.Known() {
			return plan.ServiceType, nil
		}
	}
	if key := strings.TrimSpace(evt.ServiceKey); key != "" {
		svc, err := h.catalog.Service(key)
		if err != nil {
			return "", err
		}
		if svc.CreditType != "" {
			return svc.CreditType, nil
		}
		return key, nil
	}
	return "", errors.New("pay_with_credits requires tier or service_key")
}
