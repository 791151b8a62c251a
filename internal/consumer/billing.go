package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/slotledger/internal/clock"
	"github.com/example/slotledger/internal/ledger"
)

const (
	TopicInvoicePaid     = "billing.invoice.paid.v1"
	TopicInvoiceRefunded = "billing.invoice.refunded.v1"
)

type invoiceEvent struct {
	UserID      string `json:"user_id"`
	Tier        string `json:"tier"`
	InvoiceID   string `json:"invoice_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// BillingHandler applies paid and refunded invoice events to the credit
// ledger. Malformed messages are dropped with a log line, not retried: a
// payload that failed to parse once will fail forever.
func BillingHandler(credits *ledger.Service, clk clock.Clock, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt invoiceEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid invoice event", "topic", msg.Topic, "err", err)
			return nil
		}
		if evt.UserID == "" || evt.Tier == "" || evt.InvoiceID == "" {
			logger.Error("missing invoice event fields", "topic", msg.Topic)
			return nil
		}

		plan := ledger.PlanForTier(evt.Tier)
		if !plan.Known() {
			logger.Info("tier grants no credits; skipping", "tier", evt.Tier, "invoice_id", evt.InvoiceID)
			return nil
		}

		periodStart, periodEnd, err := parsePeriod(evt, clk.Now())
		if err != nil {
			logger.Error("invalid invoice period", "topic", msg.Topic, "err", err)
			return nil
		}

		switch msg.Topic {
		case TopicInvoicePaid:
			err := credits.Grant(ctx, evt.UserID, plan.ServiceType, plan.Credits, evt.InvoiceID, periodStart, periodEnd)
			if errors.Is(err, ledger.ErrInvoiceProcessed) {
				logger.Info("invoice already granted", "invoice_id", evt.InvoiceID)
				return nil
			}
			return err
		case TopicInvoiceRefunded:
			end := clk.Now().UTC()
			if periodEnd != nil {
				end = *periodEnd
			}
			return credits.RevokeUnused(ctx, evt.UserID, plan.ServiceType, evt.InvoiceID, periodStart, end)
		default:
			logger.Warn("unhandled billing topic", "topic", msg.Topic)
			return nil
		}
	}
}

func parsePeriod(evt invoiceEvent, now time.Time) (time.Time, *time.Time, error) {
	start := now.UTC()
	if evt.PeriodStart != "" {
		parsed, err := time.Parse(time.RFC3339, evt.PeriodStart)
		if err != nil {
			return time.Time{}, nil, err
		}
		start = parsed
	}
	var end *time.Time
	if evt.PeriodEnd != "" {
		parsed, err := time.Parse(time.RFC3339, evt.PeriodEnd)
		if err != nil {
			return time.Time{}, nil, err
		}
		end = &parsed
	}
	return start, end, nil
}
