// Package consumer reads billing events from Kafka and applies them to the
// credit ledger, deduplicating by event id.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/slotledger/libs/kafkax"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox dedupes consumed events; false means already seen. The dedupe row
// and the handler's writes share one transaction, so a failed handler leaves
// the event unseen and the redelivery retries it.
type Inbox interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	RecordInboxEvent(ctx context.Context, eventID, eventType string) (bool, error)
}

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)

		if err := dispatch(ctxSpan, c.inbox, c.handler, c.logger, meta, msg); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}

// dispatch records the inbox row and applies the handler atomically. On
// error the dedupe row rolls back with the handler's writes.
func dispatch(ctx context.Context, inbox Inbox, handler Handler, logger *slog.Logger, meta kafkax.EventMeta, msg kafka.Message) error {
	return inbox.WithTx(ctx, func(txCtx context.Context) error {
		fresh, err := inbox.RecordInboxEvent(txCtx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !fresh {
			logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
		return handler(txCtx, msg)
	})
}
