package postgres

import (
	"context"

	"github.com/example/slotledger/internal/outbox"
	otelx "github.com/example/slotledger/libs/otel"
)

// Record appends a domain event to the outbox inside the calling
// transaction. Satisfies the booking and ledger event sinks.
func (s *Store) Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, aggregateType, aggregateID, eventType, payload, traceparent, tracestate)
	return err
}

func (s *Store) FetchUnpublishedEvents(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var rcd outbox.Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	return records, rows.Err()
}

func (s *Store) MarkEventsPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q(ctx).Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

// RecordInboxEvent dedupes consumed Kafka messages. Returns false when the
// event was already recorded.
func (s *Store) RecordInboxEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := s.q(ctx).Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RecordProviderEvent dedupes incoming webhook deliveries by the provider's
// own event id. Returns false for a replay. Run it inside the same
// transaction as the effect so a failed handler lets the retry through.
func (s *Store) RecordProviderEvent(ctx context.Context, provider, providerEventID, eventType string, payload []byte) (bool, error) {
	tag, err := s.q(ctx).Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, provider, providerEventID, eventType, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
