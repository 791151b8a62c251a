// Package outbox publishes domain events written transactionally with the
// state change that produced them.
package outbox

import "time"

// Record is one stored outbox row. The Kafka topic name equals EventType
// (event per topic).
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}
