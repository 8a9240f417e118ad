package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/icesync/pkg/observability"
	"github.com/google/uuid"
)

// Envelope wraps every published payload with tracing metadata.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EnvelopePublisher wraps payloads in an Envelope before handing them to
// the next publisher. The routing key becomes the event type.
type EnvelopePublisher struct {
	next Publisher
	now  func() time.Time
}

// NewEnvelopePublisher decorates next.
func NewEnvelopePublisher(next Publisher) *EnvelopePublisher {
	return &EnvelopePublisher{next: next, now: time.Now}
}

// Publish wraps payload, which must be valid JSON, and forwards it.
func (p *EnvelopePublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("payload for %s is not valid JSON", routingKey)
	}

	body, err := json.Marshal(Envelope{
		EventID:       uuid.New(),
		EventType:     routingKey,
		OccurredAt:    p.now().UTC(),
		CorrelationID: observability.CorrelationIDFromContext(ctx),
		Payload:       payload,
	})
	if err != nil {
		return err
	}
	return p.next.Publish(ctx, routingKey, body)
}

func (p *EnvelopePublisher) Close() error {
	return p.next.Close()
}
