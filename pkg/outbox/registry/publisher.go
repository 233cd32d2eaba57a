// Package registry declares which outbox event types exist, the topic each
// one flows to, and how to decode its payload. The publisher refuses rows it
// cannot resolve here.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	"github.com/contemplaapp/contempla-backend/pkg/outbox"
	"github.com/contemplaapp/contempla-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic, and payload
// schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is a fully decoded outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError tells the dispatcher a row can never succeed and belongs
// in the DLQ.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry binds every supported event type to its configured topic.
// All topic names must be set; a half-configured publisher would silently
// strand events.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[string]string{
		"contemplation": cfg.ContemplationTopic,
		"commission":    cfg.CommissionTopic,
		"participant":   cfg.ParticipantTopic,
	}
	for name, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("%s topic is required", name)
		}
	}

	descriptors := []EventDescriptor{
		{
			EventType:      enums.EventGroupContemplated,
			AggregateType:  enums.AggregateGroup,
			Topic:          cfg.ContemplationTopic,
			PayloadFactory: func() interface{} { return &payloads.GroupContemplatedEvent{} },
		},
		{
			EventType:      enums.EventCommissionCredited,
			AggregateType:  enums.AggregateCommission,
			Topic:          cfg.CommissionTopic,
			PayloadFactory: func() interface{} { return &payloads.CommissionCreditedEvent{} },
		},
		{
			EventType:      enums.EventParticipantExpired,
			AggregateType:  enums.AggregateParticipant,
			Topic:          cfg.ParticipantTopic,
			PayloadFactory: func() interface{} { return &payloads.ParticipantExpiredEvent{} },
		},
		{
			EventType:      enums.EventParticipantPaymentNudge,
			AggregateType:  enums.AggregateParticipant,
			Topic:          cfg.ParticipantTopic,
			PayloadFactory: func() interface{} { return &payloads.ParticipantPaymentNudgeEvent{} },
		},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve validates the row against its descriptor and decodes the typed
// payload. Every failure here is non-retryable: the row itself is malformed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
