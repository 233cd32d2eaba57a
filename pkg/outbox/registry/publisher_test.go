package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	"github.com/contemplaapp/contempla-backend/pkg/outbox"
	"github.com/contemplaapp/contempla-backend/pkg/outbox/payloads"
)

func buildRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		ContemplationTopic: "contemplation-topic",
		CommissionTopic:    "commission-topic",
		ParticipantTopic:   "participant-topic",
	})
	require.NoError(t, err)
	return reg
}

func envelopeWith(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return raw
}

func envelopeOf(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return envelopeWith(t, data)
}

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := buildRegistry(t)
	winnerID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventGroupContemplated,
		AggregateType: enums.AggregateGroup,
		AggregateID:   uuid.New(),
		Payload: envelopeOf(t, payloads.GroupContemplatedEvent{
			GroupID:                   uuid.New(),
			PlanID:                    uuid.New(),
			ContemplatedParticipantID: winnerID,
			ContemplatedUserID:        uuid.New(),
			ContemplatedAt:            time.Now().UTC(),
		}),
	})
	require.NoError(t, err)

	require.Equal(t, "contemplation-topic", resolved.Descriptor.Topic)
	require.Equal(t, enums.EventGroupContemplated, resolved.Descriptor.EventType)
	require.NotEmpty(t, resolved.Envelope.EventID)
	require.False(t, resolved.Envelope.OccurredAt.IsZero())

	payload, ok := resolved.Payload.(*payloads.GroupContemplatedEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	require.Equal(t, winnerID, payload.ContemplatedParticipantID)
}

func TestEventRegistryRoutesByTopic(t *testing.T) {
	reg := buildRegistry(t)

	cases := []struct {
		eventType enums.OutboxEventType
		aggregate enums.OutboxAggregateType
		payload   any
		topic     string
	}{
		{enums.EventCommissionCredited, enums.AggregateCommission, payloads.CommissionCreditedEvent{CommissionID: uuid.New(), PayeeUserID: uuid.New(), Level: 1}, "commission-topic"},
		{enums.EventParticipantExpired, enums.AggregateParticipant, payloads.ParticipantExpiredEvent{ParticipantID: uuid.New(), GroupID: uuid.New()}, "participant-topic"},
		{enums.EventParticipantPaymentNudge, enums.AggregateParticipant, payloads.ParticipantPaymentNudgeEvent{ParticipantID: uuid.New()}, "participant-topic"},
	}
	for _, tc := range cases {
		resolved, err := reg.Resolve(models.OutboxEvent{
			EventType:     tc.eventType,
			AggregateType: tc.aggregate,
			AggregateID:   uuid.New(),
			Payload:       envelopeOf(t, tc.payload),
		})
		require.NoError(t, err, "%s", tc.eventType)
		require.Equal(t, tc.topic, resolved.Descriptor.Topic, "%s", tc.eventType)
	}
}

func TestEventRegistryResolveRejectsMalformedRows(t *testing.T) {
	reg := buildRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event type": {
			EventType:     enums.OutboxEventType("group_archived"),
			AggregateType: enums.AggregateGroup,
			AggregateID:   uuid.New(),
		},
		"aggregate mismatch": {
			EventType:     enums.EventGroupContemplated,
			AggregateType: enums.AggregateParticipant,
			AggregateID:   uuid.New(),
		},
		"missing aggregate id": {
			EventType:     enums.EventGroupContemplated,
			AggregateType: enums.AggregateGroup,
			AggregateID:   uuid.Nil,
		},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			event.Payload = envelopeWith(t, []byte(`{}`))
			_, err := reg.Resolve(event)
			require.Error(t, err)

			var nonRetry NonRetryableError
			require.True(t, errors.As(err, &nonRetry), "expected non-retryable, got %T", err)
		})
	}

	t.Run("null payload", func(t *testing.T) {
		_, err := reg.Resolve(models.OutboxEvent{
			EventType:     enums.EventGroupContemplated,
			AggregateType: enums.AggregateGroup,
			AggregateID:   uuid.New(),
			Payload:       envelopeWith(t, []byte("null")),
		})
		require.Error(t, err)

		var nonRetry NonRetryableError
		require.True(t, errors.As(err, &nonRetry))
	})
}
