package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	"github.com/contemplaapp/contempla-backend/pkg/outbox"
	"github.com/contemplaapp/contempla-backend/pkg/outbox/payloads"
	"github.com/contemplaapp/contempla-backend/pkg/outbox/registry"
)

// harness bundles the stubbed collaborators around a Service under test.
type harness struct {
	repo *stubRepo
	dlq  *stubDLQ
	svc  *Service
}

func newHarness(t *testing.T, repo *stubRepo, pub *stubPublisher, resolver registryResolver, cfgOverride *config.OutboxConfig) *harness {
	t.Helper()

	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if cfgOverride != nil {
		outboxCfg = *cfgOverride
	}

	dlq := &stubDLQ{}
	svc, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: outboxCfg},
		Logger: logger.New(logger.Options{
			ServiceName: "outbox-publisher-test",
			Output:      io.Discard,
		}),
		DB:               stubDB{},
		PubSub:           stubPubSubClient{},
		Repository:       repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
	})
	require.NoError(t, err)

	return &harness{repo: repo, dlq: dlq, svc: svc}
}

func outboxRow(t *testing.T, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, marker string) models.OutboxEvent {
	t.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    marker,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &stubRepo{events: []models.OutboxEvent{
		outboxRow(t, enums.EventGroupContemplated, enums.AggregateGroup, "event-one"),
		outboxRow(t, enums.EventGroupContemplated, enums.AggregateGroup, "event-two"),
	}}
	pub := &stubPublisher{results: []publishResult{
		stubPublishResult{err: errors.New("transient")},
		stubPublishResult{},
	}}
	resolver := &stubResolver{resolved: &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "contemplation-topic",
			AggregateType: enums.AggregateGroup,
		},
		Envelope: outbox.PayloadEnvelope{EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:  &payloads.GroupContemplatedEvent{},
	}}
	h := newHarness(t, repo, pub, resolver, nil)

	processed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	// first row fails transiently and stays queued; second still goes out
	require.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	require.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	row := outboxRow(t, enums.EventCommissionCredited, enums.AggregateCommission, "nonretryable")
	repo := &stubRepo{events: []models.OutboxEvent{row}}
	resolver := &stubResolver{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	h := newHarness(t, repo, &stubPublisher{}, resolver, nil)

	processed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	require.Len(t, h.dlq.entries, 1)
	entry := h.dlq.entries[0]
	require.Equal(t, row.ID, entry.EventID)
	require.Equal(t, json.RawMessage(row.Payload), json.RawMessage(entry.Payload))
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	require.Len(t, repo.terminal, 1)
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	row := outboxRow(t, enums.EventParticipantExpired, enums.AggregateParticipant, "max-attempts")
	row.AttemptCount = 1
	repo := &stubRepo{events: []models.OutboxEvent{row}}
	pub := &stubPublisher{results: []publishResult{
		stubPublishResult{err: errors.New("transient")},
	}}
	resolver := &stubResolver{resolved: &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "participant-topic",
			AggregateType: enums.AggregateParticipant,
		},
		Envelope: outbox.PayloadEnvelope{EventID: row.ID.String(), OccurredAt: time.Now()},
		Payload:  &payloads.ParticipantExpiredEvent{},
	}}
	h := newHarness(t, repo, pub, resolver, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	require.Len(t, h.dlq.entries, 1)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, h.dlq.entries[0].ErrorReason)
}

type stubRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (s *stubRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return s.events, nil
}

func (s *stubRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	s.published = append(s.published, id)
	return nil
}

func (s *stubRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	s.failed = append(s.failed, id)
	return nil
}

func (s *stubRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	s.terminal = append(s.terminal, id)
	return nil
}

type stubDLQ struct {
	entries []models.OutboxDLQ
}

func (s *stubDLQ) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	s.entries = append(s.entries, entry)
	return nil
}

type stubDB struct{}

func (stubDB) Ping(context.Context) error { return nil }

func (stubDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type stubPubSubClient struct{}

func (stubPubSubClient) Ping(context.Context) error { return nil }

func (stubPubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type stubPublisher struct {
	results []publishResult
}

func (s *stubPublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	if len(s.results) == 0 {
		return nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next
}

type stubPublishResult struct {
	err error
}

func (s stubPublishResult) Get(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "message-id", nil
}

type stubResolver struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (s *stubResolver) Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resolved, nil
}
