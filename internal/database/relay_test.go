package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingStream keeps every XAdd and fails the entries whose job id is
// listed in fail.
type recordingStream struct {
	mu    sync.Mutex
	adds  []*redis.XAddArgs
	fail  map[string]error
	calls int
}

func (s *recordingStream) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	cmd := redis.NewStringCmd(ctx)
	if err := s.fail[args.Values.(map[string]any)["aggregate_id"].(string)]; err != nil {
		cmd.SetErr(err)
		return cmd
	}
	s.adds = append(s.adds, args)
	cmd.SetVal("1700000000000-0")
	return cmd
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func listingsEvent(jobID string, retries int) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "search_job",
		AggregateID:   jobID,
		EventType:     "LISTINGS_SCRAPED",
		Payload:       json.RawMessage(`{"job_id":"` + jobID + `","query":"nevera","total_products":48}`),
		TargetStream:  ListingsStream,
		RetryCount:    retries,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("COT", -5*3600)),
	}
}

func TestStreamValues(t *testing.T) {
	event := listingsEvent("job-7", 2)

	values, err := StreamValues(event)
	require.NoError(t, err)

	assert.Equal(t, "LISTINGS_SCRAPED", values["event_type"])
	assert.Equal(t, "job-7", values["aggregate_id"])
	assert.Equal(t, event.ID.String(), values["outbox_id"])
	assert.Equal(t, "3", values["attempt"])
	for key, v := range values {
		assert.IsType(t, "", v, "value %q", key)
	}

	var envelope StreamEnvelope
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &envelope))
	assert.Equal(t, event.ID.String(), envelope.ID)
	assert.Equal(t, "LISTINGS_SCRAPED", envelope.Type)
	assert.Equal(t, "search_job", envelope.AggregateType)
	assert.Equal(t, 3, envelope.Attempt)
	assert.Equal(t, relaySource, envelope.Source)
	assert.True(t, event.CreatedAt.Equal(envelope.OccurredAt))
	assert.JSONEq(t, string(event.Payload), string(envelope.Payload))
}

func TestStreamValuesRejectsBrokenPayload(t *testing.T) {
	event := listingsEvent("job-1", 0)
	event.Payload = json.RawMessage(`{"job_id":`)

	_, err := StreamValues(event)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestRelayBatch(t *testing.T) {
	ctx := context.Background()
	ok1, broken, ok2 := listingsEvent("job-1", 0), listingsEvent("job-2", 4), listingsEvent("job-3", 0)

	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{ok1, broken, ok2}, nil)
	outbox.On("MarkProcessed", ctx, ok1.ID).Return(nil)
	outbox.On("MarkProcessed", ctx, ok2.ID).Return(nil)
	outbox.On("MarkFailed", ctx, broken.ID, mock.MatchedBy(func(err error) bool {
		return errors.Is(err, redis.ErrClosed)
	})).Return(nil)

	stream := &recordingStream{fail: map[string]error{"job-2": redis.ErrClosed}}
	relay := NewRelay(outbox, stream, slog.Default(), RelayConfig{BatchSize: 10, StreamMaxLen: 500})

	result, err := relay.RelayBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Fetched: 3, Relayed: 2, Failed: 1}, result)

	require.Len(t, stream.adds, 2)
	for _, args := range stream.adds {
		assert.Equal(t, ListingsStream, args.Stream)
		assert.Equal(t, int64(500), args.MaxLen)
		assert.True(t, args.Approx)
	}
	outbox.AssertExpectations(t)
}

func TestRelayBatchWithoutTrimming(t *testing.T) {
	ctx := context.Background()
	event := listingsEvent("job-1", 0)

	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", ctx, 100).Return([]*OutboxEvent{event}, nil)
	outbox.On("MarkProcessed", ctx, event.ID).Return(nil)

	stream := &recordingStream{}
	_, err := NewRelay(outbox, stream, slog.Default(), RelayConfig{}).RelayBatch(ctx)
	require.NoError(t, err)

	require.Len(t, stream.adds, 1)
	assert.Zero(t, stream.adds[0].MaxLen)
	assert.False(t, stream.adds[0].Approx)
}

func TestRelayBatchBrokenPayloadNeverReachesStream(t *testing.T) {
	ctx := context.Background()
	event := listingsEvent("job-1", 0)
	event.Payload = json.RawMessage(`[1, 2`)

	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", ctx, 1).Return([]*OutboxEvent{event}, nil)
	outbox.On("MarkFailed", ctx, event.ID, mock.MatchedBy(func(err error) bool {
		return errors.Is(err, ErrInvalidEvent)
	})).Return(nil)

	stream := &recordingStream{}
	result, err := NewRelay(outbox, stream, slog.Default(), RelayConfig{BatchSize: 1}).RelayBatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, BatchResult{Fetched: 1, Failed: 1}, result)
	assert.Zero(t, stream.calls)
	outbox.AssertExpectations(t)
}

func TestRelayBatchMarkProcessedError(t *testing.T) {
	ctx := context.Background()
	event := listingsEvent("job-1", 0)

	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", ctx, 5).Return([]*OutboxEvent{event}, nil)
	outbox.On("MarkProcessed", ctx, event.ID).Return(errors.New("conn busy"))

	stream := &recordingStream{}
	result, err := NewRelay(outbox, stream, slog.Default(), RelayConfig{BatchSize: 5}).RelayBatch(ctx)
	require.NoError(t, err)

	// Already on the stream; it will be sent again on the next pass.
	assert.Equal(t, BatchResult{Fetched: 1, Failed: 1}, result)
	assert.Len(t, stream.adds, 1)
	outbox.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelayBatchGetPendingError(t *testing.T) {
	ctx := context.Background()
	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", ctx, 5).Return(nil, errors.New("connection reset"))

	_, err := NewRelay(outbox, &recordingStream{}, slog.Default(), RelayConfig{BatchSize: 5}).RelayBatch(ctx)
	assert.ErrorContains(t, err, "connection reset")
}

func TestRelayDrainsFullBatches(t *testing.T) {
	ctx := context.Background()
	first := []*OutboxEvent{listingsEvent("job-1", 0), listingsEvent("job-2", 0)}
	second := []*OutboxEvent{listingsEvent("job-3", 0)}

	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", ctx, 2).Return(first, nil).Once()
	outbox.On("GetPending", ctx, 2).Return(second, nil).Once()
	outbox.On("MarkProcessed", ctx, mock.Anything).Return(nil)

	stream := &recordingStream{}
	NewRelay(outbox, stream, slog.Default(), RelayConfig{BatchSize: 2}).drain(ctx)

	assert.Len(t, stream.adds, 3)
	outbox.AssertNumberOfCalls(t, "GetPending", 2)
}

func TestRelayDrainStopsWithoutProgress(t *testing.T) {
	ctx := context.Background()
	batch := []*OutboxEvent{listingsEvent("job-1", 0)}

	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", ctx, 1).Return(batch, nil)
	outbox.On("MarkFailed", ctx, batch[0].ID, mock.Anything).Return(errors.New("db down"))

	stream := &recordingStream{fail: map[string]error{"job-1": errors.New("stream full")}}
	NewRelay(outbox, stream, slog.Default(), RelayConfig{BatchSize: 1}).drain(ctx)

	outbox.AssertNumberOfCalls(t, "GetPending", 1)
}

func TestNewRelayDefaults(t *testing.T) {
	relay := NewRelay(new(MockOutboxRepository), &recordingStream{}, slog.Default(), RelayConfig{StreamMaxLen: -1})

	assert.Equal(t, 5*time.Second, relay.cfg.PollInterval)
	assert.Equal(t, 100, relay.cfg.BatchSize)
	assert.Zero(t, relay.cfg.StreamMaxLen)
}

func TestRelayStartStopsOnCancel(t *testing.T) {
	var polls atomic.Int32
	outbox := new(MockOutboxRepository)
	outbox.On("GetPending", mock.Anything, 10).
		Run(func(mock.Arguments) { polls.Add(1) }).
		Return([]*OutboxEvent{}, nil)

	relay := NewRelay(outbox, &recordingStream{}, slog.Default(), RelayConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Start(ctx) }()

	require.Eventually(t, func() bool {
		return polls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}
