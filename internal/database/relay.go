package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relaySource = "marketplace-scraper"

// StreamEnvelope is the JSON stored in the "data" field of every relayed
// stream entry. Payload is the outbox payload, byte for byte.
type StreamEnvelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Attempt       int             `json:"attempt"`
	Source        string          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// StreamValues builds the stream entry for an outbox event. All values are
// strings, which is what a reader gets back from XREADGROUP.
func StreamValues(event *OutboxEvent) (map[string]any, error) {
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidEvent)
	}

	data, err := json.Marshal(StreamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		OccurredAt:    event.CreatedAt.UTC(),
		Attempt:       event.RetryCount + 1,
		Source:        relaySource,
		Payload:       event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode stream envelope: %w", err)
	}

	return map[string]any{
		"data":         string(data),
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
		"outbox_id":    event.ID.String(),
		"attempt":      strconv.Itoa(event.RetryCount + 1),
	}, nil
}

// StreamWriter is the part of the Redis client the relay writes with.
type StreamWriter interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StreamMaxLen trims target streams approximately. 0 disables trimming.
	StreamMaxLen int64
}

// BatchResult counts one pass over the outbox.
type BatchResult struct {
	Fetched int
	Relayed int
	Failed  int
}

// Relay copies due outbox events onto their Redis streams. Delivery is at
// least once: an event whose MarkProcessed fails is sent again.
type Relay struct {
	stream StreamWriter
	outbox OutboxRepo
	cfg    RelayConfig
	logger *slog.Logger
}

func NewRelay(outbox OutboxRepo, stream StreamWriter, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StreamMaxLen < 0 {
		cfg.StreamMaxLen = 0
	}

	return &Relay{
		stream: stream,
		outbox: outbox,
		cfg:    cfg,
		logger: logger.With("component", "relay"),
	}
}

// Start drains the outbox every poll interval until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay",
		"interval", r.cfg.PollInterval,
		"batch_size", r.cfg.BatchSize,
		"stream_max_len", r.cfg.StreamMaxLen)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain runs batches back to back while the outbox keeps returning full
// batches with progress.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		result, err := r.RelayBatch(ctx)
		if err != nil {
			r.logger.Error("relay batch failed", "error", err)
			return
		}
		if result.Fetched > 0 {
			r.logger.Debug("relay batch done",
				"fetched", result.Fetched,
				"relayed", result.Relayed,
				"failed", result.Failed)
		}
		if result.Fetched < r.cfg.BatchSize || result.Relayed == 0 {
			return
		}
	}
}

// RelayBatch sends one batch of due events. Per-event failures are recorded
// on the outbox row and counted, not returned.
func (r *Relay) RelayBatch(ctx context.Context) (BatchResult, error) {
	events, err := r.outbox.GetPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to get pending events: %w", err)
	}

	result := BatchResult{Fetched: len(events)}
	for _, event := range events {
		if err := r.relay(ctx, event); err != nil {
			result.Failed++
			r.logger.Warn("event not relayed",
				"event_id", event.ID,
				"event_type", event.EventType,
				"attempt", event.RetryCount+1,
				"error", err)
			continue
		}
		result.Relayed++
	}
	return result, nil
}

func (r *Relay) relay(ctx context.Context, event *OutboxEvent) error {
	if err := r.publish(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	r.logger.Info("event relayed",
		"event_id", event.ID,
		"event_type", event.EventType,
		"job_id", event.AggregateID,
		"stream", event.TargetStream)
	return nil
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	values, err := StreamValues(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: values,
	}
	if r.cfg.StreamMaxLen > 0 {
		args.MaxLen = r.cfg.StreamMaxLen
		args.Approx = true
	}

	if err := r.stream.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add to stream %s: %w", event.TargetStream, err)
	}
	return nil
}
