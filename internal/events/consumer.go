package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/database"
	"github.com/redis/go-redis/v9"
)

// StreamReader is the consumer-group part of the Redis client.
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler receives every decoded LISTINGS_SCRAPED event. A returned error
// leaves the message unacknowledged so it stays pending for the group.
type Handler func(ctx context.Context, payload *ListingsScrapedPayload) error

type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
	Count  int64
	Block  time.Duration
}

// Consumer reads relayed listing events from a Redis stream with a
// consumer group.
type Consumer struct {
	redis   StreamReader
	handler Handler
	cfg     ConsumerConfig
	logger  *slog.Logger
}

func NewConsumer(redisClient StreamReader, handler Handler, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = database.ListingsStream
	}
	if cfg.Group == "" {
		cfg.Group = "listings-consumer-group"
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}

	return &Consumer{
		redis:   redisClient,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("component", "consumer"),
	}
}

// Run creates the group if needed and consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// poll reads one batch and returns how many messages were acknowledged.
func (c *Consumer) poll(ctx context.Context) (int, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := c.processMessage(ctx, message); err != nil {
				c.logger.Error("failed to process message", "id", message.ID, "error", err)
				continue
			}

			if err := c.redis.XAck(ctx, c.cfg.Stream, c.cfg.Group, message.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", message.ID, "error", err)
				continue
			}
			acked++
		}
	}
	return acked, nil
}

// processMessage hands LISTINGS_SCRAPED events to the handler. Other event
// types are acknowledged without processing.
func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(EventTypeListingsScraped) {
		return nil
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("missing data in event")
	}

	var envelope database.StreamEnvelope
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	if envelope.Type != string(EventTypeListingsScraped) {
		return fmt.Errorf("envelope type %q does not match event_type %q", envelope.Type, eventType)
	}

	var payload ListingsScrapedPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	c.logger.Debug("processing event",
		"message_id", msg.ID,
		"event_id", payload.EventID,
		"job_id", payload.JobID,
		"attempt", envelope.Attempt,
	)

	return c.handler(ctx, &payload)
}
