package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/marketplace-scraper/internal/database"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

type EventType string

const (
	// EventTypeListingsScraped is published once per finished search job.
	EventTypeListingsScraped EventType = "LISTINGS_SCRAPED"

	aggregateType = "search_job"
	sourceName    = "scraper"
)

type ListingsScrapedPayload struct {
	EventID        string               `json:"event_id"`
	EventType      string               `json:"event_type"`
	Timestamp      time.Time            `json:"timestamp"`
	JobID          string               `json:"job_id"`
	Query          string               `json:"query"`
	Country        string               `json:"country"`
	TotalProducts  int                  `json:"total_products"`
	StoredProducts int                  `json:"stored_products"`
	Marketplaces   []MarketplaceSummary `json:"marketplaces"`
	Source         string               `json:"source"`
}

type MarketplaceSummary struct {
	Marketplace string   `json:"marketplace"`
	Products    int      `json:"products"`
	WithPrice   int      `json:"with_price"`
	MinPrice    *float64 `json:"min_price,omitempty"`
	MaxPrice    *float64 `json:"max_price,omitempty"`
}

// Transactor runs work inside one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

type upsertFunc func(ctx context.Context, tx pgx.Tx, products []*models.Product) (int, error)

// Publisher stores listings and their event in the same transaction.
type Publisher struct {
	db     Transactor
	outbox OutboxWriter
	upsert upsertFunc
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		upsert: database.UpsertListingsWithTx,
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishListingsScraped upserts the job's products and queues a
// LISTINGS_SCRAPED event for the relay. Nothing is written if either
// step fails.
func (p *Publisher) PublishListingsScraped(ctx context.Context, jobID, query, country string, products []*models.Product) (*ListingsScrapedPayload, error) {
	payload := &ListingsScrapedPayload{
		EventID:       uuid.New().String(),
		EventType:     string(EventTypeListingsScraped),
		Timestamp:     time.Now(),
		JobID:         jobID,
		Query:         query,
		Country:       country,
		TotalProducts: len(products),
		Marketplaces:  Summarize(products),
		Source:        sourceName,
	}

	err := p.db.Transaction(ctx, func(tx pgx.Tx) error {
		stored, err := p.upsert(ctx, tx, products)
		if err != nil {
			return err
		}
		payload.StoredProducts = stored

		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		return p.outbox.InsertWithTx(ctx, tx, &database.OutboxEvent{
			AggregateType: aggregateType,
			AggregateID:   jobID,
			EventType:     payload.EventType,
			Payload:       data,
			TargetStream:  database.ListingsStream,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"job_id", jobID,
		"stored", payload.StoredProducts,
	)

	return payload, nil
}

// Summarize groups products by marketplace, sorted by name.
func Summarize(products []*models.Product) []MarketplaceSummary {
	byName := make(map[string]*MarketplaceSummary)
	for _, product := range products {
		s, ok := byName[product.Marketplace]
		if !ok {
			s = &MarketplaceSummary{Marketplace: product.Marketplace}
			byName[product.Marketplace] = s
		}
		s.Products++

		if product.Price == nil {
			continue
		}
		s.WithPrice++
		price := *product.Price
		if s.MinPrice == nil || price < *s.MinPrice {
			s.MinPrice = &price
		}
		if s.MaxPrice == nil || price > *s.MaxPrice {
			s.MaxPrice = &price
		}
	}

	summaries := make([]MarketplaceSummary, 0, len(byName))
	for _, s := range byName {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Marketplace < summaries[j].Marketplace
	})
	return summaries
}
