package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

const upsertListingQuery = `
	INSERT INTO marketplace_listings (
		marketplace, url, title, brand, seller,
		price, original_price, currency, discount,
		rating, reviews_count, free_shipping, image_url,
		parent_category, category, category2, scraped_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
	)
	ON CONFLICT (marketplace, url) DO UPDATE SET
		title = EXCLUDED.title,
		brand = EXCLUDED.brand,
		seller = EXCLUDED.seller,
		price = EXCLUDED.price,
		original_price = EXCLUDED.original_price,
		currency = EXCLUDED.currency,
		discount = EXCLUDED.discount,
		rating = EXCLUDED.rating,
		reviews_count = EXCLUDED.reviews_count,
		free_shipping = EXCLUDED.free_shipping,
		image_url = EXCLUDED.image_url,
		parent_category = EXCLUDED.parent_category,
		category = EXCLUDED.category,
		category2 = EXCLUDED.category2,
		scraped_at = EXCLUDED.scraped_at,
		times_seen = marketplace_listings.times_seen + 1`

// UpsertListings stores products keyed by (marketplace, url) in a single
// transaction and returns how many rows were written.
func (db *DB) UpsertListings(ctx context.Context, products []*models.Product) (int, error) {
	var written int
	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		n, err := UpsertListingsWithTx(ctx, tx, products)
		written = n
		return err
	})
	return written, err
}

// UpsertListingsWithTx queues every storable product in one batch.
// Products without a URL have no key and are left out.
func UpsertListingsWithTx(ctx context.Context, tx pgx.Tx, products []*models.Product) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		if !storable(p) {
			continue
		}
		batch.Queue(upsertListingQuery, listingArgs(p)...)
	}

	if batch.Len() == 0 {
		return 0, nil
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return i, fmt.Errorf("failed to upsert listing: %w", err)
		}
	}

	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close listing batch: %w", err)
	}

	return batch.Len(), nil
}

func storable(p *models.Product) bool {
	return p != nil && p.URL != "" && p.Marketplace != "" && p.Title != ""
}

func listingArgs(p *models.Product) []any {
	return []any{
		p.Marketplace, p.URL, p.Title, nullable(p.Brand), nullable(p.Seller),
		p.Price, p.OriginalPrice, p.Currency, nullable(p.Discount),
		p.Rating, p.ReviewsCount, p.FreeShipping, nullable(p.ImageURL),
		nullable(p.ParentCategory), nullable(p.Category), nullable(p.Category2),
		p.ScrapedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CountListings returns the number of stored listings per marketplace.
func (db *DB) CountListings(ctx context.Context) (map[string]int64, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT marketplace, COUNT(*) FROM marketplace_listings GROUP BY marketplace")
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var marketplace string
		var count int64
		if err := rows.Scan(&marketplace, &count); err != nil {
			return nil, fmt.Errorf("failed to scan listing count: %w", err)
		}
		counts[marketplace] = count
	}

	return counts, rows.Err()
}
