package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/models"
)

const (
	StatusNew          = "new"
	StatusSeen         = "seen"
	StatusPriceChanged = "price_changed"
)

// Listing is what the index remembers about one product URL.
type Listing struct {
	Marketplace string    `json:"marketplace"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	LastPrice   *float64  `json:"last_price"`
	Status      string    `json:"status"`
	TimesSeen   int       `json:"times_seen"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// ListingIndex is a JSON file of every listing seen across runs.
type ListingIndex struct {
	mu       sync.RWMutex
	listings map[string]*Listing
	filename string
}

type MarkResult struct {
	New          int
	Seen         int
	PriceChanged int
	Skipped      int
}

func NewListingIndex(filename string) (*ListingIndex, error) {
	li := &ListingIndex{
		listings: make(map[string]*Listing),
		filename: filename,
	}

	if err := li.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return li, nil
}

func listingKey(marketplace, url string) string {
	return marketplace + "|" + url
}

// MarkSeen records a batch of scraped products and persists the index.
// Products without a URL cannot be tracked and are skipped.
func (li *ListingIndex) MarkSeen(products []*models.Product) (MarkResult, error) {
	li.mu.Lock()
	defer li.mu.Unlock()

	var result MarkResult
	now := time.Now()

	for _, p := range products {
		if p.URL == "" {
			result.Skipped++
			continue
		}

		key := listingKey(p.Marketplace, p.URL)
		existing, ok := li.listings[key]
		if !ok {
			li.listings[key] = &Listing{
				Marketplace: p.Marketplace,
				URL:         p.URL,
				Title:       p.Title,
				LastPrice:   p.Price,
				Status:      StatusNew,
				TimesSeen:   1,
				FirstSeen:   now,
				LastSeen:    now,
			}
			result.New++
			continue
		}

		existing.TimesSeen++
		existing.LastSeen = now
		existing.Title = p.Title
		if priceChanged(existing.LastPrice, p.Price) {
			existing.Status = StatusPriceChanged
			result.PriceChanged++
		} else {
			existing.Status = StatusSeen
			result.Seen++
		}
		existing.LastPrice = p.Price
	}

	return result, li.save()
}

func priceChanged(before, after *float64) bool {
	if before == nil || after == nil {
		return false
	}
	return *before != *after
}

func (li *ListingIndex) Get(marketplace, url string) (*Listing, bool) {
	li.mu.RLock()
	defer li.mu.RUnlock()

	listing, exists := li.listings[listingKey(marketplace, url)]
	return listing, exists
}

// GetStats counts listings per status plus a "total".
func (li *ListingIndex) GetStats() map[string]int {
	li.mu.RLock()
	defer li.mu.RUnlock()

	stats := make(map[string]int)
	for _, listing := range li.listings {
		stats[listing.Status]++
	}
	stats["total"] = len(li.listings)
	return stats
}

func (li *ListingIndex) save() error {
	data, err := json.MarshalIndent(li.listings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode listing index: %w", err)
	}

	tmpFile := li.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write listing index: %w", err)
	}

	return os.Rename(tmpFile, li.filename)
}

func (li *ListingIndex) Load() error {
	data, err := os.ReadFile(li.filename)
	if err != nil {
		return err
	}

	var listings map[string]*Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return fmt.Errorf("failed to decode listing index: %w", err)
	}
	if listings == nil {
		listings = make(map[string]*Listing)
	}
	li.listings = listings
	return nil
}
