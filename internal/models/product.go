package models

import (
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	DefaultCurrency = "USD"

	// descriptionLimit caps descriptions in exported records.
	descriptionLimit = 200
)

// Product is a single listing as read off a marketplace search page.
// Numeric fields are nil when the page did not show a usable value.
type Product struct {
	Title          string    `json:"title"`
	Price          *float64  `json:"price"`
	OriginalPrice  *float64  `json:"original_price"`
	Currency       string    `json:"currency"`
	URL            string    `json:"url"`
	ImageURL       string    `json:"image_url"`
	Rating         *float64  `json:"rating"`
	ReviewsCount   *int64    `json:"reviews_count"`
	Seller         string    `json:"seller"`
	Availability   string    `json:"availability"`
	Description    string    `json:"description"`
	Marketplace    string    `json:"marketplace"`
	Brand          string    `json:"brand"`
	ParentCategory string    `json:"parent_category"`
	Category       string    `json:"category"`
	Category2      string    `json:"category2"`
	FreeShipping   bool      `json:"free_shipping"`
	Discount       string    `json:"discount,omitempty"`
	ScrapedAt      time.Time `json:"scraped_at"`
}

func NewProduct(title string) *Product {
	return &Product{
		Title:     title,
		Currency:  DefaultCurrency,
		ScrapedAt: time.Now(),
	}
}

// PriceInfo returns the price pair of the product.
func (p *Product) PriceInfo() PriceInfo {
	return PriceInfo{
		Original: p.OriginalPrice,
		Current:  p.Price,
		Discount: p.Discount,
	}
}

// ApplyCategory copies the resolved category levels onto the product.
func (p *Product) ApplyCategory(c CategoryInfo) {
	p.ParentCategory = c.ParentCategory
	p.Category = c.Category
	p.Category2 = c.Category2
}

func (p *Product) Validate() []string {
	var errors []string

	if p.Title == "" {
		errors = append(errors, "Title is required")
	}

	if p.Price != nil && *p.Price < 0 {
		errors = append(errors, "Price must not be negative")
	}

	if p.OriginalPrice != nil && *p.OriginalPrice < 0 {
		errors = append(errors, "Original price must not be negative")
	}

	if p.Marketplace == "" {
		errors = append(errors, "Marketplace is required")
	}

	return errors
}

// Record is the flat export view of a product.
type Record struct {
	Title          string   `json:"title" yaml:"title"`
	Price          *float64 `json:"price" yaml:"price"`
	Brand          string   `json:"brand" yaml:"brand"`
	OriginalPrice  *float64 `json:"original_price" yaml:"original_price"`
	Currency       string   `json:"currency" yaml:"currency"`
	URL            string   `json:"url" yaml:"url"`
	ImageURL       string   `json:"image_url" yaml:"image_url"`
	Rating         *float64 `json:"rating" yaml:"rating"`
	ReviewsCount   *int64   `json:"reviews_count" yaml:"reviews_count"`
	Seller         string   `json:"seller" yaml:"seller"`
	Availability   string   `json:"availability" yaml:"availability"`
	Description    string   `json:"description" yaml:"description"`
	Marketplace    string   `json:"marketplace" yaml:"marketplace"`
	ParentCategory string   `json:"parent_category" yaml:"parent_category"`
	Category       string   `json:"category" yaml:"category"`
	Category2      string   `json:"category2" yaml:"category2"`
	FreeShipping   bool     `json:"free_shipping" yaml:"free_shipping"`
	ScrapedAt      string   `json:"scraped_at" yaml:"scraped_at"`
}

// RecordColumns is the column order used by tabular exports.
var RecordColumns = []string{
	"title", "price", "brand", "original_price", "currency", "url", "image_url",
	"rating", "reviews_count", "seller", "availability", "description",
	"marketplace", "parent_category", "category", "category2", "free_shipping",
	"scraped_at",
}

func (p *Product) Record() Record {
	return Record{
		Title:          p.Title,
		Price:          p.Price,
		Brand:          p.Brand,
		OriginalPrice:  p.OriginalPrice,
		Currency:       p.Currency,
		URL:            p.URL,
		ImageURL:       p.ImageURL,
		Rating:         p.Rating,
		ReviewsCount:   p.ReviewsCount,
		Seller:         p.Seller,
		Availability:   p.Availability,
		Description:    truncate(p.Description, descriptionLimit),
		Marketplace:    p.Marketplace,
		ParentCategory: p.ParentCategory,
		Category:       p.Category,
		Category2:      p.Category2,
		FreeShipping:   p.FreeShipping,
		ScrapedAt:      p.ScrapedAt.Format(time.RFC3339),
	}
}

// Values renders the record in RecordColumns order. Unknown numbers become
// empty cells.
func (r Record) Values() []string {
	return []string{
		r.Title,
		formatFloat(r.Price),
		r.Brand,
		formatFloat(r.OriginalPrice),
		r.Currency,
		r.URL,
		r.ImageURL,
		formatFloat(r.Rating),
		formatInt(r.ReviewsCount),
		r.Seller,
		r.Availability,
		r.Description,
		r.Marketplace,
		r.ParentCategory,
		r.Category,
		r.Category2,
		strconv.FormatBool(r.FreeShipping),
		r.ScrapedAt,
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
