package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

var ErrUnsupportedMarketplace = errors.New("unsupported marketplace")

// Marketplace names as they appear on exported products.
const (
	MercadoLibre = "MercadoLibre"
	Falabella    = "Falabella"
	Megatienda   = "Megatiendas"
)

// Page is everything read off one rendered search results page.
type Page struct {
	Products     []*models.Product
	Category     models.CategoryInfo
	Breadcrumb   []models.BreadcrumbItem
	Filters      []string
	TotalResults *int64

	// Paginated is set when the page rendered a pagination control at all;
	// HasNext is only meaningful in that case.
	Paginated bool
	HasNext   bool
}

// ListingParser turns a rendered search page into products.
type ListingParser interface {
	ParseListings(html string) (*Page, error)
}

// ForMarketplace returns the parser for a marketplace name (case-insensitive).
func ForMarketplace(name, country string) (ListingParser, error) {
	switch strings.ToLower(name) {
	case "mercadolibre":
		return &MercadoLibreParser{Country: country}, nil
	case "falabella":
		return &FalabellaParser{Country: country}, nil
	case "megatienda", "megatiendas":
		return &MegatiendaParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMarketplace, name)
	}
}

func newDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func text(s *goquery.Selection) string {
	return CleanText(s.Text())
}

// firstMatch returns the first selector in the list that matches inside s.
func firstMatch(s *goquery.Selection, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		if found := s.Find(selector).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// firstText returns the cleaned text of the first matching selector that is
// not blank.
func firstText(s *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		if t := text(s.Find(selector).First()); t != "" {
			return t
		}
	}
	return ""
}

func firstAttr(s *goquery.Selection, selectors []string, attr string) string {
	for _, selector := range selectors {
		if v, ok := s.Find(selector).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// firstPrice returns the first selector whose text resolves to a price.
func firstPrice(s *goquery.Selection, selectors []string) *float64 {
	for _, selector := range selectors {
		if v, ok := ParsePrice(s.Find(selector).First().Text()); ok {
			return &v
		}
	}
	return nil
}

// containsFold reports whether any element matched by selector has text
// containing needle, ignoring case.
func containsFold(s *goquery.Selection, selector, needle string) bool {
	needle = strings.ToLower(needle)
	found := false
	s.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(el.Text()), needle) {
			found = true
			return false
		}
		return true
	})
	return found
}

func imageSource(img *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src"} {
		if v, ok := img.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

func uniqueTexts(sel *goquery.Selection) []string {
	var out []string
	seen := make(map[string]bool)
	sel.Each(func(_ int, el *goquery.Selection) {
		t := text(el)
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	})
	return out
}
