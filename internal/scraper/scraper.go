package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/marketplace-scraper/internal/models"
	"github.com/maltedev/marketplace-scraper/internal/parser"
	"github.com/playwright-community/playwright-go"
)

var (
	ErrUnsupportedMarketplace = parser.ErrUnsupportedMarketplace
	ErrAllPagesFailed         = errors.New("every page failed")
)

// PageSource renders a URL and returns its HTML. prepare runs on the
// loaded page before the HTML is read.
type PageSource interface {
	Fetch(ctx context.Context, url string, prepare func(playwright.Page) error) (string, error)
}

// SearchState is what earlier pages of a search revealed about the
// listing; some marketplaces build later page URLs from it.
type SearchState struct {
	Category models.CategoryInfo
	Filters  []string
}

type Marketplace interface {
	Name() string
	SearchURL(query string, page int, state SearchState) string
	Prepare(page playwright.Page) error
	Parser() parser.ListingParser
}

// Names lists the marketplace keys accepted by New.
var Names = []string{"mercadolibre", "falabella", "megatienda"}

// New returns the marketplace registered under name (case-insensitive).
func New(name, country string) (Marketplace, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mercadolibre":
		return NewMercadoLibre(country), nil
	case "falabella":
		return NewFalabella(country), nil
	case "megatienda", "megatiendas":
		return NewMegatienda(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMarketplace, name)
	}
}

func waitVisible(page playwright.Page, selector string, timeoutMs float64) error {
	_, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(timeoutMs),
	})
	return err
}

func clickIfVisible(page playwright.Page, selector string, timeoutMs float64) bool {
	loc := page.Locator(selector).First()
	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(timeoutMs),
	})
	if err != nil {
		return false
	}
	return loc.Click() == nil
}

func normalizeCountry(country string) string {
	country = strings.ToLower(strings.TrimSpace(country))
	if country == "" {
		return "co"
	}
	return country
}
