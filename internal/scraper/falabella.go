package scraper

import (
	"fmt"
	"net/url"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/browser"
	"github.com/maltedev/marketplace-scraper/internal/parser"
	"github.com/playwright-community/playwright-go"
)

var falabellaPopups = []string{
	`button[aria-label="Cerrar"]`,
	".modal-close",
	".popup-close",
	`[data-testid="modal-close"]`,
	`button:has-text("Cerrar")`,
	`button:has-text("×")`,
}

type Falabella struct {
	Country string
	parser  *parser.FalabellaParser
}

func NewFalabella(country string) *Falabella {
	country = normalizeCountry(country)
	return &Falabella{
		Country: country,
		parser:  &parser.FalabellaParser{Country: country},
	}
}

func (f *Falabella) Name() string { return parser.Falabella }

func (f *Falabella) Parser() parser.ListingParser { return f.parser }

func (f *Falabella) SearchURL(query string, page int, _ SearchState) string {
	u := fmt.Sprintf("https://www.falabella.com.%s/falabella-%s/search?Ntt=%s",
		f.Country, f.Country, url.QueryEscape(query))
	if page > 1 {
		u += fmt.Sprintf("&page=%d", page)
	}
	return u
}

func (f *Falabella) Prepare(page playwright.Page) error {
	browser.DismissPopups(page, falabellaPopups, 2*time.Second)

	if err := waitVisible(page, ".grid-pod", 15000); err != nil {
		return fmt.Errorf("listing did not load: %w", err)
	}
	return nil
}
