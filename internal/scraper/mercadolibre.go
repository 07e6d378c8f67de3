package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/maltedev/marketplace-scraper/internal/parser"
	"github.com/playwright-community/playwright-go"
)

const mercadoLibrePerPage = 50

type MercadoLibre struct {
	Country string
	// ShippingFilter applies the "full" fulfillment filter after loading.
	ShippingFilter bool
	parser         *parser.MercadoLibreParser
}

func NewMercadoLibre(country string) *MercadoLibre {
	country = normalizeCountry(country)
	return &MercadoLibre{
		Country: country,
		parser:  &parser.MercadoLibreParser{Country: country},
	}
}

func (m *MercadoLibre) Name() string { return parser.MercadoLibre }

func (m *MercadoLibre) Parser() parser.ListingParser { return m.parser }

func (m *MercadoLibre) baseURL() string {
	return "https://listado.mercadolibre.com." + m.Country
}

// SearchURL uses the plain listing path for the first page. Later pages
// go through the category URL and first applied filter seen on page one
// when those are known.
func (m *MercadoLibre) SearchURL(query string, page int, state SearchState) string {
	encoded := url.QueryEscape(query)
	if page <= 1 {
		return m.baseURL() + "/" + encoded
	}

	offset := (page-1)*mercadoLibrePerPage + 1
	base := m.baseURL()
	if state.Category.CategoryURL != "" {
		base = strings.TrimRight(state.Category.CategoryURL, "/")
	}

	filterPath := ""
	if len(state.Filters) > 0 {
		filterPath = "/" + strings.Trim(state.Filters[0], "/")
	}

	return fmt.Sprintf("%s%s/%s_Desde_%d_NoIndex_True", base, filterPath, encoded, offset)
}

func (m *MercadoLibre) Prepare(page playwright.Page) error {
	if waitVisible(page, `text="Agregar ubicación"`, 5000) == nil {
		clickIfVisible(page, `text="Más tarde"`, 2000)
	}

	if m.ShippingFilter {
		clickIfVisible(page, "#shipping_highlighted_fulfillment", 10000)
	}

	if err := waitVisible(page, "li.ui-search-layout__item", 15000); err != nil {
		return fmt.Errorf("listing did not load: %w", err)
	}
	return nil
}
