package parser

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

var mercadoLibreFilterSelectors = []string{
	"section.ui-search-applied-filters .andes-tag__label",
	".ui-search-applied-filters .ui-search-applied-filter-name",
	`[data-testid="applied-filters"] .andes-tag__label`,
}

// MercadoLibreParser reads listado.mercadolibre.com.<country> result pages.
type MercadoLibreParser struct {
	Country string
}

func (p *MercadoLibreParser) ParseListings(html string) (*Page, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Breadcrumb: p.extractBreadcrumb(doc),
		Filters:    p.extractFilters(doc),
		Paginated:  doc.Find(".andes-pagination").Length() > 0,
		HasNext:    doc.Find("li.andes-pagination__button--next:not(.andes-pagination__button--disabled) a").Length() > 0,
	}
	page.Category = models.FromBreadcrumb(page.Breadcrumb)

	if total, ok := ExtractInteger(doc.Find(".ui-search-search-result__quantity-results").First().Text()); ok {
		page.TotalResults = &total
	}

	doc.Find("li.ui-search-layout__item").Each(func(_ int, item *goquery.Selection) {
		if product := p.extractProduct(item); product != nil {
			product.ApplyCategory(page.Category)
			page.Products = append(page.Products, product)
		}
	})

	return page, nil
}

// extractProduct returns nil for items without title, price or link.
func (p *MercadoLibreParser) extractProduct(item *goquery.Selection) *models.Product {
	title := text(item.Find("h3").First())
	link, _ := item.Find("a.poly-component__title").First().Attr("href")

	priceEl := item.Find(".poly-price__current span.andes-money-amount--cents-superscript").First()
	if priceEl.Length() == 0 {
		priceEl = item.Find("span.andes-money-amount.andes-money-amount--cents-superscript").First()
	}

	if title == "" || link == "" || priceEl.Length() == 0 {
		return nil
	}

	product := models.NewProduct(title)
	product.Marketplace = MercadoLibre
	product.URL = strings.TrimSpace(link)
	product.Currency = p.currency()
	product.Price = moneyAmount(priceEl)
	product.OriginalPrice = moneyAmount(item.Find("s.andes-money-amount--previous").First())
	product.Brand = text(item.Find("span.poly-component__brand").First())
	product.Seller = strings.TrimPrefix(text(item.Find(".poly-component__seller").First()), "Por ")
	product.ImageURL = imageSource(item.Find("img.poly-component__picture").First())
	product.Discount = text(item.Find(".andes-money-amount__discount").First())
	product.Rating = optional(ExtractNumber(item.Find(".poly-reviews__rating").First().Text()))
	product.ReviewsCount = optional(ExtractInteger(item.Find(".poly-reviews__total").First().Text()))
	product.FreeShipping = containsFold(item, ".poly-component__shipping", "gratis")

	return product
}

func (p *MercadoLibreParser) currency() string {
	if p.Country == "co" {
		return "COP"
	}
	return models.DefaultCurrency
}

// moneyAmount reads an andes-money-amount element. The fraction span always
// carries the integer part, so its separators are grouping only; cents sit
// in a separate superscript span.
func moneyAmount(s *goquery.Selection) *float64 {
	if s.Length() == 0 {
		return nil
	}

	fraction := s.Find(".andes-money-amount__fraction").First()
	if fraction.Length() == 0 {
		return optional(ParsePrice(s.Text()))
	}

	whole, ok := ExtractInteger(fraction.Text())
	if !ok {
		return nil
	}

	amount := strconv.FormatInt(whole, 10)
	if cents := strings.TrimSpace(s.Find(".andes-money-amount__cents").First().Text()); cents != "" {
		amount += "." + cents
	}
	return optional(ParsePrice(amount))
}

func (p *MercadoLibreParser) extractBreadcrumb(doc *goquery.Document) []models.BreadcrumbItem {
	var items []models.BreadcrumbItem

	doc.Find("ol.andes-breadcrumb li.andes-breadcrumb__item").Each(func(_ int, li *goquery.Selection) {
		link := li.Find("a.andes-breadcrumb__link").First()
		if link.Length() == 0 {
			return
		}
		name := text(link.Find(`span[itemprop="name"]`).First())
		if name == "" {
			return
		}

		href, _ := link.Attr("href")
		position := 0
		if content, ok := li.Find(`meta[itemprop="position"]`).First().Attr("content"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(content)); err == nil {
				position = n
			}
		}

		items = append(items, models.BreadcrumbItem{Name: name, URL: href, Position: position})
	})

	return items
}

func (p *MercadoLibreParser) extractFilters(doc *goquery.Document) []string {
	for _, selector := range mercadoLibreFilterSelectors {
		if filters := uniqueTexts(doc.Find(selector)); len(filters) > 0 {
			return filters
		}
	}
	return nil
}
