package parser

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

const MegatiendaBaseURL = "https://www.megatiendas.co"

// The storefront runs on VTEX and its markup changes between themes, so each
// field is looked up through a list of selectors. The first one that yields
// a value wins.
var megatiendaSelectors = struct {
	items, title, current, original, discount, link, image, brand, shipping []string
	breadcrumb, filters, total, next                                        []string
}{
	items: []string{
		".product-item", ".product-card", ".product-container", ".shelf-item",
		".product-tile", `[data-testid="product-item"]`, ".vtex-product-summary",
		".product-summary", ".vtex-product-summary-2-x-container",
	},
	title: []string{
		".product-name", ".product-title", "h3.product-name",
		".vtex-product-summary__product-name", ".vtex-product-summary-2-x-productBrand",
		".product-summary-name", `[data-testid="product-name"]`, "a.product-name",
		".shelf-item__name",
	},
	current: []string{
		".price-current", ".current-price", ".price-selling",
		".vtex-product-price__selling-price", ".vtex-product-price-1-x-sellingPriceValue",
		".product-price", `[data-testid="current-price"]`, ".shelf-item__price",
		".price-value", ".selling-price-value",
	},
	original: []string{
		".price-original", ".original-price", ".price-list",
		".vtex-product-price__list-price", ".vtex-product-price-1-x-listPriceValue",
		".list-price", `[data-testid="list-price"]`, ".old-price", ".price-was",
		".list-price-value",
	},
	discount: []string{
		".discount-badge", ".discount-percent", ".vtex-product-price__savings",
		".price-discount", `[data-testid="discount"]`, ".discount-label",
		".percentage-discount",
	},
	link: []string{
		"a.product-link", `a[href*="/p"]`, ".product-name a", ".product-title a",
		"a.shelf-item__link", ".vtex-product-summary a",
	},
	image: []string{
		".product-image img", ".product-img img", ".vtex-product-summary__image img",
		".shelf-item__image img", "img.product-image", `[data-testid="product-image"] img`,
	},
	brand: []string{
		".product-brand", ".brand-name", ".vtex-product-summary__brand",
		`[data-testid="product-brand"]`, ".shelf-item__brand",
	},
	shipping: []string{
		".free-shipping", ".envio-gratis", ".shipping-free", ".delivery-free",
		`[data-testid="free-shipping"]`,
	},
	breadcrumb: []string{
		".breadcrumb", `[data-testid="breadcrumb"]`, ".breadcrumb-container",
		`nav[aria-label="breadcrumb"]`, ".navigation-breadcrumb", ".vtex-breadcrumb",
		".breadcrumb-list",
	},
	filters: []string{
		".applied-filters .filter-tag", `[data-testid="applied-filter"]`,
		".active-filters .filter-item", ".selected-filters .tag",
		".vtex-search-result__selected-filters", ".filter-applied",
	},
	total: []string{
		`[data-testid="results-count"]`, ".results-count", ".total-results",
		".search-results-count", ".vtex-search-result__total-products",
		".products-found",
	},
	next: []string{
		`[data-testid="next-page"]:not([disabled])`, ".pagination-next:not(.disabled)",
		`a[aria-label="Siguiente"]`, ".next-page:not(.disabled)",
		".vtex-pagination__next:not(.disabled)", ".pagination .next:not(.disabled)",
	},
}

// MegatiendaParser reads megatiendas.co search pages.
type MegatiendaParser struct{}

func (p *MegatiendaParser) ParseListings(html string) (*Page, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}
	sel := megatiendaSelectors

	page := &Page{
		Breadcrumb: breadcrumbFromContainer(doc.Selection, sel.breadcrumb, MegatiendaBaseURL),
		Paginated:  doc.Find(".pagination, .vtex-pagination, [data-testid=\"pagination\"]").Length() > 0,
		HasNext:    firstMatch(doc.Selection, sel.next) != nil,
	}
	page.Category = models.FromBreadcrumb(page.Breadcrumb)

	for _, selector := range sel.filters {
		if filters := uniqueTexts(doc.Find(selector)); len(filters) > 0 {
			page.Filters = filters
			break
		}
	}

	for _, selector := range sel.total {
		if total, ok := ExtractInteger(doc.Find(selector).First().Text()); ok {
			page.TotalResults = &total
			break
		}
	}

	for _, selector := range sel.items {
		items := doc.Find(selector)
		if items.Length() == 0 {
			continue
		}
		items.Each(func(_ int, item *goquery.Selection) {
			if product := p.extractProduct(item); product != nil {
				product.ApplyCategory(page.Category)
				page.Products = append(page.Products, product)
			}
		})
		break
	}

	return page, nil
}

func (p *MegatiendaParser) extractProduct(item *goquery.Selection) *models.Product {
	sel := megatiendaSelectors

	title := firstText(item, sel.title)
	if title == "" {
		return nil
	}

	product := models.NewProduct(title)
	product.Marketplace = Megatienda
	product.Currency = "COP"
	product.Seller = "Megatiendas"
	product.Brand = firstText(item, sel.brand)
	product.Price = firstPrice(item, sel.current)
	product.OriginalPrice = firstPrice(item, sel.original)
	product.Discount = firstText(item, sel.discount)
	product.FreeShipping = firstMatch(item, sel.shipping) != nil || containsFold(item, "span", "gratis")

	if link := firstAttr(item, sel.link, "href"); link != "" {
		product.URL = MakeAbsoluteURL(MegatiendaBaseURL, link)
	}
	for _, selector := range sel.image {
		if src := imageSource(item.Find(selector).First()); src != "" {
			product.ImageURL = MakeAbsoluteURL(MegatiendaBaseURL, src)
			break
		}
	}

	return product
}
