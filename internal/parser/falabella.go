package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

var (
	falabellaBreadcrumbSelectors = []string{
		".breadcrumb",
		`[data-testid="breadcrumb"]`,
		".breadcrumb-container",
		`nav[aria-label="breadcrumb"]`,
		".navigation-breadcrumb",
	}

	falabellaNextSelectors = []string{
		"#testId-pagination-bottom-arrow-right:not([disabled])",
		"#testId-pagination-top-arrow-right:not([disabled])",
		`[data-testid="next-page"]:not([disabled])`,
	}

	breadcrumbSeparators = map[string]bool{">": true, "/": true, "|": true, "»": true}
)

// FalabellaParser reads falabella.com.<country> search pages.
type FalabellaParser struct {
	Country string
}

func (p *FalabellaParser) baseURL() string {
	country := p.Country
	if country == "" {
		country = "co"
	}
	return fmt.Sprintf("https://www.falabella.com.%s", country)
}

func (p *FalabellaParser) ParseListings(html string) (*Page, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Breadcrumb: breadcrumbFromContainer(doc.Selection, falabellaBreadcrumbSelectors, p.baseURL()),
		Paginated:  doc.Find(`[id^="testId-pagination"], [data-testid="pagination"]`).Length() > 0,
		HasNext:    firstMatch(doc.Selection, falabellaNextSelectors) != nil,
	}
	page.Category = models.FromBreadcrumb(page.Breadcrumb)

	if total, ok := ExtractInteger(firstText(doc.Selection, []string{"#search_numResults", `[data-testid="search-results-count"]`})); ok {
		page.TotalResults = &total
	}

	doc.Find(".grid-pod").Each(func(_ int, pod *goquery.Selection) {
		if product := p.extractProduct(pod); product != nil {
			product.ApplyCategory(page.Category)
			page.Products = append(page.Products, product)
		}
	})

	return page, nil
}

// extractProduct returns nil for pods without a title. Pods without a
// readable price are kept.
func (p *FalabellaParser) extractProduct(pod *goquery.Selection) *models.Product {
	title := text(pod.Find("b.pod-subTitle").First())
	if title == "" {
		return nil
	}

	product := models.NewProduct(title)
	product.Marketplace = Falabella
	product.Currency = "COP"
	product.Brand = text(pod.Find("b.title-rebrand").First())
	product.Seller = text(pod.Find("b.pod-sellerText").First())
	product.ImageURL = imageSource(pod.Find("div.pod-head img").First())
	product.FreeShipping = containsFold(pod, "span", "gratis")

	if link, ok := pod.Find("a.pod-link").First().Attr("href"); ok && link != "" {
		product.URL = MakeAbsoluteURL(p.baseURL(), strings.TrimSpace(link))
	}

	price := falabellaPrices(pod)
	product.Price = price.Current
	product.OriginalPrice = price.Original
	product.Discount = price.Discount

	return product
}

// falabellaPrices reads the price data attributes. The internet price wins
// over the event price.
func falabellaPrices(pod *goquery.Selection) models.PriceInfo {
	var info models.PriceInfo

	for _, attr := range []string{"data-internet-price", "data-event-price"} {
		if v, ok := pod.Find("li[" + attr + "]").First().Attr(attr); ok {
			if info.Current = optional(ParsePrice(v)); info.Current != nil {
				break
			}
		}
	}

	if v, ok := pod.Find("li[data-normal-price]").First().Attr("data-normal-price"); ok {
		info.Original = optional(ParsePrice(v))
	}

	info.Discount = text(pod.Find(".discount-badge").First())
	return info
}

// breadcrumbFromContainer numbers the leaf links and labels of the first
// matching breadcrumb container, skipping separators.
func breadcrumbFromContainer(root *goquery.Selection, selectors []string, base string) []models.BreadcrumbItem {
	container := firstMatch(root, selectors)
	if container == nil {
		return nil
	}

	var items []models.BreadcrumbItem
	position := 1
	container.Find("a, span, li").Each(func(_ int, el *goquery.Selection) {
		if el.Find("a, span, li").Length() > 0 {
			return
		}
		name := text(el)
		if name == "" || breadcrumbSeparators[name] {
			return
		}

		url := ""
		if goquery.NodeName(el) == "a" {
			if href, ok := el.Attr("href"); ok && href != "" {
				url = MakeAbsoluteURL(base, href)
			}
		} else if parent := el.ParentFiltered("a"); parent.Length() > 0 {
			if href, ok := parent.Attr("href"); ok && href != "" {
				url = MakeAbsoluteURL(base, href)
			}
		}

		items = append(items, models.BreadcrumbItem{Name: name, URL: url, Position: position})
		position++
	})

	return items
}
