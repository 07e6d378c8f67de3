package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/maltedev/marketplace-scraper/internal/models"
)

const cheapestLimit = 5

type MarketplaceCount struct {
	Marketplace string `json:"marketplace"`
	Products    int    `json:"products"`
	WithPrice   int    `json:"with_price"`
}

type Summary struct {
	Total        int                `json:"total"`
	WithPrice    int                `json:"with_price"`
	Marketplaces []MarketplaceCount `json:"marketplaces"`
	Cheapest     []*models.Product  `json:"cheapest"`
}

// Summarize counts products per marketplace and picks the cheapest
// priced ones. Products without a price are never ranked.
func Summarize(products []*models.Product) Summary {
	s := Summary{Total: len(products)}

	groups := GroupByMarketplace(products)
	for _, name := range sortedKeys(groups) {
		count := MarketplaceCount{Marketplace: name, Products: len(groups[name])}
		for _, p := range groups[name] {
			if p.Price != nil {
				count.WithPrice++
			}
		}
		s.WithPrice += count.WithPrice
		s.Marketplaces = append(s.Marketplaces, count)
	}

	priced := make([]*models.Product, 0, s.WithPrice)
	for _, p := range products {
		if p.Price != nil {
			priced = append(priced, p)
		}
	}
	sort.SliceStable(priced, func(i, j int) bool {
		return *priced[i].Price < *priced[j].Price
	})
	if len(priced) > cheapestLimit {
		priced = priced[:cheapestLimit]
	}
	s.Cheapest = priced

	return s
}

// Print writes a human readable summary.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Total products: %d (%d with price)\n", s.Total, s.WithPrice)
	for _, m := range s.Marketplaces {
		fmt.Fprintf(w, "  %-14s %5d products, %5d with price\n", m.Marketplace, m.Products, m.WithPrice)
	}

	if len(s.Cheapest) == 0 {
		return
	}
	fmt.Fprintln(w, "Cheapest:")
	for i, p := range s.Cheapest {
		fmt.Fprintf(w, "  %d. %s | %s %.2f | %s\n", i+1, p.Title, p.Currency, *p.Price, p.Marketplace)
	}
}
