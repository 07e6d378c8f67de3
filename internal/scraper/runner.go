package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/models"
	"github.com/maltedev/marketplace-scraper/internal/ratelimit"
)

// Stats counts what one search did. Each search owns its own Stats.
type Stats struct {
	Pages             int `json:"pages"`
	PagesFailed       int `json:"pages_failed"`
	Products          int `json:"products"`
	ProductsWithPrice int `json:"products_with_price"`
}

type Result struct {
	Marketplace string              `json:"marketplace"`
	Query       string              `json:"query"`
	Products    []*models.Product   `json:"products"`
	Category    models.CategoryInfo `json:"category"`
	Stats       Stats               `json:"stats"`
}

type RunnerOptions struct {
	PageDelayMin time.Duration
	PageDelayMax time.Duration
}

// Runner walks the result pages of a search on one marketplace.
type Runner struct {
	source PageSource
	opts   RunnerOptions
	logger *slog.Logger
}

func NewRunner(source PageSource, opts RunnerOptions, logger *slog.Logger) *Runner {
	if opts.PageDelayMax < opts.PageDelayMin {
		opts.PageDelayMax = opts.PageDelayMin
	}
	return &Runner{
		source: source,
		opts:   opts,
		logger: logger.With("component", "runner"),
	}
}

// Search fetches up to maxPages pages. It stops early on a page without
// products or on the last page of the listing. A page that fails to load
// or parse is logged and skipped. ErrAllPagesFailed is returned when no
// page could be read; on cancellation ctx.Err() is returned together with
// whatever was collected so far.
func (r *Runner) Search(ctx context.Context, m Marketplace, query string, maxPages int) (*Result, error) {
	if maxPages < 1 {
		maxPages = 1
	}

	result := &Result{Marketplace: m.Name(), Query: query}
	limiter := ratelimit.NewAdaptiveRateLimiter(r.opts.PageDelayMin, r.opts.PageDelayMax)
	logger := r.logger.With("marketplace", m.Name(), "query", query)

	var state SearchState
	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		url := m.SearchURL(query, pageNum, state)
		logger.Info("fetching page", "page", pageNum, "url", url)

		html, err := r.source.Fetch(ctx, url, m.Prepare)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Stats.PagesFailed++
			limiter.RecordError()
			logger.Warn("page failed", "page", pageNum, "error", err)
			continue
		}

		page, err := m.Parser().ParseListings(html)
		if err != nil {
			result.Stats.PagesFailed++
			limiter.RecordError()
			logger.Warn("page could not be parsed", "page", pageNum, "error", err)
			continue
		}
		limiter.RecordSuccess()
		result.Stats.Pages++

		if state.Category.Breadcrumb == nil && len(page.Category.Breadcrumb) > 0 {
			state.Category = page.Category
			result.Category = page.Category
		}
		if state.Filters == nil && len(page.Filters) > 0 {
			state.Filters = page.Filters
		}

		if len(page.Products) == 0 {
			logger.Info("no products on page, stopping", "page", pageNum)
			break
		}

		for _, product := range page.Products {
			product.Marketplace = m.Name()
			if product.Price != nil {
				result.Stats.ProductsWithPrice++
			}
		}
		result.Products = append(result.Products, page.Products...)
		result.Stats.Products += len(page.Products)

		logger.Info("page scraped", "page", pageNum, "products", len(page.Products))

		if page.Paginated && !page.HasNext {
			logger.Info("last page reached", "page", pageNum)
			break
		}
	}

	if result.Stats.Pages == 0 && result.Stats.PagesFailed > 0 {
		return result, ErrAllPagesFailed
	}
	return result, nil
}
