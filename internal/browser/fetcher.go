package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

type FetcherOptions struct {
	Retries int
	// Settle is how long to wait after preparation for client-side
	// rendering to finish.
	Settle   time.Duration
	Scroll   bool
	Humanize bool
}

// Fetcher renders pages in a fresh browser context each, so every fetch
// carries its own user agent.
type Fetcher struct {
	browser *Browser
	opts    FetcherOptions
	logger  *slog.Logger
}

func NewFetcher(b *Browser, opts FetcherOptions, logger *slog.Logger) *Fetcher {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &Fetcher{
		browser: b,
		opts:    opts,
		logger:  logger.With("component", "fetcher"),
	}
}

// Fetch navigates to url, runs prepare on the loaded page and returns the
// rendered HTML.
func (f *Fetcher) Fetch(ctx context.Context, url string, prepare func(playwright.Page) error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bctx, err := f.browser.NewContext()
	if err != nil {
		return "", err
	}
	defer bctx.Close()

	page, err := f.browser.newPage(bctx)
	if err != nil {
		return "", err
	}
	defer page.Close()

	start := time.Now()
	if err := f.browser.NavigateWithRetry(page, url, f.opts.Retries); err != nil {
		return "", err
	}

	if prepare != nil {
		if err := prepare(page); err != nil {
			return "", fmt.Errorf("failed to prepare page: %w", err)
		}
	}

	if err := sleep(ctx, f.opts.Settle); err != nil {
		return "", err
	}

	if f.opts.Humanize {
		if err := HumanizeInteraction(page); err != nil {
			f.logger.Debug("humanize failed", "error", err)
		}
	}

	if f.opts.Scroll {
		if err := ScrollToBottom(page); err != nil {
			f.logger.Warn("scroll failed", "url", url, "error", err)
		}
	}

	html, err := Content(page)
	if err != nil {
		return "", err
	}

	f.logger.Debug("page fetched", "url", url, "bytes", len(html), "duration", time.Since(start))
	return html, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
