package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/marketplace-scraper/internal/browser"
	"github.com/maltedev/marketplace-scraper/internal/config"
	"github.com/maltedev/marketplace-scraper/internal/database"
	"github.com/maltedev/marketplace-scraper/internal/export"
	"github.com/maltedev/marketplace-scraper/internal/scraper"
	"github.com/maltedev/marketplace-scraper/internal/storage"
)

func browserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.UserAgents = cfg.Scraper.UserAgents
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.Proxy
	opts.Mobile = cfg.Browser.Mobile
	opts.Device = cfg.Browser.Device
	if cfg.Browser.Mobile {
		opts.UserAgents = cfg.Scraper.MobileUserAgents
	}
	return opts
}

// newRunner starts the browser and returns a runner rendering pages with
// it. The caller closes the browser.
func newRunner(cfg *config.Config, logger *slog.Logger) (*scraper.Runner, *browser.Browser, error) {
	b, err := browser.New(browserOptions(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	fetcher := browser.NewFetcher(b, browser.FetcherOptions{
		Retries:  cfg.Scraper.MaxRetries,
		Settle:   cfg.Scraper.PageSettle,
		Scroll:   true,
		Humanize: true,
	}, logger)

	runner := scraper.NewRunner(fetcher, scraper.RunnerOptions{
		PageDelayMin: cfg.Scraper.PageDelayMin,
		PageDelayMax: cfg.Scraper.PageDelayMax,
	}, logger)

	return runner, b, nil
}

// openDatabase connects and migrates when the database is enabled. It
// returns nil otherwise.
func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	if !cfg.Database.Enabled {
		return nil, nil
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("database ready", "host", cfg.Database.Host, "name", cfg.Database.Name)
	return db, nil
}

func newExporter(cfg *config.Config, dir string, logger *slog.Logger) *export.Exporter {
	delimiter := ','
	if r := []rune(cfg.Export.CSVDelimiter); len(r) == 1 {
		delimiter = r[0]
	}
	return export.New(dir, export.Options{
		Delimiter:  delimiter,
		JSONIndent: cfg.Export.JSONIndent,
	}, logger)
}

// openIndex returns nil when no index file is configured.
func openIndex(path string) (*storage.ListingIndex, error) {
	if path == "" {
		return nil, nil
	}
	idx, err := storage.NewListingIndex(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing index: %w", err)
	}
	return idx, nil
}
