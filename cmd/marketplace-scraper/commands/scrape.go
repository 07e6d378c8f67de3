package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/marketplace-scraper/internal/events"
	"github.com/maltedev/marketplace-scraper/internal/export"
	"github.com/maltedev/marketplace-scraper/internal/inputs"
	"github.com/maltedev/marketplace-scraper/internal/models"
	"github.com/maltedev/marketplace-scraper/internal/scraper"
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [query]",
	Short: "Search marketplaces and export the listings",
	Long: `Search one or more marketplaces for a query and export every listing
found, with prices normalized to numbers.

Queries can also come from a text file, one per line. Lines starting
with '#' are ignored and Latin-1 files are decoded automatically.

Examples:
  marketplace-scraper scrape "nevera no frost" -p 2
  marketplace-scraper scrape --queries-file queries.txt -f jsonl
  marketplace-scraper scrape arroz -m megatienda --index listings.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	flags := scrapeCmd.Flags()
	flags.StringSliceP("marketplace", "m", nil, "marketplace(s) to search: mercadolibre, falabella, megatienda (default SCRAPER_MARKETPLACES)")
	flags.IntP("pages", "p", 0, "result pages per marketplace (default SCRAPER_MAX_PAGES)")
	flags.StringP("format", "f", "", "export format: csv, json, jsonl, yaml, xlsx (default EXPORT_FORMAT)")
	flags.StringP("output-dir", "o", "", "output directory (default EXPORT_OUTPUT_DIR)")
	flags.String("country", "", "two-letter country code (default SCRAPER_COUNTRY)")
	flags.Bool("by-marketplace", false, "write one file per marketplace")
	flags.String("queries-file", "", "read queries from a text file, one per line")
	flags.String("index", "", "listing index file used to flag new listings across runs (default EXPORT_INDEX_FILE)")
	flags.Bool("no-export", false, "print the summary only")
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	queries, err := scrapeQueries(cmd, args)
	if err != nil {
		logError("%v", err)
		return err
	}

	flags := cmd.Flags()
	marketplaces, _ := flags.GetStringSlice("marketplace")
	if len(marketplaces) == 0 {
		marketplaces = cfg.Scraper.Marketplaces
	}
	country, _ := flags.GetString("country")
	if country == "" {
		country = cfg.Scraper.Country
	}
	pages, _ := flags.GetInt("pages")
	if pages < 1 {
		pages = cfg.Scraper.MaxPages
	}

	formatName, _ := flags.GetString("format")
	if formatName == "" {
		formatName = cfg.Export.Format
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		logError("%v", err)
		return err
	}

	targets := make([]scraper.Marketplace, 0, len(marketplaces))
	for _, name := range marketplaces {
		m, err := scraper.New(name, country)
		if err != nil {
			logError("%v", err)
			return err
		}
		targets = append(targets, m)
	}

	indexPath, _ := flags.GetString("index")
	if indexPath == "" {
		indexPath = cfg.Export.IndexFile
	}
	index, err := openIndex(indexPath)
	if err != nil {
		logError("%v", err)
		return err
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		logError("%v", err)
		return err
	}
	var publisher *events.Publisher
	if db != nil {
		defer db.Close()
		publisher = events.NewPublisher(db, log)
	}

	runner, b, err := newRunner(cfg, log)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer b.Close()

	var all []*models.Product
	for _, query := range queries {
		var found []*models.Product
		for _, m := range targets {
			result, err := runner.Search(ctx, m, query, pages)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				log.Error("search failed", "marketplace", m.Name(), "query", query, "error", err)
				continue
			}
			found = append(found, result.Products...)
		}

		if publisher != nil && len(found) > 0 {
			if _, err := publisher.PublishListingsScraped(ctx, uuid.New().String(), query, country, found); err != nil {
				log.Error("failed to publish listings", "query", query, "error", err)
			}
		}
		all = append(all, found...)
	}

	if index != nil {
		res, err := index.MarkSeen(all)
		if err != nil {
			log.Error("failed to update listing index", "error", err)
		} else {
			fmt.Fprintf(os.Stdout, "new: %d, seen before: %d, price changed: %d\n", res.New, res.Seen, res.PriceChanged)
		}
	}

	export.Summarize(all).Print(os.Stdout)

	if noExport, _ := flags.GetBool("no-export"); noExport || len(all) == 0 {
		return nil
	}

	dir, _ := flags.GetString("output-dir")
	if dir == "" {
		dir = cfg.Export.OutputDir
	}
	exporter := newExporter(cfg, dir, log)

	if byMarketplace, _ := flags.GetBool("by-marketplace"); byMarketplace {
		paths, err := exporter.ExportByMarketplace(all, format)
		if err != nil {
			logError("%v", err)
			return err
		}
		for marketplace, path := range paths {
			fmt.Fprintf(os.Stdout, "%s: %s\n", marketplace, path)
		}
		return nil
	}

	path, err := exporter.Export(all, format, export.DefaultFilename("products", format, time.Now()))
	if err != nil {
		logError("%v", err)
		return err
	}
	fmt.Fprintf(os.Stdout, "exported %d products to %s\n", len(all), path)
	return nil
}

func scrapeQueries(cmd *cobra.Command, args []string) ([]string, error) {
	var queries []string
	if len(args) == 1 {
		queries = append(queries, args[0])
	}

	if file, _ := cmd.Flags().GetString("queries-file"); file != "" {
		fromFile, err := inputs.ReadQueriesFile(file)
		if err != nil {
			return nil, err
		}
		queries = append(queries, fromFile...)
	}

	if len(queries) == 0 {
		return nil, errors.New("a query or --queries-file is required")
	}
	return queries, nil
}
