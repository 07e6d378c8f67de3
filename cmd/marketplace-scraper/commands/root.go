// Package commands implements the marketplace-scraper CLI.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/maltedev/marketplace-scraper/internal/config"
	"github.com/maltedev/marketplace-scraper/pkg/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "marketplace-scraper",
	Short: "Search listings on MercadoLibre, Falabella and Megatiendas",
	Long: `marketplace-scraper renders marketplace search pages in a headless
browser, extracts product listings and normalizes their prices.

Configuration comes from the environment and an optional .env file.

Examples:
  # Search two marketplaces and export CSV
  marketplace-scraper scrape "televisor 55" -m mercadolibre -m falabella -p 3

  # One file per marketplace, as Excel
  marketplace-scraper scrape celular -f xlsx --by-marketplace

  # Run the HTTP API with background workers
  marketplace-scraper serve

  # Resolve a price string
  marketplace-scraper normalize price "$ 1.299.900"`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json (overrides LOG_FORMAT)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads and validates the configuration and builds the logger,
// applying the persistent flag overrides.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		logError("%v", err)
		return nil, nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}

	if err := cfg.Validate(); err != nil {
		logError("invalid configuration: %v", err)
		return nil, nil, err
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	slog.SetDefault(log)
	return cfg, log, nil
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
