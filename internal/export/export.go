// Package export writes scraped products to files.
package export

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/models"
)

type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatXLSX  Format = "xlsx"
)

var Formats = []Format{FormatCSV, FormatJSON, FormatJSONL, FormatYAML, FormatXLSX}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "yml" {
		return FormatYAML, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

type Options struct {
	Delimiter  rune
	JSONIndent int
}

func DefaultOptions() Options {
	return Options{Delimiter: ',', JSONIndent: 2}
}

// Exporter writes product files into one output directory.
type Exporter struct {
	dir    string
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

func New(dir string, opts Options, logger *slog.Logger) *Exporter {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	return &Exporter{
		dir:    dir,
		opts:   opts,
		now:    time.Now,
		logger: logger.With("component", "exporter"),
	}
}

// Export writes products to filename inside the output directory and
// returns the full path. An empty filename gets a timestamped default.
func (e *Exporter) Export(products []*models.Product, format Format, filename string) (string, error) {
	if filename == "" {
		filename = DefaultFilename("products", format, e.now())
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(e.dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}

	if err := Write(f, products, format, e.opts); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}

	e.logger.Info("products exported", "path", path, "format", format, "count", len(products))
	return path, nil
}

// ExportByMarketplace writes one file per marketplace and returns the
// paths keyed by marketplace name.
func (e *Exporter) ExportByMarketplace(products []*models.Product, format Format) (map[string]string, error) {
	groups := GroupByMarketplace(products)
	now := e.now()

	paths := make(map[string]string, len(groups))
	for _, name := range sortedKeys(groups) {
		prefix := "products_" + slug(name)
		path, err := e.Export(groups[name], format, DefaultFilename(prefix, format, now))
		if err != nil {
			return paths, fmt.Errorf("failed to export %s: %w", name, err)
		}
		paths[name] = path
	}

	return paths, nil
}

// Write encodes products to w in the given format.
func Write(w io.Writer, products []*models.Product, format Format, opts Options) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, products, opts.Delimiter)
	case FormatJSON:
		return writeJSON(w, products, opts.JSONIndent, time.Now())
	case FormatJSONL:
		return writeJSONL(w, products)
	case FormatYAML:
		return writeYAML(w, products)
	case FormatXLSX:
		return writeXLSX(w, products)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// DefaultFilename returns "<prefix>_YYYYMMDD_HHMMSS.<ext>".
func DefaultFilename(prefix string, format Format, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), format)
}

func GroupByMarketplace(products []*models.Product) map[string][]*models.Product {
	groups := make(map[string][]*models.Product)
	for _, p := range products {
		name := p.Marketplace
		if name == "" {
			name = "unknown"
		}
		groups[name] = append(groups[name], p)
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "_"), "_")
}
