package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/models"
	excelize "github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

const xlsxSheet = "Products"

func records(products []*models.Product) []models.Record {
	out := make([]models.Record, 0, len(products))
	for _, p := range products {
		out = append(out, p.Record())
	}
	return out
}

func writeCSV(w io.Writer, products []*models.Product, delimiter rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter

	if err := cw.Write(models.RecordColumns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range records(products) {
		if err := cw.Write(r.Values()); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

type jsonDocument struct {
	Products     []models.Record `json:"products"`
	TotalCount   int             `json:"total_count"`
	ExportedAt   string          `json:"exported_at"`
	Marketplaces []string        `json:"marketplaces"`
}

func writeJSON(w io.Writer, products []*models.Product, indent int, now time.Time) error {
	doc := jsonDocument{
		Products:     records(products),
		TotalCount:   len(products),
		ExportedAt:   now.Format(time.RFC3339),
		Marketplaces: sortedKeys(GroupByMarketplace(products)),
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", indent))
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

func writeJSONL(w io.Writer, products []*models.Product) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for _, r := range records(products) {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode json line: %w", err)
		}
	}
	return bw.Flush()
}

func writeYAML(w io.Writer, products []*models.Product) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(records(products)); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func writeXLSX(w io.Writer, products []*models.Product) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(models.RecordColumns))
	for i, col := range models.RecordColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write xlsx header: %w", err)
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(xlsxSheet, 1, 1, style)
	}

	for i, r := range records(products) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := xlsxRow(r)
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write xlsx row: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

// xlsxRow keeps numbers numeric so spreadsheets can sort and sum them.
// The order matches models.RecordColumns.
func xlsxRow(r models.Record) []any {
	return []any{
		r.Title,
		numberCell(r.Price),
		r.Brand,
		numberCell(r.OriginalPrice),
		r.Currency,
		r.URL,
		r.ImageURL,
		numberCell(r.Rating),
		numberCell(r.ReviewsCount),
		r.Seller,
		r.Availability,
		r.Description,
		r.Marketplace,
		r.ParentCategory,
		r.Category,
		r.Category2,
		r.FreeShipping,
		r.ScrapedAt,
	}
}

func numberCell[T float64 | int64](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
