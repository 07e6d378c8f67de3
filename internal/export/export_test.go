package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	excelize "github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

var scrapedAt = time.Date(2024, 3, 15, 14, 30, 5, 0, time.UTC)

func product(title, marketplace string, price *float64) *models.Product {
	p := models.NewProduct(title)
	p.Marketplace = marketplace
	p.Currency = "COP"
	p.URL = "https://example.com/" + strings.ReplaceAll(title, " ", "-")
	p.Price = price
	p.ScrapedAt = scrapedAt
	return p
}

func ptr[T any](v T) *T { return &v }

func sampleProducts() []*models.Product {
	tv := product("Televisor 55", "Falabella", ptr(1899900.0))
	tv.OriginalPrice = ptr(2499900.0)
	tv.ReviewsCount = ptr(int64(12))

	return []*models.Product{
		tv,
		product("Celular, 128GB", "MercadoLibre", ptr(1234.56)),
		product("Arroz", "Megatiendas", nil),
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "JSON", " jsonl ", "yaml", "xlsx"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}

	f, err := ParseFormat("yml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("xls")
	assert.Error(t, err)
}

func TestDefaultFilename(t *testing.T) {
	assert.Equal(t, "products_20240315_143005.csv", DefaultFilename("products", FormatCSV, scrapedAt))
	assert.Equal(t, "products_mercadolibre_20240315_143005.xlsx", DefaultFilename("products_"+slug("MercadoLibre"), FormatXLSX, scrapedAt))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleProducts(), FormatCSV, Options{Delimiter: ';'}))

	r := csv.NewReader(&buf)
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, models.RecordColumns, rows[0])
	assert.Equal(t, "Televisor 55", rows[1][0])
	assert.Equal(t, "1899900", rows[1][1])
	assert.Equal(t, "12", rows[1][8])
	assert.Equal(t, "Celular, 128GB", rows[2][0])
	assert.Equal(t, "1234.56", rows[2][1])
	assert.Equal(t, "", rows[3][1], "missing price stays empty")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleProducts(), FormatJSON, Options{JSONIndent: 2}))
	assert.Contains(t, buf.String(), "\n  \"products\"")

	var doc struct {
		Products     []map[string]any `json:"products"`
		TotalCount   int              `json:"total_count"`
		ExportedAt   string           `json:"exported_at"`
		Marketplaces []string         `json:"marketplaces"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, 3, doc.TotalCount)
	assert.NotEmpty(t, doc.ExportedAt)
	assert.Equal(t, []string{"Falabella", "Megatiendas", "MercadoLibre"}, doc.Marketplaces)
	assert.Equal(t, 1899900.0, doc.Products[0]["price"])
	assert.Nil(t, doc.Products[2]["price"])
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleProducts(), FormatJSONL, DefaultOptions()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var rec models.Record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "MercadoLibre", rec.Marketplace)
	assert.Equal(t, 1234.56, *rec.Price)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleProducts(), FormatYAML, DefaultOptions()))

	var recs []models.Record
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &recs))
	require.Len(t, recs, 3)
	assert.Equal(t, "Televisor 55", recs[0].Title)
	assert.Equal(t, 2499900.0, *recs[0].OriginalPrice)
	assert.Nil(t, recs[2].Price)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleProducts(), FormatXLSX, DefaultOptions()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "title", rows[0][0])
	assert.Equal(t, "Televisor 55", rows[1][0])
	assert.Equal(t, "1899900", rows[1][1])
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, nil, Format("xml"), DefaultOptions()))
}

func newTestExporter(t *testing.T) (*Exporter, string) {
	dir := filepath.Join(t.TempDir(), "out")
	e := New(dir, DefaultOptions(), slog.Default())
	e.now = func() time.Time { return scrapedAt }
	return e, dir
}

func TestExport(t *testing.T) {
	e, dir := newTestExporter(t)

	path, err := e.Export(sampleProducts(), FormatCSV, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "products_20240315_143005.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "title,price,brand"))

	path, err = e.Export(nil, FormatJSON, "custom.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "custom.json"), path)
}

func TestExportByMarketplace(t *testing.T) {
	e, dir := newTestExporter(t)

	paths, err := e.ExportByMarketplace(sampleProducts(), FormatJSONL)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"Falabella":    filepath.Join(dir, "products_falabella_20240315_143005.jsonl"),
		"MercadoLibre": filepath.Join(dir, "products_mercadolibre_20240315_143005.jsonl"),
		"Megatiendas":  filepath.Join(dir, "products_megatiendas_20240315_143005.jsonl"),
	}, paths)

	data, err := os.ReadFile(paths["Falabella"])
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestSummarize(t *testing.T) {
	products := sampleProducts()
	for i := 0; i < 6; i++ {
		products = append(products, product("Extra", "Falabella", ptr(float64(5000+i))))
	}

	s := Summarize(products)
	assert.Equal(t, 9, s.Total)
	assert.Equal(t, 8, s.WithPrice)
	require.Len(t, s.Marketplaces, 3)
	assert.Equal(t, MarketplaceCount{Marketplace: "Falabella", Products: 7, WithPrice: 7}, s.Marketplaces[0])
	assert.Equal(t, MarketplaceCount{Marketplace: "Megatiendas", Products: 1, WithPrice: 0}, s.Marketplaces[1])

	require.Len(t, s.Cheapest, 5)
	assert.Equal(t, 1234.56, *s.Cheapest[0].Price)
	assert.Equal(t, 5000.0, *s.Cheapest[1].Price)
	assert.Equal(t, 5003.0, *s.Cheapest[4].Price)

	var out bytes.Buffer
	s.Print(&out)
	assert.Contains(t, out.String(), "Total products: 9 (8 with price)")
	assert.Contains(t, out.String(), "1. Celular, 128GB | COP 1234.56 | MercadoLibre")
}
