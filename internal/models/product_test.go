package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestNewProduct(t *testing.T) {
	before := time.Now()
	p := NewProduct("Celular Samsung A15")

	assert.Equal(t, "Celular Samsung A15", p.Title)
	assert.Equal(t, "USD", p.Currency)
	assert.False(t, p.ScrapedAt.Before(before))
	assert.Nil(t, p.Price)
	assert.Nil(t, p.ReviewsCount)
}

func TestProductValidate(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		errors  int
	}{
		{"Valid", Product{Title: "TV", Marketplace: "Falabella", Price: ptr(100.0)}, 0},
		{"Valid without price", Product{Title: "TV", Marketplace: "Falabella"}, 0},
		{"Missing title", Product{Marketplace: "Falabella"}, 1},
		{"Negative price", Product{Title: "TV", Marketplace: "Falabella", Price: ptr(-1.0)}, 1},
		{"Negative original", Product{Title: "TV", Marketplace: "Falabella", OriginalPrice: ptr(-5.0)}, 1},
		{"Empty", Product{}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.product.Validate(), tt.errors)
		})
	}
}

func TestRecordTruncatesDescription(t *testing.T) {
	p := NewProduct("Nevera")
	p.Description = strings.Repeat("ñ", 250)

	r := p.Record()
	assert.Equal(t, 203, len([]rune(r.Description)))
	assert.True(t, strings.HasSuffix(r.Description, "..."))

	p.Description = strings.Repeat("a", 200)
	assert.Equal(t, p.Description, p.Record().Description)
}

func TestRecordValues(t *testing.T) {
	p := &Product{
		Title:        "Portátil",
		Price:        ptr(2299900.0),
		Currency:     "COP",
		ReviewsCount: ptr(int64(1234)),
		Marketplace:  "MercadoLibre",
		FreeShipping: true,
		ScrapedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	values := p.Record().Values()
	require.Len(t, values, len(RecordColumns))

	byColumn := make(map[string]string)
	for i, col := range RecordColumns {
		byColumn[col] = values[i]
	}

	assert.Equal(t, "2299900", byColumn["price"])
	assert.Equal(t, "", byColumn["original_price"])
	assert.Equal(t, "", byColumn["rating"])
	assert.Equal(t, "1234", byColumn["reviews_count"])
	assert.Equal(t, "true", byColumn["free_shipping"])
	assert.Equal(t, "2024-05-01T10:00:00Z", byColumn["scraped_at"])
}

func TestPriceInfo(t *testing.T) {
	sale := PriceInfo{Original: ptr(200.0), Current: ptr(150.0)}
	assert.True(t, sale.IsOnSale())
	pct, ok := sale.DiscountPercentage()
	require.True(t, ok)
	assert.InDelta(t, 25.0, pct, 1e-9)

	noOriginal := PriceInfo{Current: ptr(150.0)}
	assert.False(t, noOriginal.IsOnSale())
	_, ok = noOriginal.DiscountPercentage()
	assert.False(t, ok)

	higher := PriceInfo{Original: ptr(100.0), Current: ptr(150.0)}
	assert.False(t, higher.IsOnSale())

	p := &Product{Price: ptr(90.0), OriginalPrice: ptr(100.0), Discount: "-10%"}
	assert.True(t, p.PriceInfo().IsOnSale())
	assert.Equal(t, "-10%", p.PriceInfo().Discount)
}

func TestFromBreadcrumb(t *testing.T) {
	t.Run("All levels", func(t *testing.T) {
		info := FromBreadcrumb([]BreadcrumbItem{
			{Name: "Celulares y Teléfonos", URL: "https://ml/celulares", Position: 1},
			{Name: "Celulares y Smartphones", URL: "https://ml/smartphones", Position: 2},
			{Name: "Samsung", URL: "https://ml/samsung", Position: 3},
		})

		assert.Equal(t, "Celulares y Teléfonos", info.ParentCategory)
		assert.Equal(t, "Celulares y Smartphones", info.Category)
		assert.Equal(t, "https://ml/smartphones", info.CategoryURL)
		assert.Equal(t, "Samsung", info.Category2)
		assert.Len(t, info.Breadcrumb, 3)
	})

	t.Run("Parent only falls back", func(t *testing.T) {
		info := FromBreadcrumb([]BreadcrumbItem{{Name: "Hogar", URL: "https://ml/hogar", Position: 1}})

		assert.Equal(t, "Hogar", info.ParentCategory)
		assert.Equal(t, "Hogar", info.Category)
		assert.Equal(t, "https://ml/hogar", info.CategoryURL)
		assert.Empty(t, info.Category2)
	})

	t.Run("Empty", func(t *testing.T) {
		info := FromBreadcrumb(nil)
		assert.Empty(t, info.ParentCategory)
		assert.Empty(t, info.Category)
	})

	t.Run("Apply to product", func(t *testing.T) {
		p := NewProduct("x")
		p.ApplyCategory(FromBreadcrumb([]BreadcrumbItem{{Name: "A", Position: 1}, {Name: "B", Position: 2}}))
		assert.Equal(t, "A", p.ParentCategory)
		assert.Equal(t, "B", p.Category)
	})
}
