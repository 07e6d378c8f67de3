package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Hello   World  ", "Hello World"},
		{"Line1\nLine2\tTab", "Line1 Line2 Tab"},
		{"Normal text", "Normal text"},
		{"Multiple\r\n\r\nBreaks", "Multiple Breaks"},
		{"", ""},
		{"   ", ""},
		{"Por\u00a0\u00a0Tienda  X", "Por Tienda X"},
		{"\u00a0$\u00a01.299.900\u2009", "$ 1.299.900"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, CleanText(tt.input), "CleanText(%q)", tt.input)
	}
}

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"https://www.google.com", true},
		{"http://example.com/path", true},
		{"https://listado.mercadolibre.com.co/celular", true},
		{"https://example.com:8080/path", true},
		{"ftp://files.example.com", true},
		{"not-a-url", false},
		{"", false},
		{"http://", false},
		{"//missing-scheme.com", false},
		{"/relative/path", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidURL(tt.input), "IsValidURL(%q)", tt.input)
	}
}

func TestMakeAbsoluteURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		ref      string
		expected string
	}{
		{"Root relative", "https://example.com", "/path", "https://example.com/path"},
		{"Bare relative", "https://example.com", "relative", "https://example.com/relative"},
		{"Already absolute", "https://example.com", "https://other.com/page", "https://other.com/page"},
		{"Dot relative", "https://example.com/section/", "./page", "https://example.com/section/page"},
		{"Parent relative", "https://example.com/section/", "../other", "https://example.com/other"},
		{"Query only", "https://www.falabella.com.co/falabella-co/search?Ntt=tv", "/falabella-co/product/1", "https://www.falabella.com.co/falabella-co/product/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MakeAbsoluteURL(tt.base, tt.ref))
		})
	}
}
