package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonNumericPattern  = regexp.MustCompile(`[^0-9.,]`)
	firstNumberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// maxDecimalFraction is the longest fragment after a lone separator that is
// still read as decimals. "999.99" is a decimal, "999.999" a thousands group.
const maxDecimalFraction = 2

// ParsePrice resolves a free-form price string ("$2.299.900", "1.234,56",
// "USD 1,234.56") into a number without any locale hint. Everything except
// digits, dots and commas is discarded first, so currency symbols and words
// never influence which separator is read as the decimal point.
//
// The second return value is false when the text holds no digits or the
// value does not fit a float64.
func ParsePrice(text string) (float64, bool) {
	clean := nonNumericPattern.ReplaceAllString(strings.TrimSpace(text), "")
	if !strings.ContainsAny(clean, "0123456789") {
		return 0, false
	}

	hasDot := strings.Contains(clean, ".")
	hasComma := strings.Contains(clean, ",")

	switch {
	case !hasDot && !hasComma:
		return parseFloat(clean)
	case hasDot && !hasComma:
		return parseSingleSeparator(clean, ".")
	case hasComma && !hasDot:
		return parseSingleSeparator(clean, ",")
	default:
		return parseMixedSeparators(clean)
	}
}

// parseSingleSeparator handles strings that only use one separator kind.
// A single occurrence followed by at most two digits is a decimal point;
// anything else groups thousands.
func parseSingleSeparator(clean, sep string) (float64, bool) {
	if strings.Count(clean, sep) == 1 {
		idx := strings.Index(clean, sep)
		if len(clean)-idx-1 <= maxDecimalFraction {
			return joinParts(clean[:idx], clean[idx+1:])
		}
	}
	return parseFloat(strings.ReplaceAll(clean, sep, ""))
}

// parseMixedSeparators treats the rightmost separator as the decimal point
// and drops every other dot or comma.
func parseMixedSeparators(clean string) (float64, bool) {
	idx := strings.LastIndexAny(clean, ".,")
	return joinParts(stripSeparators(clean[:idx]), stripSeparators(clean[idx+1:]))
}

func joinParts(integer, fraction string) (float64, bool) {
	if integer == "" {
		integer = "0"
	}
	if fraction == "" {
		return parseFloat(integer)
	}
	return parseFloat(integer + "." + fraction)
}

func stripSeparators(s string) string {
	return strings.NewReplacer(".", "", ",", "").Replace(s)
}

// parseFloat rejects out-of-range input rather than returning ±Inf.
func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ExtractNumber returns the first number embedded in prose, as used for
// ratings and scores ("4,5 de 5 estrellas"). Only the leftmost digit run is
// read, with at most one separator, and that separator is always decimal.
// Unlike ParsePrice, no thousands grouping is recognised.
func ExtractNumber(text string) (float64, bool) {
	match := firstNumberPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	return parseFloat(strings.Replace(match, ",", ".", 1))
}

// ExtractInteger concatenates every digit in text and parses the result,
// ignoring separators and anything else. "1.234 opiniones" yields 1234.
// It reports false when there are no digits or the value overflows int64.
func ExtractInteger(text string) (int64, bool) {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}

	v, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// optional turns a value/ok pair into a pointer, nil meaning unknown.
func optional[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}
