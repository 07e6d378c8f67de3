package parser

import (
	"net/url"
	"regexp"
	"strings"
)

var whitespacePattern = regexp.MustCompile(`[\s\p{Z}]+`)

// CleanText collapses whitespace and control characters into single spaces.
func CleanText(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// IsValidURL reports whether s is an absolute URL with a scheme and host.
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// MakeAbsoluteURL resolves ref against base unless ref is already absolute.
func MakeAbsoluteURL(base, ref string) string {
	if IsValidURL(ref) {
		return ref
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
