// Package inputs reads search queries from text files.
package inputs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const peekSize = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadQueriesFile reads one query per line from path.
func ReadQueriesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queries file: %w", err)
	}
	defer f.Close()

	return ReadQueries(f)
}

// ReadQueries decodes r to UTF-8 and returns its non-empty lines in order,
// without duplicates. Lines starting with '#' are comments.
func ReadQueries(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	peek, _ := br.Peek(peekSize)

	var dec io.Reader = br
	switch charset := detectCharset(peek); charset {
	case "iso-8859-1":
		dec = transform.NewReader(br, charmap.ISO8859_1.NewDecoder())
	case "windows-1252":
		dec = transform.NewReader(br, charmap.Windows1252.NewDecoder())
	}

	var queries []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(dec)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, string(utf8BOM))
			first = false
		}

		line = strings.Join(strings.Fields(line), " ")
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		queries = append(queries, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	return queries, nil
}

// detectCharset returns "utf-8" for valid UTF-8 input. Anything else is
// treated as a single-byte Latin encoding, ISO-8859-1 only when the
// detector is sure of it.
func detectCharset(peek []byte) string {
	if len(peek) == 0 || utf8.Valid(trimPartialRune(peek)) {
		return "utf-8"
	}

	if det, err := chardet.NewTextDetector().DetectBest(peek); err == nil && det != nil {
		if cs := strings.ToLower(det.Charset); cs == "iso-8859-1" {
			return cs
		}
	}
	return "windows-1252"
}

// trimPartialRune drops a multi-byte sequence cut off by the peek window.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && i < len(b); i++ {
		end := len(b) - i
		if utf8.RuneStart(b[end-1]) {
			if !utf8.FullRune(b[end-1:]) {
				return b[:end-1]
			}
			return b
		}
	}
	return b
}
