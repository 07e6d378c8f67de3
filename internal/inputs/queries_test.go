package inputs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestReadQueriesUTF8(t *testing.T) {
	input := "\xEF\xBB\xBFcelular\n# comentario\n\n  televisor   55 pulgadas \ncelular\r\ncafé colombiano\n"

	queries, err := ReadQueries(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"celular", "televisor 55 pulgadas", "café colombiano"}, queries)
}

func TestReadQueriesLatin1(t *testing.T) {
	text := "café colombiano\nteléfono\nniño\n"
	encoded, err := charmap.Windows1252.NewEncoder().String(text)
	require.NoError(t, err)
	require.NotEqual(t, text, encoded)

	queries, err := ReadQueries(strings.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, []string{"café colombiano", "teléfono", "niño"}, queries)
}

func TestReadQueriesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("arroz\nazúcar\n"), 0o644))

	queries, err := ReadQueriesFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"arroz", "azúcar"}, queries)

	_, err = ReadQueriesFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestReadQueriesEmpty(t *testing.T) {
	queries, err := ReadQueries(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, queries)
}

func TestDetectCharset(t *testing.T) {
	assert.Equal(t, "utf-8", detectCharset(nil))
	assert.Equal(t, "utf-8", detectCharset([]byte("plain ascii")))
	assert.Equal(t, "utf-8", detectCharset([]byte("caf\xC3\xA9")))
	// A two-byte rune cut in half by the peek window is still UTF-8.
	assert.Equal(t, "utf-8", detectCharset([]byte("caf\xC3")))
	assert.NotEqual(t, "utf-8", detectCharset([]byte("caf\xE9 con leche")))
}
