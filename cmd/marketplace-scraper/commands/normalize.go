package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/maltedev/marketplace-scraper/internal/parser"
	"github.com/spf13/cobra"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <price|number|integer> <text>",
	Short: "Resolve a number from free text",
	Long: `Print the number the scraper would read from a piece of text.

  price    locale-free price, e.g. "$ 1.299.900" or "US$ 1,234.56"
  number   first decimal in prose, e.g. "4,5 de 5 estrellas"
  integer  every digit joined, e.g. "(1.234 opiniones)"`,
	Args:      cobra.MinimumNArgs(2),
	ValidArgs: []string{"price", "number", "integer"},
	RunE:      runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	text := strings.Join(args[1:], " ")

	var (
		value string
		ok    bool
	)
	switch args[0] {
	case "price":
		var v float64
		v, ok = parser.ParsePrice(text)
		value = formatFloat(v)
	case "number":
		var v float64
		v, ok = parser.ExtractNumber(text)
		value = formatFloat(v)
	case "integer":
		var v int64
		v, ok = parser.ExtractInteger(text)
		value = strconv.FormatInt(v, 10)
	default:
		err := fmt.Errorf("unknown mode %q: want price, number or integer", args[0])
		logError("%v", err)
		return err
	}

	out := cmd.OutOrStdout()
	if !ok {
		fmt.Fprintln(out, "no number found")
		return nil
	}
	fmt.Fprintln(out, value)
	return nil
}

// formatFloat prints the shortest representation that reads back as v.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
