package main

import (
	"os"

	"github.com/maltedev/marketplace-scraper/cmd/marketplace-scraper/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
