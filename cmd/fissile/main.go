package main

import (
	"os"

	"github.com/FredAtLandMetrics/fissile/cmd/fissile/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
