// Package main provides the entry point for the manualqa CLI.
package main

import (
	"os"

	"github.com/fieldscope/manualqa/cmd/manualqa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
