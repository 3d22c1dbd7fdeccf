// Package main provides the entry point for the simdex CLI.
package main

import (
	"os"

	"github.com/halcyonsec/simdex/cmd/simdex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
