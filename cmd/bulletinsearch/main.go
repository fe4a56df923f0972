// Package main provides the entry point for the bulletinsearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/bulletinsearch/cmd/bulletinsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
