// Package main provides the entry point for the pagemind CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/pagemind/cmd/pagemind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
