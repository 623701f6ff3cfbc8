// Package main provides the entry point for the mosaicwatch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/mosaicwatch/cmd/mosaicwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
