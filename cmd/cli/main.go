// Package main is the entry point for podctl, the command-line client of
// the podqueue controller API.
package main

import (
	"os"

	"podqueue/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
