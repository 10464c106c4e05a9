// Package main is the entry point for the coinsync CLI.
package main

import (
	"os"

	"github.com/mrz1836/coinsync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
