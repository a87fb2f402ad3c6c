package main

import (
	"fmt"
	"os"

	"github.com/dshills/crawldigest/cmd/crawldigest/commands"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	commands.SetVersion(version, commit, buildTime)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
