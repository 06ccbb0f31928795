package main

import (
	"os"

	"github.com/avflow/avflow/cmd/avflow/commands"
)

// main is the entry point for the avflow CLI:
// go run ./cmd/avflow [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
