package main

import (
	"os"

	"github.com/wonny/guardian/cmd/guardian/commands"
)

// main is the entry point for the Guardian CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/guardian [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
