package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Guardian - 포지션 청산 관리 엔진",
	Long: `Guardian Unified CLI

진입 이후의 포지션을 자율 보호하는 청산 관리 엔진.
본전 이동, 부분 익절, ATR 트레일링, 구조 악화 시 긴급 청산.

Usage:
  go run ./cmd/guardian [command]

Examples:
  go run ./cmd/guardian start
  go run ./cmd/guardian rules
  go run ./cmd/guardian simulate --entry 3950 --stop 3944 --target 3955 --atr 2.0
  go run ./cmd/guardian status`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
