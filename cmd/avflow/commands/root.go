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
	Use:   "avflow",
	Short: "Alpha Vantage extraction pipeline",
	Long: `avflow - watermark-driven Alpha Vantage extraction pipeline

Incrementally extracts market data into an S3 landing zone and loads
it into Snowflake, tracking per-symbol progress in Postgres.

Usage:
  go run ./cmd/avflow [command]

Examples:
  go run ./cmd/avflow symbols sync
  go run ./cmd/avflow onboard
  go run ./cmd/avflow extract BALANCE_SHEET --max 100
  go run ./cmd/avflow load BALANCE_SHEET
  go run ./cmd/avflow scheduler
  go run ./cmd/avflow api`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
