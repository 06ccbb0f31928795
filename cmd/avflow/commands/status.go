package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avflow/avflow/internal/sources"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [source]",
	Short: "Show watermark progress per source",
	Long: `Prints watermark aggregates: totals, eligibility split, how many
symbols were never processed, and the oldest successful run.

Without an argument every source is shown.

Example:
  go run ./cmd/avflow status
  go run ./cmd/avflow status BALANCE_SHEET --laggards 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusLaggards int

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusLaggards, "laggards", 0, "also list the N furthest-behind symbols")
}

func runStatus(cmd *cobra.Command, args []string) error {
	specs := sources.All()
	if len(args) == 1 {
		spec, err := sources.Get(args[0])
		if err != nil {
			return err
		}
		specs = []sources.Spec{spec}
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("=== Watermark Status ===")
	fmt.Printf("%-28s %8s %8s %8s %8s %12s\n", "SOURCE", "TOTAL", "ELIG", "INELIG", "NEVER", "OLDEST RUN")

	for _, spec := range specs {
		stats, err := app.store.Stats(ctx, spec.TableName)
		if err != nil {
			return fmt.Errorf("stats %s: %w", spec.TableName, err)
		}

		oldest := "-"
		if stats.OldestRun != nil {
			oldest = stats.OldestRun.Format("2006-01-02")
		}
		fmt.Printf("%-28s %8d %8d %8d %8d %12s\n",
			spec.TableName, stats.Total, stats.Eligible, stats.Ineligible, stats.NeverProcessed, oldest)
	}

	if statusLaggards > 0 && len(specs) == 1 {
		records, err := app.store.Laggards(ctx, specs[0].TableName, statusLaggards)
		if err != nil {
			return fmt.Errorf("laggards: %w", err)
		}

		fmt.Printf("\n=== Laggards (%s) ===\n", specs[0].TableName)
		for _, r := range records {
			last := "never"
			if r.LastFiscalDate != nil {
				last = r.LastFiscalDate.Format("2006-01-02")
			}
			fmt.Printf("%-10s last_fiscal=%-12s failures=%d\n", r.Symbol, last, r.ConsecutiveFailures)
		}
	}

	return nil
}
