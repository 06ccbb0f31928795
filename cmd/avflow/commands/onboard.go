package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avflow/avflow/internal/sources"
)

// onboardCmd represents the onboard command
var onboardCmd = &cobra.Command{
	Use:   "onboard [source]",
	Short: "Initialize watermarks from the symbol universe",
	Long: `Creates watermark rows for every universe symbol, per source.
Safe to re-run: existing rows keep their progress and eligibility,
only descriptive fields are refreshed.

Without an argument all sources are onboarded.

Example:
  go run ./cmd/avflow onboard
  go run ./cmd/avflow onboard BALANCE_SHEET`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := app.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	base, err := app.universe.Base(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}
	if len(base) == 0 {
		return fmt.Errorf("universe is empty; run 'symbols sync' first")
	}
	fmt.Printf("Universe: %d symbols\n\n", len(base))

	for _, spec := range specs {
		count, err := app.store.InitializeSource(ctx, spec.TableName, base, spec.Eligible)
		if err != nil {
			return fmt.Errorf("❌ onboard %s: %w", spec.TableName, err)
		}
		fmt.Printf("✅ %-28s %d watermarks\n", spec.TableName, count)
	}

	return nil
}
