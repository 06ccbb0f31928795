package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avflow/avflow/internal/symbols"
)

// symbolsCmd represents the symbols command group
var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Symbol universe management",
}

// symbolsSyncCmd downloads the listing snapshot into etl.symbols
var symbolsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the symbol universe from the listing snapshot",
	Long: `Downloads the LISTING_STATUS snapshot (active and delisted)
and upserts it into etl.symbols.

Run this before onboarding so new listings get watermarks.

Example:
  go run ./cmd/avflow symbols sync`,
	RunE: runSymbolsSync,
}

func init() {
	rootCmd.AddCommand(symbolsCmd)
	symbolsCmd.AddCommand(symbolsSyncCmd)
}

func runSymbolsSync(cmd *cobra.Command, args []string) error {
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

	client := app.newClient()

	var listings []symbols.Listing
	for _, state := range []string{"active", "delisted"} {
		fmt.Printf("Downloading %s listings...\n", state)
		batch, err := client.ListingStatus(ctx, state)
		if err != nil {
			return fmt.Errorf("❌ listing status %s: %w", state, err)
		}
		fmt.Printf("   %d %s listings\n", len(batch), state)
		listings = append(listings, batch...)
	}

	synced, err := app.universe.Sync(ctx, listings)
	if err != nil {
		return fmt.Errorf("❌ sync universe: %w", err)
	}

	fmt.Printf("✅ Universe synced: %d symbols\n", synced)
	return nil
}
