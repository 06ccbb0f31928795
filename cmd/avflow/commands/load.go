package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/internal/warehouse"
	"github.com/avflow/avflow/pkg/config"
	"github.com/avflow/avflow/pkg/logger"
)

// loadCmd represents the load command
var loadCmd = &cobra.Command{
	Use:   "load <source>",
	Short: "Load a landing partition into Snowflake",
	Long: `COPYs one landing partition from the external stage into the
staging table, then MERGEs it into the raw table. Replaying a
partition is idempotent.

The partition defaults to today (UTC).

Example:
  go run ./cmd/avflow load BALANCE_SHEET
  go run ./cmd/avflow load TIME_SERIES_DAILY_ADJUSTED --date 2026-08-19`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

var loadDate string

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().StringVar(&loadDate, "date", "", "partition date (YYYY-MM-DD, default today UTC)")
}

func runLoad(cmd *cobra.Command, args []string) error {
	spec, err := sources.Get(args[0])
	if err != nil {
		return err
	}

	partition := time.Now().UTC()
	if loadDate != "" {
		partition, err = time.Parse("2006-01-02", loadDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", loadDate, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	loader, err := warehouse.New(cfg, log)
	if err != nil {
		return err
	}
	defer loader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	fmt.Println("Connecting to Snowflake...")
	if err := loader.Ping(ctx); err != nil {
		return fmt.Errorf("❌ snowflake ping: %w", err)
	}

	if err := loader.EnsureObjects(ctx); err != nil {
		return fmt.Errorf("❌ ensure warehouse objects: %w", err)
	}

	fmt.Printf("Loading %s partition %s...\n", spec.TableName, partition.Format("2006-01-02"))
	rows, err := loader.LoadPartition(ctx, spec, partition)
	if err != nil {
		return fmt.Errorf("❌ load partition: %w", err)
	}

	fmt.Printf("✅ Partition loaded (%d rows merged)\n", rows)
	return nil
}
