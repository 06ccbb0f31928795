package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avflow/avflow/internal/landing"
	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/pkg/config"
	"github.com/avflow/avflow/pkg/logger"
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup [source]",
	Short: "Prune expired landing partitions",
	Long: `Deletes landing partitions older than the retention window
(S3_RETENTION_DAYS). Without an argument every source is pruned.

Example:
  go run ./cmd/avflow cleanup
  go run ./cmd/avflow cleanup BALANCE_SHEET --retention-days 7`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

var cleanupRetention int

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&cleanupRetention, "retention-days", 0, "override S3_RETENTION_DAYS")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	specs := sources.All()
	if len(args) == 1 {
		spec, err := sources.Get(args[0])
		if err != nil {
			return err
		}
		specs = []sources.Spec{spec}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	retention := cfg.S3.RetentionDays
	if cleanupRetention > 0 {
		retention = cleanupRetention
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	lander, err := landing.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	now := time.Now()
	total := 0
	for _, spec := range specs {
		deleted, err := lander.Cleanup(ctx, spec.TableName, retention, now)
		if err != nil {
			return fmt.Errorf("❌ cleanup %s: %w", spec.TableName, err)
		}
		fmt.Printf("%-28s %d objects deleted\n", spec.TableName, deleted)
		total += deleted
	}

	fmt.Printf("✅ Cleanup finished (%d objects, retention %dd)\n", total, retention)
	return nil
}
