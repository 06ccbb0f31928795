package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avflow/avflow/internal/api"
	"github.com/avflow/avflow/internal/api/handlers"
	"github.com/avflow/avflow/internal/landing"
	"github.com/avflow/avflow/internal/scheduler"
	"github.com/avflow/avflow/internal/scheduler/jobs"
	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/internal/watermark"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the pipeline on its cron schedules",
	Long: `Starts the long-running scheduler:
- daily time series extraction (SCHEDULE_TIME_SERIES)
- weekly fundamentals extraction (SCHEDULE_FUNDAMENTALS)
- weekly symbol universe refresh (SCHEDULE_SYMBOLS)
- daily landing cleanup (SCHEDULE_CLEANUP)

Example:
  go run ./cmd/avflow scheduler`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx := context.Background()
	if err := app.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	runner, err := app.newRunner(ctx, 0)
	if err != nil {
		return err
	}

	lander, err := landing.New(ctx, app.cfg, app.log)
	if err != nil {
		return err
	}

	timeSeries, err := sources.Get("TIME_SERIES_DAILY_ADJUSTED")
	if err != nil {
		return err
	}

	sched := scheduler.New(app.log)
	jobList := []scheduler.Job{
		jobs.NewExtractionJob("time_series", app.cfg.Scheduler.TimeSeriesCron,
			runner, []sources.Spec{timeSeries}, watermark.Options{SkipRecentHours: 20}, app.log),
		jobs.NewExtractionJob("fundamentals", app.cfg.Scheduler.FundamentalsCron,
			runner, sources.Fundamentals(), watermark.Options{SkipRecentHours: 24}, app.log),
		jobs.NewSymbolSyncJob(app.cfg.Scheduler.SymbolsCron,
			app.newClient(), app.universe, app.store, app.log),
		jobs.NewCleanupJob(app.cfg.Scheduler.CleanupCron,
			lander, app.cfg.S3.RetentionDays, app.log),
	}
	for _, job := range jobList {
		if err := sched.AddJob(job); err != nil {
			return err
		}
	}

	sched.Start()
	fmt.Println("✅ Scheduler started")
	for _, name := range sched.Jobs() {
		fmt.Printf("   - %s\n", name)
	}

	// Serve the monitoring API from the same process so /api/v1/jobs
	// can report this scheduler's run history.
	wmHandler := handlers.NewWatermarkHandler(app.store, app.log)
	jobsHandler := handlers.NewJobsHandler(sched, app.log)
	server := api.New(app.cfg, app.log, api.NewRouter(wmHandler, jobsHandler, app.log))
	go func() {
		if err := server.Start(); err != nil {
			app.log.WithError(err).Error("Monitoring API stopped")
		}
	}()
	fmt.Printf("✅ Monitoring API listening on :%s\n", app.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.log.WithError(err).Warn("Monitoring API shutdown failed")
	}

	fmt.Println("\nStopping scheduler...")
	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Minute):
		fmt.Println("⚠️  Jobs still running after 5m, exiting anyway")
	}

	fmt.Println("✅ Scheduler stopped")
	return nil
}
