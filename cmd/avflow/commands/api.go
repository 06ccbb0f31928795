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
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the monitoring API server",
	Long: `Serves the read-only monitoring API.

Endpoints:
  GET /health                               - Health check
  GET /api/v1/sources                       - Source registry
  GET /api/v1/watermarks/{table}/stats      - Watermark aggregates
  GET /api/v1/watermarks/{table}/laggards   - Furthest-behind symbols

Example:
  go run ./cmd/avflow api
  go run ./cmd/avflow api --port 8089`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&apiPort, "port", "", "listen port (default from PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	if apiPort != "" {
		app.cfg.Port = apiPort
	}

	wmHandler := handlers.NewWatermarkHandler(app.store, app.log)
	router := api.NewRouter(wmHandler, nil, app.log)
	server := api.New(app.cfg, app.log, router)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	fmt.Printf("✅ Monitoring API listening on :%s\n", app.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	fmt.Println("✅ Server stopped")
	return nil
}
