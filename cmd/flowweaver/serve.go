package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowweaver/internal/config"
	"flowweaver/internal/registry"
	"flowweaver/internal/service"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose registered workflows over HTTP",
	Long: `Serve the registered workflows as a remote backend.

Other engine instances can dispatch to this service by declaring a
remote workflow with this service's URL and port. The service also
serves registry metadata and a health endpoint.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	serveCmd.Flags().StringVar(&runRegistryPath, "registry", "", "Workflow definitions file (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if runRegistryPath != "" {
		cfg.Registry.ConfigPath = runRegistryPath
	}
	if servePort != 0 {
		cfg.Service.Port = servePort
	}

	reg, inv, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	// Hot reload replaces the registry with the file's definitions, so
	// a watched registry should declare every workflow in the file.
	if cfg.Registry.Watch {
		stop, err := registry.Watch(cfg.Registry.ConfigPath, reg)
		if err != nil {
			return fmt.Errorf("watching workflow definitions: %w", err)
		}
		defer stop()
		printStatus("✓", "Watching "+cfg.Registry.ConfigPath+" for changes", color.FgGreen)
	}

	srv := service.New(reg, inv, cfg.Service.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	printStatus("✓", fmt.Sprintf("Serving %d workflows on port %d", reg.Len(), cfg.Service.Port), color.FgGreen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("service failed: %w", err)
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
