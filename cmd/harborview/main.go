package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rcourtman/harborview/internal/api"
	"github.com/rcourtman/harborview/internal/config"
	"github.com/rcourtman/harborview/internal/logging"
	"github.com/rcourtman/harborview/internal/models"
	"github.com/rcourtman/harborview/internal/monitoring"
	"github.com/rcourtman/harborview/internal/utils"
	"github.com/rcourtman/harborview/internal/websocket"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var dataDir string

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "harborview",
		Short:         "Harborview - container engine state mirror",
		Long:          `Harborview keeps a live mirror of a local container engine's containers, images, volumes and networks and pushes every change to connected UIs.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding harborview.yaml and .env (default: user config dir)")

	root.AddCommand(newServeCmd(), newVersionCmd(), newSnapshotCmd(), newContextsCmd(), newWatchCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Harborview %s\n", utils.NormalizeVersion(Version))
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads settings and reconfigures logging from them.
func loadConfig() (*config.Config, error) {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "harborview"})

	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "harborview",
	})
	return cfg, nil
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.Logger()
	log.Info().Str("version", Version).Str("dataDir", cfg.DataDir).Msg("Starting Harborview")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	comps := buildComponents(cfg, logger)
	defer comps.close()

	hub := websocket.NewHub(nil, logger)
	go hub.Run(ctx)

	fanout := monitoring.NewFanout(hub)
	monitor := comps.newMonitor(fanout)
	hub.SetStateGetter(websocket.StateGetter(monitor.LastState))

	router := api.NewRouter(api.Options{
		Monitor:   monitor,
		Engine:    comps.cache,
		WebSocket: http.HandlerFunc(hub.HandleWebSocket),
		Clients:   hub.GetClientCount,
		Version:   Version,
	})

	// ReadHeaderTimeout rather than ReadTimeout: a connection deadline would
	// survive the WebSocket upgrade and drop long-lived clients.
	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	configWatcher, err := config.NewWatcher(cfg, func(next *config.Config) {
		log.Info().Msg("Configuration reloaded; engine settings apply on next restart")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher, config changes will require restart")
	} else if err := configWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
	}
	if configWatcher != nil {
		defer configWatcher.Stop()
	}

	if cfg.AutoStart {
		if _, err := monitor.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to start engine monitor")
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.ListenAddress).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigChan := make(chan os.Signal, 1)
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reloadChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)
	defer signal.Stop(reloadChan)

	var runErr error
loop:
	for {
		select {
		case <-reloadChan:
			log.Info().Msg("Received SIGHUP, reloading configuration")
			if configWatcher != nil {
				configWatcher.Reload()
			}
		case <-sigChan:
			log.Info().Msg("Shutting down server")
			break loop
		case <-ctx.Done():
			break loop
		case err, ok := <-serveErr:
			if ok && err != nil {
				runErr = fmt.Errorf("http server: %w", err)
			}
			break loop
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if err := monitor.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Engine monitor did not stop cleanly")
	}
	cancel()

	log.Info().Msg("Server stopped")
	return runErr
}

// stateSummary is the one-line rendering used by the watch command.
func stateSummary(state models.EngineState) string {
	running := 0
	for _, c := range state.Containers {
		if c.State == "running" {
			running++
		}
	}
	return fmt.Sprintf("#%d %s containers=%d running=%d images=%d volumes=%d networks=%d",
		state.UpdateCounter, state.EngineStatus, len(state.Containers), running,
		len(state.Images), len(state.Volumes), len(state.Networks))
}
