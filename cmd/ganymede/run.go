package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/relay"
	"mercator-hq/ganymede/pkg/resolve"
	"mercator-hq/ganymede/pkg/security/secrets"
	"mercator-hq/ganymede/pkg/server"
	"mercator-hq/ganymede/pkg/telemetry/health"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede gateway server",
	Long: `Start the Ganymede gateway server with the specified configuration.

The server listens on the configured address and relays chat completion and
embeddings requests to the upstream endpoints of resolved deployments.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override listen address
  ganymede run --listen 0.0.0.0:8080

  # Validate config without starting server
  ganymede run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, "", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return cli.NewConfigError(cfgFile, "telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	store, err := config.NewStore(cfg)
	if err != nil {
		return cli.NewConfigError(cfgFile, "", fmt.Sprintf("failed to build catalog: %v", err))
	}

	if runFlags.dryRun {
		fmt.Printf("✓ Configuration valid (%d deployments, %d keys, %d roles)\n",
			store.Deployments(), len(cfg.Keys), len(cfg.Roles))
		return nil
	}

	fmt.Printf("Ganymede v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Printf("✓ Catalog loaded (%d deployments)\n", store.Deployments())

	// Credential resolution for upstream keys. Environment references are
	// always available; file references need a configured secrets file.
	providers := []secrets.Provider{secrets.NewEnvProvider()}
	if cfg.Security.Secrets.File != "" {
		watch := cfg.Security.Secrets.Watch == nil || *cfg.Security.Secrets.Watch
		fileProvider, err := secrets.NewFileProvider(cfg.Security.Secrets.File, watch, logger)
		if err != nil {
			return cli.NewConfigError(cfgFile, "security.secrets.file", err.Error())
		}
		defer fileProvider.Close()
		providers = append(providers, fileProvider)
		fmt.Printf("✓ Secrets file loaded (watch=%t)\n", watch)
	}
	credentials := secrets.NewManager(providers...)

	engine := relay.NewEngine(cfg.Relay, credentials, logger)
	resolver := resolve.NewResolver(store)
	collector := metrics.NewCollector(nil)

	checker := health.New(0)
	checker.Register("catalog", func(ctx context.Context) error {
		if store.Deployments() == 0 {
			return errors.New("no deployments configured")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recorder *audit.Recorder
	if cfg.Audit.Enabled {
		auditStore, err := audit.OpenStore(cfg.Audit.SQLitePath, cfg.Audit.BusyTimeout)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer auditStore.Close()

		recorder = audit.NewRecorder(auditStore, cfg.Audit.Buffer, logger)
		defer recorder.Close()
		checker.Register("audit", auditStore.Ping)

		if cfg.Audit.Retention.Schedule != "" {
			pruner := audit.NewPruner(auditStore, cfg.Audit.Retention, logger)
			scheduler := audit.NewScheduler(pruner, cfg.Audit.Retention.Schedule, logger)
			if err := scheduler.Start(ctx); err != nil {
				slog.Warn("failed to start retention scheduler", "error", err)
			} else {
				defer scheduler.Stop()
			}
		}

		fmt.Println("✓ Audit store initialized")
	}

	srv := server.New(server.Options{
		Config:   cfg,
		Resolver: resolver,
		Engine:   engine,
		Metrics:  collector,
		Checker:  checker,
		Audit:    recorder,
		Logger:   logger,
	})

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until a shutdown signal, context cancellation, or a
	// listener failure, and drains in-flight requests on the way out.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}
