package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/gatehouse/pkg/cli"
	"mercator-hq/gatehouse/pkg/config"
	"mercator-hq/gatehouse/pkg/routes"
	"mercator-hq/gatehouse/pkg/server"
	"mercator-hq/gatehouse/pkg/telemetry/logging"
)

var runFlags struct {
	listenHTTP  string
	listenHTTPS string
	logLevel    string
	dryRun      bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Gatehouse gateway",
	Long: `Start the Gatehouse gateway with the specified configuration.

The gateway listens for plain HTTP and HTTPS, selects a certificate for each
TLS handshake by SNI host name and forwards requests to the backend of the
route matching their Host header. Route files are watched and reloaded.

Examples:
  # Start with defaults (:80, :443, ./routes)
  gatehouse run

  # Start with custom config
  gatehouse run --config /etc/gatehouse/config.yaml

  # Override listen addresses; an empty value disables a listener
  gatehouse run --listen-http 127.0.0.1:8080 --listen-https ""

  # Validate config and route files without starting
  gatehouse run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.listenHTTP, "listen-http", "", "override the plain HTTP listen address")
	runCmd.Flags().StringVar(&runFlags.listenHTTPS, "listen-https", "", "override the HTTPS listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and route files without starting")
}

// loadConfig reads the configuration file, applies flag overrides and
// installs the result as the process configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	flags := cmd.Flags()
	if flags.Changed("listen-http") {
		cfg.Gateway.HTTPAddress = runFlags.listenHTTP
	}
	if flags.Changed("listen-https") {
		cfg.Gateway.HTTPSAddress = runFlags.listenHTTPS
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}

	config.SetConfig(cfg)
	return cfg, nil
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	out := cmd.OutOrStdout()

	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return checkRouteDir(out, cfg.Routes.ConfigPath)
	}

	printBanner(out, cfg)

	srv, err := server.New(cfg, server.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	}, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	go func() {
		<-srv.Ready()
		if addr := srv.Addr("http"); addr != nil {
			fmt.Fprintf(out, "✓ HTTP listening on %s\n", addr)
		}
		if addr := srv.Addr("https"); addr != nil {
			fmt.Fprintf(out, "✓ HTTPS listening on %s\n", addr)
		}
		if cfg.Admin.Enabled {
			fmt.Fprintln(out, "✓ Admin API: http://localhost/api/routes (loopback only)")
		}
		fmt.Fprintln(out, "\nPress Ctrl+C to stop")
	}()

	if err := srv.Start(cmd.Context()); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Gateway stopped")
	return nil
}

// checkRouteDir reports the route files a dry run would load. A missing
// directory is fine; the gateway creates it on start.
func checkRouteDir(out io.Writer, dir string) error {
	entries, err := routes.ReadDir(dir)
	var perr *routes.ParseError
	if err != nil && !errors.As(err, &perr) {
		fmt.Fprintf(out, "! Routes directory %s not readable yet: %v\n", dir, err)
		return nil
	}

	if err := reportRouteProblems(out, entries, err); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ %d route file(s) valid in %s\n", len(entries), dir)
	return nil
}

func printBanner(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Gatehouse v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	slog.Debug("routes directory", "path", cfg.Routes.ConfigPath)
	if cfg.Admission.Enabled {
		slog.Debug("admission control enabled",
			"max_requests_per_second", cfg.Admission.MaxRequestsPerSecond,
			"max_requests_per_minute", cfg.Admission.MaxRequestsPerMinute,
		)
	}
	if cfg.Telemetry.Tracing.Enabled {
		slog.Debug("tracing enabled", "endpoint", cfg.Telemetry.Tracing.Endpoint)
	}
}
