package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "gatehouse",
	Short: "Gatehouse - multi-tenant TLS reverse proxy",
	Long: `Gatehouse terminates TLS for many host names on one address and forwards
each request to the backend configured for its host.

  - Certificates selected per handshake by SNI host name
  - Routes and certificates hot-reloaded from a directory
  - Streaming request and response bodies, including Server-Sent Events
  - Per-IP admission control with temporary blocks
  - Loopback admin API, Prometheus metrics and OpenTelemetry traces`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and GATEHOUSE_* environment variables when empty)")
}
