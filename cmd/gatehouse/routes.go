package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"mercator-hq/gatehouse/pkg/cli"
	"mercator-hq/gatehouse/pkg/config"
	"mercator-hq/gatehouse/pkg/routes"
)

var routesFlags struct {
	dir    string
	format string
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Inspect route definition files",
	Long: `Inspect the route definition files of a routes directory.

Each route is one "{id}.json" file:

  {
    "id": "shop",
    "name": "Shop",
    "dnsUrl": "shop.example.com",
    "localUrl": "http://127.0.0.1:3000",
    "certificatesDirectory": "certs/shop",
    "certificatePassword": "",
    "enabled": true
  }

The directory defaults to routes.config_path from the configuration.`,
}

var routesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the routes defined in a directory",
	Long: `List every valid route file. Certificate passwords are never printed.

Examples:
  gatehouse routes list
  gatehouse routes list --dir /etc/gatehouse/routes --format json`,
	Args: cobra.NoArgs,
	RunE: listRoutes,
}

var routesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every route file in a directory",
	Long: `Parse and validate every route file. Invalid files are reported and the
command fails. Hosts claimed by more than one enabled route are reported as
warnings: only the most recently loaded of them is live.

Examples:
  gatehouse routes validate --dir ./routes`,
	Args: cobra.NoArgs,
	RunE: validateRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
	routesCmd.AddCommand(routesListCmd)
	routesCmd.AddCommand(routesValidateCmd)

	routesCmd.PersistentFlags().StringVarP(&routesFlags.dir, "dir", "d", "", "routes directory (default: routes.config_path)")
	routesListCmd.Flags().StringVar(&routesFlags.format, "format", "text", "output format: text, json, csv")
}

// routesDir returns --dir, falling back to the configured directory.
func routesDir() (string, error) {
	if routesFlags.dir != "" {
		return routesFlags.dir, nil
	}
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return "", cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg.Routes.ConfigPath, nil
}

func listRoutes(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(routesFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	dir, err := routesDir()
	if err != nil {
		return err
	}

	entries, err := routes.ReadDir(dir)
	var perr *routes.ParseError
	if err != nil && !errors.As(err, &perr) {
		return cli.NewCommandError("routes list", err)
	}
	for _, e := range multierr.Errors(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
	}

	redacted := make([]*routes.Entry, 0, len(entries))
	table := &cli.Table{
		Headers: []string{"ID", "NAME", "HOST", "BACKEND", "ENABLED", "CERTIFICATES"},
	}
	for _, e := range entries {
		r := e.Redacted()
		redacted = append(redacted, r)
		table.Rows = append(table.Rows, []string{
			r.ID, r.Name, r.Host(), r.LocalURL, strconv.FormatBool(r.Enabled), r.CertificatesDirectory,
		})
	}
	table.Source = redacted

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), table)
}

func validateRoutes(cmd *cobra.Command, args []string) error {
	dir, err := routesDir()
	if err != nil {
		return err
	}

	entries, err := routes.ReadDir(dir)
	var perr *routes.ParseError
	if err != nil && !errors.As(err, &perr) {
		return cli.NewCommandError("routes validate", err)
	}

	out := cmd.OutOrStdout()
	if err := reportRouteProblems(out, entries, err); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ %d route file(s) valid in %s\n", len(entries), dir)
	return nil
}

// reportRouteProblems prints parse errors and host conflicts. Parse errors
// fail the command; conflicts are warnings.
func reportRouteProblems(out io.Writer, entries []*routes.Entry, parseErr error) error {
	for _, c := range routes.FindConflicts(entries) {
		fmt.Fprintf(out, "! Host %s is claimed by routes %s; only one is live\n", c.Host, strings.Join(c.IDs, ", "))
	}

	errs := multierr.Errors(parseErr)
	for _, e := range errs {
		fmt.Fprintf(out, "✗ %v\n", e)
	}
	if len(errs) > 0 {
		return cli.NewConfigError("routes", fmt.Sprintf("%d invalid route file(s)", len(errs)))
	}
	return nil
}
