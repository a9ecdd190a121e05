package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/gatehouse/pkg/cli"
	gwtls "mercator-hq/gatehouse/pkg/security/tls"
	"mercator-hq/gatehouse/pkg/telemetry/logging"
)

var certsFlags struct {
	dir      string
	host     string
	password string
	format   string
	verbose  bool
}

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Certificate utilities",
	Long:  `Inspect the certificates Gatehouse would serve.`,
}

var certsInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the certificate served for a host",
	Long: `Resolve the certificate for a host from a certificate directory exactly as
the gateway does, then display it.

Resolution order:
  1. "{host}.crt" with "{host}.key", then "{host}.pfx" and "{host}.p12"
  2. a single generic .crt with a .key (a "{host}.pfx" bundle is written)
  3. the .crt sharing the most name tokens with the host, with its .key
  4. any .pfx/.p12 archive, preferring one that covers the host

Examples:
  gatehouse certs inspect --dir ./certs/shop --host shop.example.com
  gatehouse certs inspect --dir ./certs --host shop.example.com --password secret --format json`,
	Args: cobra.NoArgs,
	RunE: inspectCertificate,
}

func init() {
	rootCmd.AddCommand(certsCmd)
	certsCmd.AddCommand(certsInspectCmd)

	certsInspectCmd.Flags().StringVar(&certsFlags.dir, "dir", "", "certificate directory (required)")
	certsInspectCmd.Flags().StringVar(&certsFlags.host, "host", "", "host name to resolve (required)")
	certsInspectCmd.Flags().StringVar(&certsFlags.password, "password", "", "password for .pfx/.p12 archives")
	certsInspectCmd.Flags().StringVar(&certsFlags.format, "format", "text", "output format: text, json")
	certsInspectCmd.Flags().BoolVarP(&certsFlags.verbose, "verbose", "v", false, "log each resolution step")
	_ = certsInspectCmd.MarkFlagRequired("dir")
	_ = certsInspectCmd.MarkFlagRequired("host")
}

type certificateReport struct {
	Host               string    `json:"host"`
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	SerialNumber       string    `json:"serial_number"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	DaysUntilExpiry    int       `json:"days_until_expiry"`
	Warning            string    `json:"warning,omitempty"`
	DNSNames           []string  `json:"dns_names,omitempty"`
	IPAddresses        []string  `json:"ip_addresses,omitempty"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	PublicKeyAlgorithm string    `json:"public_key_algorithm"`
	ChainLength        int       `json:"chain_length"`
	CoversHost         bool      `json:"covers_host"`
}

func inspectCertificate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(certsFlags.format)
	if err != nil || format == cli.FormatCSV {
		return cli.NewConfigError("format", fmt.Sprintf("unsupported output format %q (use text or json)", certsFlags.format))
	}

	level := "warn"
	if certsFlags.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:         level,
		Format:        "text",
		RedactSecrets: true,
		Writer:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	loader := gwtls.NewLoader(logger)
	cert := loader.ResolveForHost(certsFlags.dir, certsFlags.host, certsFlags.password)
	if cert == nil {
		return cli.NewCommandError("certs inspect",
			fmt.Errorf("no usable certificate for %s in %s", certsFlags.host, certsFlags.dir))
	}

	report, err := buildReport(cert, certsFlags.host, time.Now())
	if err != nil {
		return cli.NewCommandError("certs inspect", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func buildReport(cert *tls.Certificate, host string, now time.Time) (*certificateReport, error) {
	info, err := gwtls.ExtractCertificateInfo(cert)
	if err != nil {
		return nil, err
	}

	r := &certificateReport{
		Host:               host,
		Subject:            info.Subject,
		Issuer:             info.Issuer,
		SerialNumber:       info.SerialNumber,
		NotBefore:          info.NotBefore,
		NotAfter:           info.NotAfter,
		DNSNames:           info.DNSNames,
		IPAddresses:        info.IPAddresses,
		SignatureAlgorithm: info.SignatureAlgorithm,
		PublicKeyAlgorithm: info.PublicKeyAlgorithm,
		ChainLength:        info.ChainLength,
		CoversHost:         gwtls.MatchesHost(cert, host),
	}
	if cert.Leaf != nil {
		r.DaysUntilExpiry, r.Warning = gwtls.CheckCertificateExpiration(cert.Leaf, now)
	}
	return r, nil
}

func printReport(out io.Writer, r *certificateReport) {
	fmt.Fprintf(out, "Certificate for: %s\n\n", r.Host)

	fmt.Fprintf(out, "Subject: %s\n", r.Subject)
	fmt.Fprintf(out, "Issuer:  %s\n", r.Issuer)

	fmt.Fprintln(out, "\nValidity:")
	fmt.Fprintf(out, "  Not Before: %s\n", r.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(out, "  Not After: %s\n", r.NotAfter.Format(time.RFC3339))
	fmt.Fprintf(out, "  Status: ✓ Valid (%d days remaining)\n", r.DaysUntilExpiry)
	if r.Warning != "" {
		fmt.Fprintf(out, "  Warning: ⚠  %s\n", r.Warning)
	}

	if len(r.DNSNames) > 0 || len(r.IPAddresses) > 0 {
		fmt.Fprintln(out, "\nSubject Alternative Names:")
		for _, san := range r.DNSNames {
			fmt.Fprintf(out, "  - DNS: %s\n", san)
		}
		for _, ip := range r.IPAddresses {
			fmt.Fprintf(out, "  - IP: %s\n", ip)
		}
	}

	fmt.Fprintln(out, "\nAlgorithms:")
	fmt.Fprintf(out, "  Signature Algorithm: %s\n", r.SignatureAlgorithm)
	fmt.Fprintf(out, "  Public Key Algorithm: %s\n", r.PublicKeyAlgorithm)

	fmt.Fprintln(out, "\nAdditional Information:")
	fmt.Fprintf(out, "  Serial Number: %s\n", r.SerialNumber)
	fmt.Fprintf(out, "  Chain Length: %d\n", r.ChainLength)
	covers := "yes"
	if !r.CoversHost {
		covers = "no (served as a fallback)"
	}
	fmt.Fprintf(out, "  Covers %s: %s\n", strings.ToLower(r.Host), covers)

}
