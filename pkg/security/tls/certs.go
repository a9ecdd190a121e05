package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"mercator-hq/gatehouse/internal/hostname"
)

// expiryWarningDays is the remaining validity below which loads log a warning.
const expiryWarningDays = 30

// ValidateCertificate checks if a certificate is currently within its
// validity window.
func ValidateCertificate(cert *tls.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}

	leaf, err := leafOf(cert)
	if err != nil {
		return err
	}

	return ValidateX509Certificate(leaf, time.Now())
}

// ValidateX509Certificate validates an x509 certificate for expiration at now.
// notAfter itself is still valid.
func ValidateX509Certificate(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid (valid from %s)", cert.NotBefore.Format(time.RFC3339))
	}

	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired on %s", cert.NotAfter.Format(time.RFC3339))
	}

	return nil
}

// CheckCertificateExpiration returns the number of days until expiration and
// a warning if fewer than 30 remain.
func CheckCertificateExpiration(cert *x509.Certificate, now time.Time) (daysUntilExpiry int, warning string) {
	duration := cert.NotAfter.Sub(now)
	daysUntilExpiry = int(duration.Hours() / 24)

	if daysUntilExpiry < expiryWarningDays {
		warning = fmt.Sprintf("certificate expires in %d days (on %s)",
			daysUntilExpiry, cert.NotAfter.Format("2006-01-02"))
	}

	return daysUntilExpiry, warning
}

// MatchesHost reports whether cert covers host. SAN DNS names are checked
// first, exact or as a single-label wildcard; the subject common name is the
// fallback. Comparison is case-insensitive and ignores any port.
func MatchesHost(cert *tls.Certificate, host string) bool {
	if cert == nil {
		return false
	}

	leaf, err := leafOf(cert)
	if err != nil {
		return false
	}

	return matchesX509Host(leaf, host)
}

func matchesX509Host(leaf *x509.Certificate, host string) bool {
	h := hostname.Normalize(host)
	if h == "" {
		return false
	}

	for _, name := range leaf.DNSNames {
		if matchPattern(strings.ToLower(name), h) {
			return true
		}
	}

	cn := strings.ToLower(strings.TrimSpace(leaf.Subject.CommonName))
	return cn != "" && matchPattern(cn, h)
}

// matchPattern matches host against a DNS name that may start with "*.".
// A wildcard covers exactly one additional label, and what it covers must
// itself have at least two labels.
func matchPattern(pattern, host string) bool {
	pattern = strings.TrimSuffix(pattern, ".")

	suffix, ok := strings.CutPrefix(pattern, "*.")
	if !ok {
		return pattern == host
	}

	label, rest, found := strings.Cut(host, ".")
	if !found || label == "" {
		return false
	}

	return rest == suffix && strings.Count(rest, ".") >= 1
}

// leafOf returns the parsed leaf, parsing and caching it if needed.
func leafOf(cert *tls.Certificate) (*x509.Certificate, error) {
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}

	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("certificate chain is empty")
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return leaf, nil
}

// CertificateInfo holds human-readable information from a certificate.
type CertificateInfo struct {
	Subject            string
	Issuer             string
	SerialNumber       string
	NotBefore          time.Time
	NotAfter           time.Time
	DNSNames           []string
	IPAddresses        []string
	SignatureAlgorithm string
	PublicKeyAlgorithm string
	ChainLength        int
}

// ExtractCertificateInfo extracts information from a loaded certificate.
func ExtractCertificateInfo(cert *tls.Certificate) (*CertificateInfo, error) {
	leaf, err := leafOf(cert)
	if err != nil {
		return nil, err
	}

	info := &CertificateInfo{
		Subject:            leaf.Subject.String(),
		Issuer:             leaf.Issuer.String(),
		SerialNumber:       fmt.Sprintf("%x", leaf.SerialNumber),
		NotBefore:          leaf.NotBefore,
		NotAfter:           leaf.NotAfter,
		DNSNames:           leaf.DNSNames,
		SignatureAlgorithm: leaf.SignatureAlgorithm.String(),
		PublicKeyAlgorithm: leaf.PublicKeyAlgorithm.String(),
		ChainLength:        len(cert.Certificate),
	}

	for _, ip := range leaf.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}

	return info, nil
}
