package tls

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	"mercator-hq/gatehouse/internal/hostname"
)

// File extensions recognized in a certificate directory.
const (
	ExtCertificate = ".crt"
	ExtKey         = ".key"
	ExtPFX         = ".pfx"
	ExtP12         = ".p12"
	ExtCABundle    = ".ca-bundle"
)

// WatchedExtensions lists the extensions whose changes trigger a reload.
var WatchedExtensions = []string{ExtCertificate, ExtKey, ExtPFX, ExtP12}

// Loader resolves certificate material for a host from a directory.
// It keeps no state between calls; every error is logged and reported as a
// nil certificate.
type Loader struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewLoader creates a loader. A nil logger uses slog.Default().
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		logger: logger.With("component", "tls.loader"),
		now:    time.Now,
	}
}

// dirListing indexes a certificate directory by lowercase file name.
type dirListing struct {
	dir      string
	files    map[string]os.FileInfo
	certs    []string
	keys     []string
	archives []string
}

func scanDirectory(dir string) (*dirListing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	l := &dirListing{dir: dir, files: make(map[string]os.FileInfo)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		name := e.Name()
		l.files[strings.ToLower(name)] = info

		switch strings.ToLower(filepath.Ext(name)) {
		case ExtCertificate:
			l.certs = append(l.certs, name)
		case ExtKey:
			l.keys = append(l.keys, name)
		case ExtPFX, ExtP12:
			l.archives = append(l.archives, name)
		}
	}

	sort.Strings(l.certs)
	sort.Strings(l.keys)
	sort.Strings(l.archives)

	return l, nil
}

// lookup returns the path of a file by case-insensitive name.
func (l *dirListing) lookup(name string) (string, os.FileInfo, bool) {
	info, ok := l.files[strings.ToLower(name)]
	if !ok {
		return "", nil, false
	}
	return filepath.Join(l.dir, info.Name()), info, true
}

// ResolveForHost finds a certificate for host in dir. It tries, in order,
// exact "{host}" file names, synthesis from a single generic .crt/.key pair,
// token matching among several .crt files, and finally any archive present.
// It returns nil if nothing usable is found.
func (l *Loader) ResolveForHost(dir, host, password string) *tls.Certificate {
	h := hostname.Normalize(host)
	if dir == "" || h == "" {
		return nil
	}

	listing, err := scanDirectory(dir)
	if err != nil {
		l.logger.Warn("failed to read certificate directory",
			"cert_dir", dir,
			"host", h,
			"error", err,
		)
		return nil
	}

	cert, source := l.resolve(listing, h, password)
	if cert == nil {
		l.logger.Warn("no usable certificate found",
			"cert_dir", dir,
			"host", h,
		)
		return nil
	}

	if !l.IsValid(cert) {
		return nil
	}

	l.logger.Info("certificate loaded",
		"host", h,
		"source", source,
		"subject", cert.Leaf.Subject.CommonName,
		"expires_at", cert.Leaf.NotAfter.Format(time.RFC3339),
	)

	return cert
}

func (l *Loader) resolve(listing *dirListing, host, password string) (*tls.Certificate, string) {
	// 1. Exact file names.
	if crtPath, _, ok := listing.lookup(host + ExtCertificate); ok {
		if keyPath, _, ok := listing.lookup(host + ExtKey); ok {
			if cert := l.loadPair(crtPath, keyPath, host); cert != nil {
				return cert, crtPath
			}
		}
	}

	for _, ext := range []string{ExtPFX, ExtP12} {
		path, info, ok := listing.lookup(host + ext)
		if !ok {
			continue
		}
		if ext == ExtPFX && l.cacheIsStale(listing, info) {
			l.logger.Info("cached bundle older than source material, re-synthesizing",
				"path", path,
			)
			continue
		}
		if cert := l.loadArchive(path, password); cert != nil {
			return cert, path
		}
	}

	// 2. A single generic certificate with at least one key.
	if len(listing.certs) == 1 && len(listing.keys) >= 1 {
		crtPath := filepath.Join(listing.dir, listing.certs[0])
		for _, key := range listing.keys {
			keyPath := filepath.Join(listing.dir, key)
			if cert := l.SynthesizeBundle(crtPath, keyPath, host, password); cert != nil {
				return cert, crtPath
			}
		}
	}

	// 3. Several certificates: pick by shared name tokens.
	if len(listing.certs) > 1 {
		if crt := pickByTokens(listing.certs, host); crt != "" {
			crtPath := filepath.Join(listing.dir, crt)
			base := strings.TrimSuffix(crt, filepath.Ext(crt))
			if keyPath, _, ok := listing.lookup(base + ExtKey); ok {
				if cert := l.loadPair(crtPath, keyPath, host); cert != nil {
					return cert, crtPath
				}
			}
		}
	}

	// 4. Any archive, preferring one that covers the host.
	var fallback *tls.Certificate
	var fallbackPath string
	for _, name := range listing.archives {
		path := filepath.Join(listing.dir, name)
		cert := l.loadArchive(path, password)
		if cert == nil {
			continue
		}
		if MatchesHost(cert, host) {
			return cert, path
		}
		if fallback == nil {
			fallback, fallbackPath = cert, path
		}
	}

	return fallback, fallbackPath
}

// cacheIsStale reports whether a cached archive predates the single generic
// certificate/key pair it would be synthesized from.
func (l *Loader) cacheIsStale(listing *dirListing, archive os.FileInfo) bool {
	if len(listing.certs) != 1 || len(listing.keys) == 0 {
		return false
	}

	sources := append([]string{listing.certs[0]}, listing.keys...)
	for _, name := range sources {
		if _, info, ok := listing.lookup(name); ok && info.ModTime().After(archive.ModTime()) {
			return true
		}
	}

	return false
}

// pickByTokens returns the certificate file name sharing the most name
// tokens with host. The TLD and "www" never count.
func pickByTokens(certs []string, host string) string {
	hostTokens := hostname.Tokens(host)
	if len(hostTokens) > 1 {
		hostTokens = hostTokens[:len(hostTokens)-1]
	}

	wanted := make(map[string]struct{}, len(hostTokens))
	for _, t := range hostTokens {
		if t != "www" {
			wanted[t] = struct{}{}
		}
	}

	best, bestScore := "", 0
	for _, name := range certs {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		score := 0
		for _, t := range hostname.Tokens(base) {
			if _, ok := wanted[t]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = name, score
		}
	}

	return best
}

// SynthesizeBundle pairs a PEM leaf certificate with a PEM private key,
// appends a chain from "{basename}.ca-bundle" or "{host}.ca-bundle" when one
// exists, verifies that the key belongs to the certificate, and caches the
// result as "{host}.pfx" next to the sources. A mismatched pair yields nil.
func (l *Loader) SynthesizeBundle(leafPath, keyPath, host, password string) *tls.Certificate {
	leaf, chain, key, err := l.readPair(leafPath, keyPath, host)
	if err != nil {
		l.logger.Warn("failed to synthesize certificate bundle",
			"cert_file", leafPath,
			"key_file", keyPath,
			"error", err,
		)
		return nil
	}

	cert := buildCertificate(leaf, chain, key)

	dir := filepath.Dir(leafPath)
	out := filepath.Join(dir, hostname.Normalize(host)+ExtPFX)
	if err := writeArchive(out, leaf, chain, key, password); err != nil {
		// The in-memory certificate is still usable; only the cache failed.
		l.logger.Warn("failed to cache synthesized bundle",
			"path", out,
			"error", err,
		)
	} else {
		l.logger.Info("synthesized certificate bundle",
			"path", out,
			"chain_length", len(chain),
		)
	}

	return cert
}

// loadPair loads a PEM certificate and key without writing an archive.
func (l *Loader) loadPair(crtPath, keyPath, host string) *tls.Certificate {
	leaf, chain, key, err := l.readPair(crtPath, keyPath, host)
	if err != nil {
		l.logger.Warn("failed to load certificate pair",
			"cert_file", crtPath,
			"key_file", keyPath,
			"error", err,
		)
		return nil
	}
	return buildCertificate(leaf, chain, key)
}

func (l *Loader) readPair(crtPath, keyPath, host string) (*x509.Certificate, []*x509.Certificate, crypto.PrivateKey, error) {
	certs, err := readCertificatesFile(crtPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read certificate: %w", err)
	}

	key, err := readPrivateKeyFile(keyPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read private key: %w", err)
	}

	leaf := certs[0]
	if err := checkKeyPair(leaf, key); err != nil {
		return nil, nil, nil, err
	}

	chain := certs[1:]
	if extra := l.readChain(crtPath, host); len(extra) > 0 {
		chain = append(chain, extra...)
	}

	return leaf, chain, key, nil
}

// readChain loads "{basename}.ca-bundle", falling back to "{host}.ca-bundle".
func (l *Loader) readChain(crtPath, host string) []*x509.Certificate {
	dir := filepath.Dir(crtPath)
	base := strings.TrimSuffix(filepath.Base(crtPath), filepath.Ext(crtPath))

	candidates := []string{filepath.Join(dir, base+ExtCABundle)}
	if h := hostname.Normalize(host); h != "" && h != base {
		candidates = append(candidates, filepath.Join(dir, h+ExtCABundle))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		chain, err := readCertificatesFile(path)
		if err != nil {
			l.logger.Warn("ignoring unreadable CA bundle", "path", path, "error", err)
			continue
		}
		return chain
	}

	return nil
}

// loadArchive decodes a PKCS#12 archive.
func (l *Loader) loadArchive(path, password string) *tls.Certificate {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("failed to read certificate archive", "path", path, "error", err)
		return nil
	}

	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		l.logger.Warn("failed to decode certificate archive", "path", path, "error", err)
		return nil
	}

	if err := checkKeyPair(leaf, key); err != nil {
		l.logger.Warn("certificate archive key mismatch", "path", path, "error", err)
		return nil
	}

	return buildCertificate(leaf, chain, key)
}

func writeArchive(path string, leaf *x509.Certificate, chain []*x509.Certificate, key crypto.PrivateKey, password string) error {
	data, err := pkcs12.Modern.Encode(key, leaf, chain, password)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return nil
}

func buildCertificate(leaf *x509.Certificate, chain []*x509.Certificate, key crypto.PrivateKey) *tls.Certificate {
	raw := make([][]byte, 0, 1+len(chain))
	raw = append(raw, leaf.Raw)
	for _, c := range chain {
		raw = append(raw, c.Raw)
	}

	return &tls.Certificate{
		Certificate: raw,
		PrivateKey:  key,
		Leaf:        leaf,
	}
}

// IsValid reports whether cert is inside its validity window and logs a
// warning when fewer than 30 days remain.
func (l *Loader) IsValid(cert *tls.Certificate) bool {
	if cert == nil {
		return false
	}

	leaf, err := leafOf(cert)
	if err != nil {
		l.logger.Warn("invalid certificate", "error", err)
		return false
	}

	now := l.now()
	if err := ValidateX509Certificate(leaf, now); err != nil {
		l.logger.Warn("certificate outside validity window",
			"subject", leaf.Subject.CommonName,
			"error", err,
		)
		return false
	}

	if days, warning := CheckCertificateExpiration(leaf, now); warning != "" {
		l.logger.Warn("certificate expiring soon",
			"subject", leaf.Subject.CommonName,
			"expires_in_days", days,
			"expires_at", leaf.NotAfter.Format(time.RFC3339),
		)
	}

	return true
}
