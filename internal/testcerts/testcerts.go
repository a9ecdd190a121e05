// Package testcerts generates throwaway certificates for tests.
package testcerts

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// KeyType selects the key algorithm of a generated certificate.
type KeyType int

const (
	// ECDSA generates a P-256 key. It is fast and the default.
	ECDSA KeyType = iota
	// RSA generates a 2048-bit RSA key.
	RSA
)

// Options describes a certificate to generate.
type Options struct {
	CommonName string
	DNSNames   []string
	NotBefore  time.Time
	NotAfter   time.Time
	KeyType    KeyType
}

// Pair holds PEM-encoded certificate and key material.
type Pair struct {
	CertPEM []byte
	KeyPEM  []byte
	Cert    *x509.Certificate
	Key     crypto.PrivateKey
}

// Generate creates a self-signed certificate. Zero validity fields default to
// one hour ago through one year from now.
func Generate(t testing.TB, opts Options) *Pair {
	t.Helper()

	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(365 * 24 * time.Hour)
	}

	var (
		key    crypto.Signer
		keyPEM []byte
	)
	switch opts.KeyType {
	case RSA:
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate RSA key: %v", err)
		}
		key = k
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)})
	default:
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("generate EC key: %v", err)
		}
		der, err := x509.MarshalECPrivateKey(k)
		if err != nil {
			t.Fatalf("marshal EC key: %v", err)
		}
		key = k
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		t.Fatalf("serial: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: opts.CommonName},
		DNSNames:              opts.DNSNames,
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	return &Pair{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  keyPEM,
		Cert:    cert,
		Key:     key,
	}
}

// WriteFiles writes the pair as "{base}.crt" and "{base}.key" into dir.
func (p *Pair) WriteFiles(t testing.TB, dir, base string) (certPath, keyPath string) {
	t.Helper()

	certPath = filepath.Join(dir, base+".crt")
	keyPath = filepath.Join(dir, base+".key")

	if err := os.WriteFile(certPath, p.CertPEM, 0o600); err != nil {
		t.Fatalf("write %s: %v", certPath, err)
	}
	if err := os.WriteFile(keyPath, p.KeyPEM, 0o600); err != nil {
		t.Fatalf("write %s: %v", keyPath, err)
	}

	return certPath, keyPath
}

// WriteCert writes only the certificate as "{name}" into dir.
func (p *Pair) WriteCert(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, p.CertPEM, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteKey writes only the private key as "{name}" into dir.
func (p *Pair) WriteKey(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, p.KeyPEM, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// TLSCertificate returns the pair as a tls.Certificate with Leaf set.
func (p *Pair) TLSCertificate(t testing.TB) *tls.Certificate {
	t.Helper()
	cert, err := tls.X509KeyPair(p.CertPEM, p.KeyPEM)
	if err != nil {
		t.Fatalf("build key pair: %v", err)
	}
	cert.Leaf = p.Cert
	return &cert
}
