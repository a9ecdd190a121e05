package tls

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrKeyMismatch is returned when a private key does not belong to the
// certificate it is paired with.
var ErrKeyMismatch = errors.New("private key does not match certificate public key")

// parsePrivateKeyPEM parses the first private key block in data. PKCS#1 RSA,
// SEC 1 EC and PKCS#8 (RSA, EC or Ed25519) encodings are accepted.
func parsePrivateKeyPEM(data []byte) (crypto.PrivateKey, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, fmt.Errorf("no private key PEM block found")
		}

		switch block.Type {
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			return x509.ParseECPrivateKey(block.Bytes)
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			switch key.(type) {
			case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
				return key, nil
			default:
				return nil, fmt.Errorf("unsupported PKCS#8 key type %T", key)
			}
		case "ENCRYPTED PRIVATE KEY":
			return nil, fmt.Errorf("encrypted PEM private keys are not supported")
		}
	}
}

// parseCertificatesPEM parses every CERTIFICATE block in data.
func parseCertificatesPEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificate PEM block found")
	}

	return certs, nil
}

// readCertificatesFile reads and parses a PEM certificate file.
func readCertificatesFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseCertificatesPEM(data)
}

// readPrivateKeyFile reads and parses a PEM private key file.
func readPrivateKeyFile(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parsePrivateKeyPEM(data)
}

// checkKeyPair verifies that key is the private half of cert's public key.
// RSA keys must share modulus and exponent; EC keys must share curve and
// public point.
func checkKeyPair(cert *x509.Certificate, key crypto.PrivateKey) error {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return fmt.Errorf("%w: certificate is RSA, key is %T", ErrKeyMismatch, key)
		}
		if pub.N.Cmp(priv.N) != 0 || pub.E != priv.E {
			return fmt.Errorf("%w: RSA modulus differs", ErrKeyMismatch)
		}
		return nil

	case *ecdsa.PublicKey:
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return fmt.Errorf("%w: certificate is EC, key is %T", ErrKeyMismatch, key)
		}
		if pub.Curve != priv.Curve || pub.X.Cmp(priv.X) != 0 || pub.Y.Cmp(priv.Y) != 0 {
			return fmt.Errorf("%w: EC public point differs", ErrKeyMismatch)
		}
		return nil

	case ed25519.PublicKey:
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return fmt.Errorf("%w: certificate is Ed25519, key is %T", ErrKeyMismatch, key)
		}
		derived, _ := priv.Public().(ed25519.PublicKey)
		if !bytes.Equal(pub, derived) {
			return fmt.Errorf("%w: Ed25519 public key differs", ErrKeyMismatch)
		}
		return nil

	default:
		return fmt.Errorf("unsupported public key type %T", cert.PublicKey)
	}
}
