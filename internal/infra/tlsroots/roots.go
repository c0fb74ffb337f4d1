package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound is returned when a CA file holds no certificates.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

// MinVersion is the lowest TLS version tokgate accepts or offers.
const MinVersion = tls.VersionTLS12

// ClientConfig returns a client TLS config trusting the system roots and,
// when caFile is set, the certificates in caFile.
func ClientConfig(caFile string) (*tls.Config, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if caFile != "" {
		data, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: read ca file %s: %w", caFile, err)
		}
		if err := AddPEM(pool, data); err != nil {
			return nil, fmt.Errorf("%w: %s", err, caFile)
		}
	}
	return &tls.Config{RootCAs: pool, MinVersion: MinVersion}, nil
}

// AddPEM adds every CERTIFICATE block in pemData to pool.
func AddPEM(pool *x509.CertPool, pemData []byte) error {
	added := 0
	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		pool.AddCert(cert)
		added++
	}
	if added == 0 {
		return ErrNoCertsFound
	}
	return nil
}
