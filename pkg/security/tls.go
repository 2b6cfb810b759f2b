// Package security provides TLS 1.3 configuration helpers for the links
// between the console and the vehicle backend: HTTPS and WSS towards the
// backend, MQTTS towards a telemetry broker, and the simulator's listener.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Files names the PEM files of one endpoint. Empty fields are allowed: a
// client without CertFile/KeyFile connects without presenting a certificate,
// and an empty CAFile falls back to the system roots.
type Files struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// Enabled reports whether any TLS material is configured.
func (f Files) Enabled() bool {
	return f.CertFile != "" || f.KeyFile != "" || f.CAFile != ""
}

// Mutual reports whether a full key-pair plus CA is configured.
func (f Files) Mutual() bool {
	return f.CertFile != "" && f.KeyFile != "" && f.CAFile != ""
}

// TLSConfig builds a crypto/tls.Config that enforces TLS 1.3 with
// mutual authentication (mTLS).
//
// Parameters:
//   - certFile: path to the PEM-encoded certificate of this endpoint.
//   - keyFile:  path to the PEM-encoded private key of this endpoint.
//   - caFile:   path to the PEM-encoded CA certificate used to verify the peer.
func TLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}

	caPool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}, nil
}

// ServerTLSConfig creates a TLS config for the simulator listener. With a CA
// it requires the connecting console to present a certificate signed by it;
// without one it only serves its own certificate.
func ServerTLSConfig(f Files) (*tls.Config, error) {
	if f.CertFile == "" || f.KeyFile == "" {
		return nil, errors.New("security: server requires cert and key files")
	}
	if f.CAFile != "" {
		return TLSConfig(f.CertFile, f.KeyFile, f.CAFile)
	}
	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}, nil
}

// ClientTLSConfig creates a TLS config for the console side. It presents its
// own certificate when one is configured and verifies the server against
// CAFile, or against the system roots when CAFile is empty.
func ClientTLSConfig(f Files) (*tls.Config, error) {
	if f.Mutual() {
		cfg, err := TLSConfig(f.CertFile, f.KeyFile, f.CAFile)
		if err != nil {
			return nil, err
		}
		// ClientAuth is server-side only.
		cfg.ClientAuth = tls.NoClientCert
		return cfg, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS13}
	if (f.CertFile == "") != (f.KeyFile == "") {
		return nil, errors.New("security: cert and key files must be set together")
	}
	if f.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if f.CAFile != "" {
		pool, err := loadCAPool(f.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(caFile) // #nosec G304 caller-controlled path
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("security: failed to parse CA certificate %s", caFile)
	}
	return pool, nil
}
