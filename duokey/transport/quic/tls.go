package quic

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

const (
	ALPN = "duokey/1"

	// DefaultServerName is the common name of listener certificates.
	DefaultServerName = "duokey"

	certLifetime = 24 * time.Hour
)

// NewServerTLSConfig returns a TLS config holding a fresh, throwaway
// certificate issued to serverName. Certificates are never verified: peers
// are authenticated by their signed announcements.
func NewServerTLSConfig(serverName string) (*tls.Config, error) {
	cert, err := ephemeralCertificate(serverName)
	if err != nil {
		return nil, fmt.Errorf("quic: server certificate: %w", err)
	}
	cfg := baseTLSConfig()
	cfg.Certificates = []tls.Certificate{cert}
	return cfg, nil
}

// NewClientTLSConfig needs no certificate of its own.
func NewClientTLSConfig(serverName string) *tls.Config {
	cfg := baseTLSConfig()
	cfg.ServerName = serverName
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if cs.NegotiatedProtocol != ALPN {
			return fmt.Errorf("quic: server speaks %q, not %q", cs.NegotiatedProtocol, ALPN)
		}
		return nil
	}
	return cfg
}

func baseTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS13,
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true,
	}
}

func ephemeralCertificate(commonName string) (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, err
	}

	now := time.Now()
	tpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv, Leaf: leaf}, nil
}
