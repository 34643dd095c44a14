// Package tlsutil builds tls.Config values for management endpoint transports.
//
// An endpoint's sslOption names the enabled protocols the JMX way
// ("TLSv1.2,TLSv1.3"); ProtocolVersions maps that list onto the
// MinVersion/MaxVersion pair crypto/tls understands.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/markheger/streamsx.metrics/errors"
)

// ClientConfig configures the client side of an endpoint connection.
type ClientConfig struct {
	// Protocols lists enabled protocols, e.g. "TLSv1.2". Empty allows TLS 1.2 and newer.
	Protocols []string `json:"protocols,omitempty"`
	// CAFiles are trusted in addition to the system pool.
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"`
	ServerName         string   `json:"server_name,omitempty"`

	// CertFile and KeyFile enable a client certificate when both are set.
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

var protocolVersions = map[string]uint16{
	"tlsv1":   tls.VersionTLS10,
	"tlsv1.0": tls.VersionTLS10,
	"tlsv1.1": tls.VersionTLS11,
	"tlsv1.2": tls.VersionTLS12,
	"tlsv1.3": tls.VersionTLS13,
	"tls":     tls.VersionTLS12,
	"1.0":     tls.VersionTLS10,
	"1.1":     tls.VersionTLS11,
	"1.2":     tls.VersionTLS12,
	"1.3":     tls.VersionTLS13,
}

// ProtocolVersions returns the lowest and highest versions named in protocols.
// An empty list yields TLS 1.2 as minimum and no maximum.
func ProtocolVersions(protocols []string) (minVersion, maxVersion uint16, err error) {
	if len(protocols) == 0 {
		return tls.VersionTLS12, 0, nil
	}
	for _, p := range protocols {
		v, ok := protocolVersions[strings.ToLower(strings.TrimSpace(p))]
		if !ok {
			return 0, 0, errors.WrapInvalid(
				fmt.Errorf("%w: unknown TLS protocol %q", errors.ErrInvalidConfig, p),
				"tlsutil", "ProtocolVersions", "parse sslOption")
		}
		if minVersion == 0 || v < minVersion {
			minVersion = v
		}
		if v > maxVersion {
			maxVersion = v
		}
	}
	return minVersion, maxVersion, nil
}

// LoadClientTLSConfig creates a tls.Config for endpoint clients.
// The system CA bundle is always used; CAFiles are additional trusted CAs.
func LoadClientTLSConfig(cfg ClientConfig) (*tls.Config, error) {
	minVersion, maxVersion, err := ProtocolVersions(cfg.Protocols)
	if err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{
		MinVersion: minVersion,
		MaxVersion: maxVersion,
		ServerName: cfg.ServerName,
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	for _, caFile := range cfg.CAFiles {
		if err := appendCAFile(rootCAs, caFile); err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", fmt.Sprintf("load CA file %s", caFile))
		}
	}
	tlsConfig.RootCAs = rootCAs

	// Set only through configuration; operators own that choice.
	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// LoadServerTLSConfig creates a tls.Config for servers from a certificate pair,
// restricted to protocols.
func LoadServerTLSConfig(certFile, keyFile string, protocols []string) (*tls.Config, error) {
	minVersion, maxVersion, err := ProtocolVersions(protocols)
	if err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
	}, nil
}

func appendCAFile(pool *x509.CertPool, caFile string) error {
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return err
	}
	if !pool.AppendCertsFromPEM(caPEM) {
		return fmt.Errorf("invalid PEM data in %s", caFile)
	}
	return nil
}
