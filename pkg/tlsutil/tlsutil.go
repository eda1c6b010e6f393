// Package tlsutil builds client-side tls.Config values for broker and store connections.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/semlink/errors"
)

var minVersions = map[string]uint16{
	"":    tls.VersionTLS12,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// ClientConfig holds TLS settings for outbound connections.
// CAFiles are trusted in addition to the system bundle.
type ClientConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	CAFiles  []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	CertFile string   `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string   `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	// InsecureSkipVerify disables server verification. Test rigs only.
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	MinVersion         string `json:"min_version,omitempty" yaml:"min_version,omitempty"` // "1.2" (default) or "1.3"
	ServerName         string `json:"server_name,omitempty" yaml:"server_name,omitempty"`
}

// Validate checks that a client certificate comes with its key and that MinVersion is known
func (c ClientConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tlsutil", "Validate",
			"check client certificate: cert_file and key_file must be set together")
	}
	if _, ok := minVersions[c.MinVersion]; !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: min_version %q", errors.ErrInvalidConfig, c.MinVersion),
			"tlsutil", "Validate", "check min_version")
	}
	return nil
}

// LoadClientConfig creates a tls.Config from cfg. It returns nil, nil when TLS is disabled.
func LoadClientConfig(cfg ClientConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	roots, err := rootPool(cfg.CAFiles)
	if err != nil {
		return nil, err
	}

	out := &tls.Config{
		MinVersion:         minVersions[cfg.MinVersion],
		ServerName:         cfg.ServerName,
		RootCAs:            roots,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CertFile != "" {
		pair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", "load client key pair")
		}
		out.Certificates = []tls.Certificate{pair}
	}
	return out, nil
}

func rootPool(caFiles []string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	for _, path := range caFiles {
		pemData, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientConfig", "read CA file "+path)
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.WrapFatal(fmt.Errorf("%w: no certificates in %s", errors.ErrInvalidData, path),
				"tlsutil", "LoadClientConfig", "parse CA file")
		}
	}
	return pool, nil
}
