package config

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/pkg/errors"
)

// TLS holds client TLS settings for outbound connections to Redis or an SMTP relay.
// The zero value disables TLS.
type TLS struct {
	Enable bool `yaml:"tls" env:"TLS"`

	// Cert and Key are paths to a PEM encoded client certificate and its private key.
	// Either both or neither must be given.
	Cert string `yaml:"cert" env:"CERT"`
	Key  string `yaml:"key" env:"KEY"`

	// Ca is the path to a PEM bundle used instead of the system roots.
	Ca string `yaml:"ca" env:"CA"`

	// Insecure disables verification of the server certificate. Ca is ignored then.
	Insecure bool `yaml:"insecure" env:"INSECURE"`
}

// MakeConfig returns a *tls.Config for connecting to serverName, or nil if TLS is disabled.
func (t *TLS) MakeConfig(serverName string) (*tls.Config, error) {
	if !t.Enable {
		return nil, nil
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	c := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: serverName}

	if t.Cert != "" {
		crt, err := tls.LoadX509KeyPair(t.Cert, t.Key)
		if err != nil {
			return nil, errors.Wrap(err, "can't load X.509 key pair")
		}

		c.Certificates = []tls.Certificate{crt}
	}

	switch {
	case t.Insecure:
		c.InsecureSkipVerify = true // #nosec G402 -- explicitly requested by the operator
	case t.Ca != "":
		pool, err := loadCertPool(t.Ca)
		if err != nil {
			return nil, err
		}

		c.RootCAs = pool
	}

	return c, nil
}

// Validate checks that certificate and key are given together, implements [Validator].
func (t *TLS) Validate() error {
	if !t.Enable {
		return nil
	}

	switch {
	case t.Cert != "" && t.Key == "":
		return errors.New("client certificate given, but private key missing")
	case t.Cert == "" && t.Key != "":
		return errors.New("private key given, but client certificate missing")
	}

	return nil
}

func loadCertPool(name string) (*x509.CertPool, error) {
	// #nosec G304 -- the CA path is operator input.
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "can't read CA file")
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, errors.Errorf("can't parse CA file %q", name)
	}

	return pool, nil
}
