package email

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tripwire-io/tripwire/config"
)

// Config defines the SMTP configuration of the email sink.
type Config struct {
	Host         string     `yaml:"host" env:"HOST"`
	Port         int        `yaml:"port" env:"PORT" default:"587"`
	Username     string     `yaml:"username" env:"USERNAME"`
	Password     string     `yaml:"password" env:"PASSWORD,unset"` // #nosec G117 -- exported password field
	PasswordFile string     `yaml:"password_file" env:"PASSWORD_FILE"`
	From         string     `yaml:"from" env:"FROM"`
	To           []string   `yaml:"to" env:"TO" envSeparator:","`
	TlsOptions   config.TLS `yaml:",inline"`

	// Timeout bounds a whole delivery, from dialing the relay to QUIT.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" default:"10s"`
}

// Validate checks constraints in the supplied email configuration and returns an error if they are violated.
// Missing addresses are left to Sink.Validate, so that an unused sink does not prevent startup.
func (c *Config) Validate() error {
	if err := config.LoadPasswordFile(&c.Password, c.PasswordFile); err != nil {
		return err
	}

	if c.Port < 0 || c.Port > 65535 {
		return errors.Errorf("invalid SMTP port %d", c.Port)
	}

	if c.Timeout <= 0 {
		return errors.New("SMTP timeout must be positive")
	}

	return c.TlsOptions.Validate()
}
