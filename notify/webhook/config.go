package webhook

import (
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/tripwire-io/tripwire/config"
)

// Config defines the chat webhook sink configuration.
type Config struct {
	URL          string        `yaml:"url" env:"URL"`
	Username     string        `yaml:"username" env:"USERNAME"`
	Password     string        `yaml:"password" env:"PASSWORD,unset"` // #nosec G117 -- exported password field
	PasswordFile string        `yaml:"password_file" env:"PASSWORD_FILE"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT" default:"10s"`
	RateLimit    float64       `yaml:"rate_limit" env:"RATE_LIMIT" default:"1"`
	Burst        int           `yaml:"burst" env:"BURST" default:"5"`
}

// Validate checks constraints in the supplied webhook configuration and returns an error if they are violated.
// An empty URL is not an error here. The resulting sink reports it as missing configuration instead,
// so that an unused sink does not prevent startup.
func (c *Config) Validate() error {
	if err := config.LoadPasswordFile(&c.Password, c.PasswordFile); err != nil {
		return err
	}

	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return errors.Wrap(err, "invalid webhook URL")
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
		}

		if u.Host == "" {
			return errors.New("webhook URL must include a host")
		}
	}

	if c.Username != "" && c.Password == "" {
		return errors.New("webhook password must be set, if username is provided")
	}

	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}

	if c.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}

	if c.Burst < 0 {
		return errors.New("burst must not be negative")
	}

	return nil
}
