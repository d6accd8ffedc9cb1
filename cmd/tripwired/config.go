package main

import (
	"net"

	"github.com/pkg/errors"
	"github.com/tripwire-io/tripwire/engine"
	"github.com/tripwire-io/tripwire/logging"
	"github.com/tripwire-io/tripwire/notify"
	"github.com/tripwire-io/tripwire/notify/email"
	"github.com/tripwire-io/tripwire/notify/logsink"
	"github.com/tripwire-io/tripwire/notify/telegram"
	"github.com/tripwire-io/tripwire/notify/webhook"
	"github.com/tripwire-io/tripwire/redis"
)

// defaultConfigPath is loaded unless another path is given with --config.
const defaultConfigPath = "/etc/tripwire/config.yml"

// Flags defines the command line flags of tripwired.
type Flags struct {
	Version bool   `long:"version" description:"print version and exit"`
	Config  string `short:"c" long:"config" description:"path to config file (default: /etc/tripwire/config.yml)"`
}

// GetConfigPath implements the config.Flags interface.
func (f Flags) GetConfigPath() string {
	if f.Config == "" {
		return defaultConfigPath
	}

	return f.Config
}

// IsExplicitConfigPath implements the config.Flags interface.
func (f Flags) IsExplicitConfigPath() bool {
	return f.Config != ""
}

// Config is the complete tripwired configuration.
type Config struct {
	Engine  engine.Config  `yaml:"engine" envPrefix:"ENGINE_"`
	Redis   redis.Config   `yaml:"redis" envPrefix:"REDIS_"`
	Logging logging.Config `yaml:"logging" envPrefix:"LOGGING_"`
	Sinks   SinksConfig    `yaml:"sinks" envPrefix:"SINKS_"`
	Metrics MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
}

// Validate implements the config.Validator interface.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return errors.Wrap(err, "invalid engine configuration")
	}
	if err := c.Redis.Validate(); err != nil {
		return errors.Wrap(err, "invalid Redis configuration")
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.Wrap(err, "invalid logging configuration")
	}
	if err := c.Sinks.Validate(); err != nil {
		return errors.Wrap(err, "invalid sink configuration")
	}

	return c.Metrics.Validate()
}

// SinksConfig holds the configuration of every notification sink. Sinks not listed in
// engine.notification_types may stay unconfigured.
type SinksConfig struct {
	Email    email.Config    `yaml:"email" envPrefix:"EMAIL_"`
	Webhook  webhook.Config  `yaml:"chat-webhook" envPrefix:"CHAT_WEBHOOK_"`
	Telegram telegram.Config `yaml:"telegram" envPrefix:"TELEGRAM_"`
}

// Validate implements the config.Validator interface.
func (c *SinksConfig) Validate() error {
	if err := c.Email.Validate(); err != nil {
		return errors.Wrap(err, email.Type)
	}
	if err := c.Webhook.Validate(); err != nil {
		return errors.Wrap(err, webhook.Type)
	}
	if err := c.Telegram.Validate(); err != nil {
		return errors.Wrap(err, telegram.Type)
	}

	return nil
}

// Build creates every sink, keyed by its notification type. The "test" sink logs to logger.
func (c *SinksConfig) Build(logger *logging.Logger) (map[string]notify.Sink, error) {
	tg, err := telegram.New(c.Telegram)
	if err != nil {
		return nil, err
	}

	return map[string]notify.Sink{
		email.Type:      email.New(c.Email),
		webhook.Type:    webhook.New(c.Webhook, "tripwired/"+version),
		telegram.Type:   tg,
		notify.TypeTest: logsink.New(logger),
	}, nil
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables the endpoint.
	Listen string `yaml:"listen" env:"LISTEN"`
}

// Validate implements the config.Validator interface.
func (c *MetricsConfig) Validate() error {
	if c.Listen == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.Wrap(err, "invalid metrics listen address")
	}

	return nil
}
