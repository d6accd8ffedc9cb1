package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

// Options map child logger names to their log level, e.g. {"engine": debug, "sweeper": warn}.
type Options map[string]zapcore.Level

// UnmarshalText implements encoding.TextUnmarshaler so that Options can be read from a single
// environment variable in the form "name:level,name:level".
func (o *Options) UnmarshalText(text []byte) error {
	parsed := make(map[string]zapcore.Level)

	for _, entry := range strings.Split(string(text), ",") {
		name, rawLevel, found := strings.Cut(entry, ":")
		if !found {
			return fmt.Errorf("entry %q cannot be unmarshalled as an Option entry", entry)
		}

		level, err := zapcore.ParseLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("entry %q cannot be unmarshalled as level, %w", entry, err)
		}

		parsed[name] = level
	}

	*o = parsed
	return nil
}

// UnmarshalYAML reads Options from a YAML mapping of logger names to level names.
func (o *Options) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]string
	if err := unmarshal(&raw); err != nil {
		return err
	}

	parsed := make(map[string]zapcore.Level, len(raw))
	for name, rawLevel := range raw {
		level, err := zapcore.ParseLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("option %q cannot be unmarshalled as level, %w", name, err)
		}

		parsed[name] = level
	}

	*o = parsed
	return nil
}

// Config defines Logger configuration.
type Config struct {
	// zapcore.Level at 0 is for info level.
	Level  zapcore.Level `yaml:"level" env:"LEVEL" default:"0"`
	Output string        `yaml:"output" env:"OUTPUT"`
	// Interval for periodic logging, e.g. the engine's decision statistics.
	Interval time.Duration `yaml:"interval" env:"INTERVAL" default:"20s"`

	// Options is a named field: embedded, its UnmarshalText would be promoted onto Config.
	Options Options `yaml:"options" env:"OPTIONS"`
}

// SetDefaults implements defaults.Setter and picks the log output if none is configured:
// systemd-journald when running as a systemd notify service, stderr otherwise.
func (c *Config) SetDefaults() {
	if !defaults.CanUpdate(c.Output) {
		return
	}

	// systemd sets NOTIFY_SOCKET for Type=notify units, which is how tripwired is shipped.
	if _, ok := os.LookupEnv("NOTIFY_SOCKET"); ok {
		c.Output = JOURNAL
	} else {
		c.Output = CONSOLE
	}
}

// Validate checks constraints in the configuration and returns an error if they are violated.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("periodic logging interval must be positive")
	}

	return AssertOutput(c.Output)
}

// AssertOutput returns an error if o is not a valid logger output.
func AssertOutput(o string) error {
	if o == CONSOLE || o == JOURNAL {
		return nil
	}

	return invalidOutput(o)
}

func invalidOutput(o string) error {
	return fmt.Errorf("%s is not a valid logger output. Must be either %q or %q", o, CONSOLE, JOURNAL)
}
