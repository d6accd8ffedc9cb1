// Package config loads tripwire configuration from a YAML file, environment variables and command line flags.
// Every configuration struct sets its defaults through `default` struct tags and checks itself via [Validator].
// TLS client settings shared by the Redis event source and the SMTP sink live in [TLS].
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/goccy/go-yaml"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// ErrInvalidArgument is returned by every loader if the target is not a non-nil struct pointer.
var ErrInvalidArgument = stderrors.New("invalid argument")

// ErrInvalidConfiguration is attached to errors returned by every loader when the Validate method of the target
// fails. errors.Is recognizes both ErrInvalidConfiguration and the original error returned from Validate.
var ErrInvalidConfiguration = stderrors.New("invalid configuration")

// FromYAMLFile parses the YAML file name into v, which must be a non-nil struct pointer.
// Defaults from `default` struct tags are applied first, unknown YAML keys are rejected and
// v is validated afterwards.
//
// Example usage:
//
//	type Config struct {
//		ThrottleWindow time.Duration `yaml:"throttle_window" default:"10s"`
//	}
//
//	func (c *Config) Validate() error {
//		if c.ThrottleWindow < 0 {
//			return errors.New("throttle_window must not be negative")
//		}
//
//		return nil
//	}
//
//	var cfg Config
//	if err := config.FromYAMLFile("/etc/tripwire/config.yml", &cfg); err != nil {
//		log.Fatalf("error loading config: %v", err)
//	}
func FromYAMLFile(name string, v Validator) error {
	if err := validateNonNilStructPointer(v); err != nil {
		return errors.WithStack(err)
	}

	// #nosec G304 -- the config file path is operator input.
	f, err := os.Open(name)
	if err != nil {
		return errors.Wrap(err, "can't open YAML file "+name)
	}
	defer func() { _ = f.Close() }()

	if err := defaults.Set(v); err != nil {
		return errors.Wrap(err, "can't set config defaults")
	}

	d := yaml.NewDecoder(f, yaml.DisallowUnknownField())
	if err := d.Decode(v); err != nil {
		// yaml.FormatError renders the source position of the offending node.
		err = errors.New(yaml.FormatError(err, true, true))
		return errors.Wrap(err, "can't parse YAML file "+name)
	}

	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.WithStack(err))
	}

	return nil
}

// EnvOptions is a type alias for [env.Options], so that only this package needs to import [env].
type EnvOptions = env.Options

// FromEnv parses environment variables into v, which must be a non-nil struct pointer.
// Defaults from `default` struct tags are applied first and v is validated afterwards.
//
// Example usage:
//
//	var cfg redis.Config
//	if err := config.FromEnv(&cfg, config.EnvOptions{Prefix: "TRIPWIRE_REDIS_"}); err != nil {
//		log.Fatalf("error loading config: %v", err)
//	}
func FromEnv(v Validator, options EnvOptions) error {
	if err := validateNonNilStructPointer(v); err != nil {
		return errors.WithStack(err)
	}

	if err := defaults.Set(v); err != nil {
		return errors.Wrap(err, "can't set config defaults")
	}

	if err := env.ParseWithOptions(v, options); err != nil {
		return errors.Wrap(err, "can't parse environment variables")
	}

	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.WithStack(err))
	}

	return nil
}

// LoadOptions contains options for loading configuration from both files and environment variables.
type LoadOptions struct {
	// Flags provides access to the config file path given on the command line.
	Flags Flags

	// EnvOptions contains options for loading configuration from environment variables.
	EnvOptions EnvOptions
}

// Load reads the YAML file named by options.Flags and then overlays environment variables onto v.
//
//  1. If only the YAML file is present, it is the sole source.
//  2. Environment variables supplement or override an incomplete YAML configuration.
//  3. If the default config file does not exist and no path was given explicitly,
//     the configuration comes entirely from the environment.
//
// Validation runs once more after the environment has been applied, so a YAML file that is
// invalid on its own is accepted as long as the environment completes it.
func Load(v Validator, options LoadOptions) error {
	if err := validateNonNilStructPointer(v); err != nil {
		return errors.WithStack(err)
	}

	var defaultFileMissing bool

	if err := FromYAMLFile(options.Flags.GetConfigPath(), v); err != nil {
		invalid := errors.Is(err, ErrInvalidConfiguration)
		defaultFileMissing = errors.Is(err, fs.ErrNotExist) && !options.Flags.IsExplicitConfigPath()
		if !(invalid || defaultFileMissing) {
			return errors.WithStack(err)
		}
	}

	if err := FromEnv(v, options.EnvOptions); err != nil {
		if defaultFileMissing {
			return stderrors.Join(
				errors.WithStack(err),
				fmt.Errorf(
					"default config file %s does not exist but can be ignored if"+
						" the configuration is intended to be entirely provided via environment variables",
					options.Flags.GetConfigPath(),
				),
			)
		}

		return errors.WithStack(err)
	}

	return nil
}

// ParseFlags parses command line flags into v, which must be a non-nil struct pointer.
//
// -h and --help print the usage to [os.Stdout] and exit the process.
// Other parse errors are returned and not printed.
//
// Example usage:
//
//	type Flags struct {
//		Config string `short:"c" long:"config" description:"path to config file"`
//	}
//
//	var f Flags
//	if err := config.ParseFlags(&f); err != nil {
//		log.Fatalf("error parsing flags: %v", err)
//	}
func ParseFlags(v any) error {
	if err := validateNonNilStructPointer(v); err != nil {
		return errors.WithStack(err)
	}

	parser := flags.NewParser(v, flags.Default^flags.PrintErrors)

	if _, err := parser.Parse(); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && errors.Is(flagErr.Type, flags.ErrHelp) {
			_, _ = fmt.Fprintln(os.Stdout, flagErr)
			os.Exit(0)
		}

		return errors.Wrap(err, "can't parse CLI flags")
	}

	return nil
}

// validateNonNilStructPointer returns an error if v is not a non-nil pointer to a struct.
func validateNonNilStructPointer(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.Wrapf(ErrInvalidArgument, "non-nil struct pointer expected, got %T", v)
	}

	return nil
}

// LoadPasswordFile fills password from the content of passwordFile, if given.
// Trailing newlines in the file are kept as they are. Setting a password different from the file
// content is an error. Loading the same file again is not, as Load validates configuration twice.
func LoadPasswordFile(password *string, passwordFile string) error {
	if passwordFile == "" {
		return nil
	}

	content, err := os.ReadFile(passwordFile) // #nosec G304 -- operator input
	if err != nil {
		return errors.Wrapf(err, "reading password file %q failed", passwordFile)
	}

	if *password != "" && *password != string(content) {
		return errors.New("both password and password file are set")
	}

	*password = string(content)

	return nil
}
