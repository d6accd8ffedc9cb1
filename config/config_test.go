package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tripwire-io/tripwire/testutils"
)

type simpleValidator struct {
	Foo int `env:"FOO"`
}

func (sv simpleValidator) Validate() error {
	if sv.Foo == 42 {
		return nil
	} else {
		return errors.New("invalid value")
	}
}

type nonStructValidator int

func (nonStructValidator) Validate() error {
	return nil
}

type defaultValidator struct {
	Foo int `env:"FOO" default:"42"`
}

func (defaultValidator) Validate() error {
	return nil
}

type prefixValidator struct {
	Nested simpleValidator `envPrefix:"PREFIX_"`
}

func (prefixValidator) Validate() error {
	return nil
}

func TestFromEnv(t *testing.T) {
	subtests := []struct {
		name  string
		opts  EnvOptions
		io    Validator
		error bool
	}{
		{name: "nil", error: true},
		{name: "nonptr", io: simpleValidator{}, error: true},
		{name: "nilptr", io: (*simpleValidator)(nil), error: true},
		{name: "defaulterr", io: new(nonStructValidator), error: true},
		{
			name:  "parseeerr",
			opts:  EnvOptions{Environment: map[string]string{"FOO": "bar"}},
			io:    &simpleValidator{},
			error: true,
		},
		{
			name:  "invalid",
			opts:  EnvOptions{Environment: map[string]string{"FOO": "23"}},
			io:    &simpleValidator{},
			error: true,
		},
		{name: "simple", opts: EnvOptions{Environment: map[string]string{"FOO": "42"}}, io: &simpleValidator{42}},
		{name: "default", io: &defaultValidator{42}},
		{name: "override", opts: EnvOptions{Environment: map[string]string{"FOO": "23"}}, io: &defaultValidator{23}},
		{
			name: "prefix",
			opts: EnvOptions{Environment: map[string]string{"PREFIX_FOO": "42"}, Prefix: "PREFIX_"},
			io:   &simpleValidator{42},
		},
		{
			name: "nested",
			opts: EnvOptions{Environment: map[string]string{"PREFIX_FOO": "42"}},
			io:   &prefixValidator{simpleValidator{42}},
		},
	}

	for _, st := range subtests {
		t.Run(st.name, func(t *testing.T) {
			var actual Validator
			if vActual := reflect.ValueOf(st.io); vActual != (reflect.Value{}) {
				if vActual.Kind() == reflect.Ptr && !vActual.IsNil() {
					vActual = reflect.New(vActual.Type().Elem())
				}

				actual = vActual.Interface().(Validator)
			}

			if err := FromEnv(actual, st.opts); st.error {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Equal(t, st.io, actual)
			}
		})
	}
}

type windowConfig struct {
	Window time.Duration `yaml:"window" env:"WINDOW" default:"10s"`
	Types  []string      `yaml:"types" env:"TYPES"`
}

func (c *windowConfig) Validate() error {
	if len(c.Types) == 0 {
		return errors.New("types missing")
	}

	return nil
}

type testFlags struct {
	path     string
	explicit bool
}

func (f testFlags) GetConfigPath() string      { return f.path }
func (f testFlags) IsExplicitConfigPath() bool { return f.explicit }

func TestFromYAMLFile(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		testutils.WithYAMLFile(t, "types: [email]", func(file *os.File) {
			var c windowConfig
			require.NoError(t, FromYAMLFile(file.Name(), &c))
			require.Equal(t, windowConfig{Window: 10 * time.Second, Types: []string{"email"}}, c)
		})
	})

	t.Run("unknown-field", func(t *testing.T) {
		testutils.WithYAMLFile(t, "types: [email]\nbogus: 1", func(file *os.File) {
			var c windowConfig
			require.Error(t, FromYAMLFile(file.Name(), &c))
		})
	})

	t.Run("invalid", func(t *testing.T) {
		testutils.WithYAMLFile(t, "window: 3s", func(file *os.File) {
			var c windowConfig
			require.ErrorIs(t, FromYAMLFile(file.Name(), &c), ErrInvalidConfiguration)
		})
	})

	t.Run("missing", func(t *testing.T) {
		var c windowConfig
		require.ErrorIs(t, FromYAMLFile(filepath.Join(t.TempDir(), "nope.yml"), &c), fs.ErrNotExist)
	})
}

func TestLoad(t *testing.T) {
	t.Run("env-completes-yaml", func(t *testing.T) {
		testutils.WithYAMLFile(t, "window: 3s", func(file *os.File) {
			var c windowConfig
			err := Load(&c, LoadOptions{
				Flags:      testFlags{path: file.Name(), explicit: true},
				EnvOptions: EnvOptions{Environment: map[string]string{"TYPES": "email,chat-webhook"}},
			})
			require.NoError(t, err)
			require.Equal(t, windowConfig{Window: 3 * time.Second, Types: []string{"email", "chat-webhook"}}, c)
		})
	})

	t.Run("default-file-missing", func(t *testing.T) {
		var c windowConfig
		err := Load(&c, LoadOptions{
			Flags:      testFlags{path: filepath.Join(t.TempDir(), "config.yml")},
			EnvOptions: EnvOptions{Environment: map[string]string{"TYPES": "test"}},
		})
		require.NoError(t, err)
		require.Equal(t, []string{"test"}, c.Types)
	})

	t.Run("explicit-file-missing", func(t *testing.T) {
		var c windowConfig
		err := Load(&c, LoadOptions{
			Flags:      testFlags{path: filepath.Join(t.TempDir(), "config.yml"), explicit: true},
			EnvOptions: EnvOptions{Environment: map[string]string{"TYPES": "test"}},
		})
		require.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestLoadPasswordFile(t *testing.T) {
	file := testutils.PasswordFile(t, "hunter2")

	var password string
	require.NoError(t, LoadPasswordFile(&password, file))
	require.Equal(t, "hunter2", password)

	require.NoError(t, LoadPasswordFile(&password, file), "loading the same file twice")
	require.Equal(t, "hunter2", password)

	password = "swordfish"
	require.Error(t, LoadPasswordFile(&password, file), "password and file set at the same time")

	require.Error(t, LoadPasswordFile(new(string), file+".missing"))
}
