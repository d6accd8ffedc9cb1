package redis

import (
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/require"
	"github.com/tripwire-io/tripwire/config"
	"github.com/tripwire-io/tripwire/testutils"
)

func TestConfig(t *testing.T) {
	var defaultOptions Options
	require.NoError(t, defaults.Set(&defaultOptions), "setting default options")

	subtests := []struct {
		name     string
		opts     config.EnvOptions
		expected Config
		error    bool
	}{
		{
			name:  "empty-missing-host",
			opts:  config.EnvOptions{},
			error: true,
		},
		{
			name: "minimal-config",
			opts: config.EnvOptions{Environment: map[string]string{"HOST": "kv.example.com"}},
			expected: Config{
				Host:    "kv.example.com",
				Stream:  "tripwire:events",
				Options: defaultOptions,
			},
		},
		{
			name: "customized-config",
			opts: config.EnvOptions{Environment: map[string]string{
				"HOST":     "kv.example.com",
				"USERNAME": "user",
				"PASSWORD": "insecure",
				"DATABASE": "23",
				"STREAM":   "errors",
			}},
			expected: Config{
				Host:     "kv.example.com",
				Username: "user",
				Password: "insecure",
				Database: 23,
				Stream:   "errors",
				Options:  defaultOptions,
			},
		},
		{
			name: "username-without-password",
			opts: config.EnvOptions{Environment: map[string]string{
				"HOST":     "kv.example.com",
				"USERNAME": "user",
			}},
			error: true,
		},
		{
			name: "tls",
			opts: config.EnvOptions{Environment: map[string]string{
				"HOST": "kv.example.com",
				"TLS":  "true",
				"CERT": "/var/empty/db.crt",
				"KEY":  "/var/empty/db.key",
				"CA":   "/var/empty/ca.crt",
			}},
			expected: Config{
				Host:   "kv.example.com",
				Stream: "tripwire:events",
				TlsOptions: config.TLS{
					Enable: true,
					Cert:   "/var/empty/db.crt",
					Key:    "/var/empty/db.key",
					Ca:     "/var/empty/ca.crt",
				},
				Options: defaultOptions,
			},
		},
		{
			name: "options",
			opts: config.EnvOptions{Environment: map[string]string{
				"HOST":                  "kv.example.com",
				"OPTIONS_BLOCK_TIMEOUT": "1m",
				"OPTIONS_XREAD_COUNT":   "10",
			}},
			expected: Config{
				Host:   "kv.example.com",
				Stream: "tripwire:events",
				Options: Options{
					BlockTimeout: time.Minute,
					Timeout:      30 * time.Second,
					XReadCount:   10,
				},
			},
		},
		{
			name: "invalid-options",
			opts: config.EnvOptions{Environment: map[string]string{
				"HOST":                "kv.example.com",
				"OPTIONS_XREAD_COUNT": "0",
			}},
			error: true,
		},
	}

	for _, test := range subtests {
		t.Run(test.name, func(t *testing.T) {
			var out Config
			if err := config.FromEnv(&out, test.opts); test.error {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Equal(t, test.expected, out)
			}
		})
	}

	t.Run("password-file", func(t *testing.T) {
		var out Config
		require.NoError(t, config.FromEnv(&out, config.EnvOptions{Environment: map[string]string{
			"HOST":          "kv.example.com",
			"USERNAME":      "user",
			"PASSWORD_FILE": testutils.PasswordFile(t, "from-file"),
		}}))
		require.Equal(t, "from-file", out.Password)
	})
}
