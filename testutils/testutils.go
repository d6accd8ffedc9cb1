// Package testutils contains helpers shared by the tests of tripwire's packages:
// generic table test cases, temporary config files and a manually advanced clock.
package testutils

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCase is a generic table test case with expected result T and input data D.
type TestCase[T any, D any] struct {
	// Name is used as the subtest name.
	Name string
	// Expected result. Leave empty if an error is expected.
	Expected T
	// Data is the input passed to the function under test.
	Data D
	// Error checks the returned error. If nil, no error is expected.
	Error func(*testing.T, error)
}

// F returns a subtest function for t.Run that calls f with the case's Data and
// compares its result with Expected, or hands the error to Error.
func (tc TestCase[T, D]) F(f func(D) (T, error)) func(t *testing.T) {
	return func(t *testing.T) {
		actual, err := f(tc.Data)

		if tc.Error != nil {
			tc.Error(t, err)
		} else {
			require.NoError(t, err)
			require.Equal(t, tc.Expected, actual)
		}
	}
}

// ConfigTestData holds the same configuration once as YAML and once as environment variables.
type ConfigTestData struct {
	Yaml string
	Env  map[string]string
}

// ErrorContains returns an Error check requiring the message to contain expected.
func ErrorContains(expected string) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		require.ErrorContains(t, err, expected)
	}
}

// ErrorIs returns an Error check requiring errors.Is(err, expected).
func ErrorIs(expected error) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		require.ErrorIs(t, err, expected)
	}
}

// WithYAMLFile writes yaml to a temporary file, calls f with it and removes the file afterwards.
func WithYAMLFile(t *testing.T, yaml string, f func(file *os.File)) {
	file, err := os.CreateTemp("", "*.yaml")
	require.NoError(t, err)

	defer func(name string) {
		_ = os.Remove(name) // #nosec G703 -- name comes from os.CreateTemp
	}(file.Name())

	_, err = file.WriteString(yaml)
	require.NoError(t, err)

	require.NoError(t, file.Close())

	f(file)
}

// PasswordFile writes password to a file inside t.TempDir and returns its path.
func PasswordFile(t *testing.T, password string) string {
	name := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(name, []byte(password), 0o600))

	return name
}

// Clock is a manually advanced time source. The zero value starts at the zero time.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}
