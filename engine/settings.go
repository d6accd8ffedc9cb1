package engine

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tripwire-io/tripwire/notify"
	"github.com/tripwire-io/tripwire/throttle"
)

const (
	DefaultNewErrorHeader      = "New Error!"
	DefaultNewOccurrenceHeader = "New Occurrence!"
)

// Settings configures an Engine.
type Settings struct {
	// NotificationTypes selects the sinks to dispatch to. Empty means test mode.
	NotificationTypes []string

	// ThrottleWindow is the minimum time between two dispatches for the same error.
	// Zero disables throttling and dispatches every event. It is not the default:
	// the zero Settings value throttles nothing, DefaultSettings sets throttle.DefaultWindow (10s).
	ThrottleWindow time.Duration

	CleanupInterval time.Duration
	RetentionWindow time.Duration

	NewErrorHeader      string
	NewOccurrenceHeader string

	// ContextFields restricts the event context included in notifications. Empty includes everything.
	ContextFields []string

	// Link builds the URL of an error for notifications. Optional.
	Link notify.LinkFunc
}

// DefaultSettings returns Settings in test mode with every other value at its default.
func DefaultSettings() Settings {
	return Settings{
		ThrottleWindow:      throttle.DefaultWindow,
		CleanupInterval:     throttle.DefaultCleanupInterval,
		RetentionWindow:     throttle.DefaultRetention,
		NewErrorHeader:      DefaultNewErrorHeader,
		NewOccurrenceHeader: DefaultNewOccurrenceHeader,
	}
}

// Config defines the user configurable engine settings.
type Config struct {
	NotificationTypes []string `yaml:"notification_types" env:"NOTIFICATION_TYPES" envSeparator:","`

	// ThrottleWindowSeconds is a pointer so that an explicit 0 survives default handling.
	ThrottleWindowSeconds *uint `yaml:"throttle_window_seconds" env:"THROTTLE_WINDOW_SECONDS" default:"10"`

	CleanupInterval     time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL" default:"5m"`
	RetentionWindow     time.Duration `yaml:"retention_window" env:"RETENTION_WINDOW" default:"1h"`
	NewErrorHeader      string        `yaml:"new_error_header" env:"NEW_ERROR_HEADER" default:"New Error!"`
	NewOccurrenceHeader string        `yaml:"new_occurrence_header" env:"NEW_OCCURRENCE_HEADER" default:"New Occurrence!"`
	ContextFields       []string      `yaml:"context_fields" env:"CONTEXT_FIELDS" envSeparator:","`

	// LinkTemplate is the URL of an error with "{error_id}" as placeholder,
	// e.g. "https://app.example.com/errors/{error_id}".
	LinkTemplate string `yaml:"link_template" env:"LINK_TEMPLATE"`
}

// Validate checks constraints in the supplied engine configuration and returns an error if they are violated.
func (c *Config) Validate() error {
	if c.CleanupInterval <= 0 {
		return errors.New("cleanup_interval must be positive")
	}
	if c.RetentionWindow <= 0 {
		return errors.New("retention_window must be positive")
	}

	for _, t := range c.NotificationTypes {
		if strings.TrimSpace(t) == "" {
			return errors.New("notification_types must not contain empty entries")
		}
	}

	if c.LinkTemplate != "" {
		if !strings.Contains(c.LinkTemplate, linkPlaceholder) {
			return errors.Errorf("link_template must contain %s", linkPlaceholder)
		}

		if _, err := url.Parse(strings.ReplaceAll(c.LinkTemplate, linkPlaceholder, "id")); err != nil {
			return errors.Wrap(err, "invalid link_template")
		}
	}

	return nil
}

// Settings converts c to Settings.
func (c *Config) Settings() Settings {
	s := DefaultSettings()

	s.NotificationTypes = c.NotificationTypes
	if c.ThrottleWindowSeconds != nil {
		s.ThrottleWindow = time.Duration(*c.ThrottleWindowSeconds) * time.Second
	}
	s.CleanupInterval = c.CleanupInterval
	s.RetentionWindow = c.RetentionWindow
	s.NewErrorHeader = c.NewErrorHeader
	s.NewOccurrenceHeader = c.NewOccurrenceHeader
	s.ContextFields = c.ContextFields

	if c.LinkTemplate != "" {
		s.Link = LinkTemplate(c.LinkTemplate)
	}

	return s
}

const linkPlaceholder = "{error_id}"

// LinkTemplate returns a LinkFunc replacing "{error_id}" in template with the path escaped error id.
func LinkTemplate(template string) notify.LinkFunc {
	return func(errorID string) string {
		return strings.ReplaceAll(template, linkPlaceholder, url.PathEscape(errorID))
	}
}
