// Package telegram implements the "telegram" notification sink using the Telegram Bot API.
package telegram

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tripwire-io/tripwire/notify"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// Type is the notification type of the Telegram sink.
const Type = "telegram"

// messageLimit is the maximum length of a Telegram text message.
const messageLimit = 4096

// Config defines the Telegram sink configuration.
type Config struct {
	Token     string        `yaml:"token" env:"TOKEN,unset"` // #nosec G117 -- exported secret field
	ChatID    int64         `yaml:"chat_id" env:"CHAT_ID"`
	APIURL    string        `yaml:"api_url" env:"API_URL" default:"https://api.telegram.org"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT" default:"10s"`
	RateLimit float64       `yaml:"rate_limit" env:"RATE_LIMIT" default:"1"`
}

// Validate checks constraints in the supplied Telegram configuration and returns an error if they are violated.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}

	if c.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}

	return nil
}

// Sink sends notifications as messages to a Telegram chat.
type Sink struct {
	bot     *tele.Bot
	chat    *tele.Chat
	limiter *rate.Limiter
}

// New creates a Sink from the given configuration. cfg is expected to be validated.
// Without a token or chat id, the returned Sink reports missing configuration.
// No request is made to Telegram until the first Send.
func New(cfg Config) (*Sink, error) {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	s := &Sink{limiter: rate.NewLimiter(limit, 1)}

	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return s, nil
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create Telegram bot")
	}

	s.bot = bot
	s.chat = &tele.Chat{ID: cfg.ChatID}

	return s, nil
}

// Validate implements the notify.Sink interface.
func (s *Sink) Validate() error {
	if s.bot == nil {
		return errors.Wrap(notify.ErrMissingConfig, "Telegram token or chat id not set")
	}

	return nil
}

// Send implements the notify.Sink interface.
func (s *Sink) Send(ctx context.Context, p *notify.Payload) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "Telegram rate limit")
	}

	text := notify.Truncate(p.Text(), messageLimit)
	if _, err := s.bot.Send(s.chat, text, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		return errors.Wrap(err, "cannot send Telegram message")
	}

	return nil
}
