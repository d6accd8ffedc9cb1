// Package webhook implements the "chat-webhook" notification sink, which POSTs a JSON message to an
// incoming webhook of a chat service.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/tripwire-io/tripwire/notify"
	"golang.org/x/time/rate"
)

// Type is the notification type of the chat webhook sink.
const Type = "chat-webhook"

// basicAuthTransport is an http.RoundTripper that adds basic authentication and a User-Agent header to HTTP requests.
type basicAuthTransport struct {
	http.RoundTripper

	Username  string
	Password  string
	UserAgent string
}

// RoundTrip adds the configured headers to the request and executes it.
func (b *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if b.Username != "" {
		req.SetBasicAuth(b.Username, b.Password)
	}
	req.Header.Set("User-Agent", b.UserAgent)

	return b.RoundTripper.RoundTrip(req)
}

// message is the JSON body POSTed to the webhook. Text and Content cover the message fields of the
// common chat services, Notification carries the structured payload.
type message struct {
	Text         string          `json:"text"`
	Content      string          `json:"content"`
	Notification *notify.Payload `json:"notification"`
}

// Sink POSTs notifications to a chat webhook.
type Sink struct {
	url     string
	client  http.Client
	limiter *rate.Limiter
}

// New creates a Sink from the given configuration. cfg is expected to be validated.
//
// The userAgent is used to set the User-Agent header, e.g. "tripwire/1.0".
func New(cfg Config, userAgent string) *Sink {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Sink{
		url: cfg.URL,
		client: http.Client{
			Timeout: cfg.Timeout,
			Transport: &basicAuthTransport{
				RoundTripper: http.DefaultTransport,
				Username:     cfg.Username,
				Password:     cfg.Password,
				UserAgent:    userAgent,
			},
		},
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
	}
}

// Validate implements the notify.Sink interface.
func (s *Sink) Validate() error {
	if s.url == "" {
		return errors.Wrap(notify.ErrMissingConfig, "webhook URL not set")
	}

	return nil
}

// Send implements the notify.Sink interface.
//
// Any response status other than 2xx is returned as an error.
func (s *Sink) Send(ctx context.Context, p *notify.Payload) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "webhook rate limit")
	}

	text := p.Header + "\n" + p.Summary + "\n" + p.Location
	if p.URL != "" {
		text += "\n" + p.URL
	}

	body, err := json.Marshal(message{Text: text, Content: text, Notification: p})
	if err != nil {
		return errors.Wrap(err, "cannot encode webhook message to JSON")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "cannot create HTTP request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "cannot POST webhook message")
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode <= 299 {
		return nil
	}

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, &io.LimitedReader{R: resp.Body, N: 1 << 12}) // Limit the error message length.

	return errors.Errorf("unexpected response from webhook, status %q (%d): %q",
		resp.Status, resp.StatusCode, strings.TrimSpace(buf.String()))
}
