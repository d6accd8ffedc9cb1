// Package email implements the "email" notification sink on top of an SMTP relay.
package email

import (
	"context"
	"crypto/tls"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
	"github.com/pkg/errors"
	"github.com/tripwire-io/tripwire/notify"
)

// Type is the notification type of the email sink.
const Type = "email"

// deliverFunc hands a composed message to the SMTP relay at addr, giving up once ctx is done.
type deliverFunc func(ctx context.Context, e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error

// Sink sends notifications as plain text emails.
type Sink struct {
	cfg     Config
	deliver deliverFunc
}

// New creates a Sink from the given configuration. cfg is expected to be validated.
func New(cfg Config) *Sink {
	return &Sink{cfg: cfg, deliver: deliver}
}

// Validate implements the notify.Sink interface.
func (s *Sink) Validate() error {
	switch {
	case s.cfg.Host == "":
		return errors.Wrap(notify.ErrMissingConfig, "SMTP host not set")
	case s.cfg.From == "":
		return errors.Wrap(notify.ErrMissingConfig, "sender address not set")
	case len(s.cfg.To) == 0:
		return errors.Wrap(notify.ErrMissingConfig, "no recipients configured")
	case s.cfg.Username != "" && s.cfg.Password == "":
		return errors.Wrap(notify.ErrMissingConfig, "SMTP password not set")
	}

	return nil
}

// Send implements the notify.Sink interface.
func (s *Sink) Send(ctx context.Context, p *notify.Payload) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	tlsConfig, err := s.cfg.TlsOptions.MakeConfig(s.cfg.Host)
	if err != nil {
		return errors.Wrap(err, "cannot create TLS configuration")
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = s.cfg.To
	e.Subject = p.Header + ": " + p.Summary
	e.Text = []byte(p.Text())
	e.Headers.Set("X-Tripwire-Error-Id", p.ErrorID)
	e.Headers.Set("X-Tripwire-Dispatch-Id", p.DispatchID.String())

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.deliver(ctx, e, addr, auth, tlsConfig); err != nil {
		return errors.Wrapf(err, "cannot send email via %s", addr)
	}

	return nil
}

// deliver talks SMTP to addr over a connection bound to ctx: dialing honors ctx and every later
// read or write fails once ctx is done. STARTTLS is used with tlsConfig if TLS is enabled,
// or with the system roots if the relay offers it.
func deliver(ctx context.Context, e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.WithStack(err)
	}

	from, err := mail.ParseAddress(e.From)
	if err != nil {
		return errors.Wrap(err, "invalid sender address")
	}

	rcpts := make([]string, 0, len(e.To))
	for _, to := range e.To {
		a, err := mail.ParseAddress(to)
		if err != nil {
			return errors.Wrapf(err, "invalid recipient address %q", to)
		}

		rcpts = append(rcpts, a.Address)
	}

	raw, err := e.Bytes()
	if err != nil {
		return errors.Wrap(err, "cannot compose email")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, "cannot connect to SMTP relay")
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	defer context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return errors.Wrap(err, "SMTP greeting failed")
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok || tlsConfig != nil {
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
		}

		if err := c.StartTLS(tlsConfig); err != nil {
			return errors.Wrap(err, "STARTTLS failed")
		}
	}

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return errors.Wrap(err, "SMTP authentication failed")
		}
	}

	if err := c.Mail(from.Address); err != nil {
		return errors.Wrap(err, "MAIL FROM rejected")
	}

	for _, rcpt := range rcpts {
		if err := c.Rcpt(rcpt); err != nil {
			return errors.Wrapf(err, "RCPT TO %s rejected", rcpt)
		}
	}

	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "DATA rejected")
	}

	if _, err := w.Write(raw); err != nil {
		return errors.Wrap(err, "cannot write email")
	}

	if err := w.Close(); err != nil {
		return errors.Wrap(err, "email not accepted")
	}

	return errors.Wrap(c.Quit(), "QUIT failed")
}
