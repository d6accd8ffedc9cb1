// Package redis connects to Redis and reads error events from a Redis stream.
package redis

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/tripwire-io/tripwire/backoff"
	"github.com/tripwire-io/tripwire/logging"
	"github.com/tripwire-io/tripwire/retry"
	"go.uber.org/zap"
)

const defaultPort = 6379

// Client is a wrapper around redis.Client with
// streaming and logging capabilities.
type Client struct {
	*redis.Client

	Options *Options

	logger *logging.Logger
}

// NewClient returns a new Client wrapper for a pre-existing redis.Client.
func NewClient(client *redis.Client, logger *logging.Logger, options *Options) *Client {
	return &Client{Client: client, logger: logger, Options: options}
}

// NewClientFromConfig returns a new Client from Config. No connection is made until the first command.
func NewClientFromConfig(c *Config, logger *logging.Logger) (*Client, error) {
	tlsConfig, err := c.TlsOptions.MakeConfig(c.Host)
	if err != nil {
		return nil, err
	}

	netDialer := &net.Dialer{Timeout: 15 * time.Second}

	var dial ctxDialerFunc = netDialer.DialContext
	if tlsConfig != nil {
		// go-redis only applies TLSConfig to its own dialer.
		dial = (&tls.Dialer{NetDialer: netDialer, Config: tlsConfig}).DialContext
	}

	options := &redis.Options{
		Dialer:      dialWithLogging(dial, logger),
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.Database,
		ReadTimeout: c.Options.Timeout,
		TLSConfig:   tlsConfig,
	}

	if strings.HasPrefix(c.Host, "/") {
		options.Network = "unix"
		options.Addr = c.Host
	} else {
		port := c.Port
		if port == 0 {
			port = defaultPort
		}

		options.Network = "tcp"
		options.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	}

	return NewClient(redis.NewClient(options), logger, &c.Options), nil
}

// GetAddr returns a URI-like description of the Redis server for log output,
// e.g. "redis+tls://user@example.com:6379/1". The password is never included.
func (c *Client) GetAddr() string {
	opts := c.Client.Options()

	var b strings.Builder
	b.WriteString("redis")
	if opts.TLSConfig != nil {
		b.WriteString("+tls")
	}
	b.WriteString("://")

	if opts.Username != "" {
		b.WriteString(opts.Username + "@")
	}

	if opts.Network == "unix" {
		b.WriteString("(" + opts.Addr + ")")
	} else {
		b.WriteString(opts.Addr)
	}

	if opts.DB != 0 {
		b.WriteString("/" + strconv.Itoa(opts.DB))
	}

	return b.String()
}

// XReadUntilResult (repeatedly) calls XREAD with the specified arguments until a result is returned.
// Each call blocks at most for the duration specified in redis.XReadArgs.Block.
func (c *Client) XReadUntilResult(ctx context.Context, a *redis.XReadArgs) ([]redis.XStream, error) {
	for {
		cmd := c.XRead(ctx, a)
		streams, err := cmd.Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			return streams, WrapCmdErr(cmd)
		}

		return streams, nil
	}
}

// WrapCmdErr adds the command name to the error of cmd.
func WrapCmdErr(cmd redis.Cmder) error {
	err := cmd.Err()
	if err != nil {
		err = errors.Wrapf(err, "can't perform %q", strings.ToUpper(cmd.Name()))
	}

	return err
}

type ctxDialerFunc = func(ctx context.Context, network, addr string) (net.Conn, error)

// dialWithLogging returns a Redis Dialer with logging capabilities,
// retrying transient connection errors with backoff.
func dialWithLogging(dialer ctxDialerFunc, logger *logging.Logger) ctxDialerFunc {
	return func(ctx context.Context, network, addr string) (conn net.Conn, err error) {
		err = retry.WithBackoff(
			ctx,
			func(ctx context.Context) (err error) {
				conn, err = dialer(ctx, network, addr)
				return
			},
			retry.Retryable,
			backoff.DefaultBackoff,
			retry.Settings{
				Timeout: retry.DefaultTimeout,
				OnRetryableError: func(_ time.Duration, _ uint64, err, lastErr error) {
					if lastErr == nil || err.Error() != lastErr.Error() {
						logger.Warnw("Can't connect to Redis. Retrying", logging.Error(err))
					}
				},
				OnSuccess: func(elapsed time.Duration, attempt uint64, _ error) {
					if attempt > 1 {
						logger.Infow("Reconnected to Redis",
							zap.Duration("after", elapsed), zap.Uint64("attempts", attempt))
					}
				},
			},
		)

		err = errors.Wrap(err, "can't connect to Redis")

		return
	}
}
