// Package retry repeats operations against the event source until they succeed, the error is not worth
// another attempt or the context is done.
package retry

import (
	"context"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/tripwire-io/tripwire/backoff"
)

// DefaultTimeout is the default time after which WithBackoff gives up on reconnecting to the event source.
const DefaultTimeout = 5 * time.Minute

// RetryableFunc is a retryable function.
type RetryableFunc func(context.Context) error

// IsRetryable checks whether a new attempt can be started based on the error passed.
type IsRetryable func(error) bool

// OnRetryableErrorFunc is called if a retryable error occurs.
type OnRetryableErrorFunc func(elapsed time.Duration, attempt uint64, err, lastErr error)

// OnSuccessFunc is called once the operation succeeds.
type OnSuccessFunc func(elapsed time.Duration, attempt uint64, lastErr error)

// Settings aggregates optional settings for WithBackoff.
type Settings struct {
	// Timeout, if > 0, stops further attempts once elapsed. If it elapses while waiting
	// for the next attempt, that attempt is still made. A running attempt is never interrupted.
	Timeout time.Duration

	// OnRetryableError, if not nil, is called if a retryable error occurred.
	OnRetryableError OnRetryableErrorFunc

	// OnSuccess, if not nil, is called after the function succeeded.
	OnSuccess OnSuccessFunc
}

// WithBackoff calls f until it succeeds. After a failure, retryable decides whether another
// attempt is made, delayed by backoffFn. f must honor ctx. Once ctx is done, no further attempt is made
// and the context error is returned, annotated with the last error of f.
func WithBackoff(
	ctx context.Context,
	f RetryableFunc,
	retryable IsRetryable,
	backoffFn backoff.Backoff,
	settings Settings,
) error {
	// A nil channel blocks forever, i.e. no timeout.
	var timeout <-chan time.Time
	if settings.Timeout > 0 {
		t := time.NewTimer(settings.Timeout)
		defer t.Stop()

		timeout = t.C
	}

	start := time.Now()
	lastAttempt := false

	var prevErr error
	for attempt := uint64(1); ; attempt++ {
		err := f(ctx)
		if err == nil {
			if settings.OnSuccess != nil {
				settings.OnSuccess(time.Since(start), attempt, prevErr)
			}

			return nil
		}

		// f may pass on errors that match context errors without the context being done,
		// so the context itself is checked.
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), err.Error())
		}

		if !retryable(err) {
			return errors.Wrap(err, "can't retry")
		}

		if !lastAttempt {
			select {
			case <-timeout:
				lastAttempt = true
			default:
			}
		}

		if lastAttempt {
			return errors.Wrap(err, "retry deadline exceeded")
		}

		if settings.OnRetryableError != nil {
			settings.OnRetryableError(time.Since(start), attempt, err, prevErr)
		}

		prevErr = err

		select {
		case <-time.After(backoffFn(attempt)):
		case <-timeout:
			lastAttempt = true
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), err.Error())
		}
	}
}

// Retryable reports whether err is a transient network or Redis error, i.e. a temporary, timeout or DNS error,
// a refused, reset or broken connection, an unreachable host or network, an unexpected EOF, or
// Redis still loading its dataset or failing over.
func Retryable(err error) bool {
	var timeout interface {
		Timeout() bool
	}
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}

	var dnsError *net.DNSError
	if errors.As(err, &dnsError) {
		return true
	}

	var opError *net.OpError
	if errors.As(err, &opError) {
		// net.OpError does not implement Unwrap.
		err = opError.Err
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ENOENT, syscall.EPIPE,
		syscall.EHOSTDOWN, syscall.EHOSTUNREACH, syscall.ENETDOWN, syscall.ENETUNREACH,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	for _, prefix := range []string{"LOADING", "READONLY", "MASTERDOWN", "TRYAGAIN"} {
		if redis.HasErrorPrefix(err, prefix) {
			return true
		}
	}

	return false
}
