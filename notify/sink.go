package notify

import (
	"context"

	"github.com/pkg/errors"
)

// TypeTest is the notification type of a sink that only logs payloads.
const TypeTest = "test"

var (
	// ErrUnknownSink is reported for a configured notification type without a registered Sink.
	ErrUnknownSink = errors.New("unknown notification type")

	// ErrMissingConfig is reported by sinks that lack required settings, e.g. credentials or a URL.
	ErrMissingConfig = errors.New("missing sink configuration")
)

// Sink delivers payloads to one notification transport.
type Sink interface {
	// Send delivers p. It must not modify p, which is shared with concurrently running sinks.
	Send(ctx context.Context, p *Payload) error

	// Validate reports whether the sink is fully configured. Errors wrap ErrMissingConfig.
	Validate() error
}

// SinkFunc adapts a function to a Sink that is always considered configured.
type SinkFunc func(ctx context.Context, p *Payload) error

// Send implements the Sink interface.
func (f SinkFunc) Send(ctx context.Context, p *Payload) error {
	return f(ctx, p)
}

// Validate implements the Sink interface.
func (f SinkFunc) Validate() error {
	return nil
}

// Result is the outcome of one sink call.
type Result struct {
	Type string // Notification type of the sink.
	Err  error  // Nil on success.
}

// OK reports whether the sink accepted the payload.
func (r Result) OK() bool {
	return r.Err == nil
}
