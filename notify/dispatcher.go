package notify

import (
	"context"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/tripwire-io/tripwire/event"
	"github.com/tripwire-io/tripwire/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher fans payloads out to the sinks of the configured notification types.
// It holds no mutable state and is safe for concurrent use.
type Dispatcher struct {
	types         []string
	sinks         map[string]Sink
	contextFields []string
	link          LinkFunc
	logger        *logging.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithContextFields restricts the event context included in payloads to fields.
func WithContextFields(fields ...string) Option {
	return func(d *Dispatcher) {
		d.contextFields = slices.Clone(fields)
	}
}

// WithLinkFunc sets the builder of payload URLs.
func WithLinkFunc(link LinkFunc) Option {
	return func(d *Dispatcher) {
		d.link = link
	}
}

// WithLogger sets the logger of the Dispatcher. Without it, nothing is logged.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher returns a Dispatcher delivering to the sinks registered for types.
// Duplicate types are dropped, keeping the first occurrence. Types without a sink in sinks are kept
// and reported as ErrUnknownSink on every dispatch.
func NewDispatcher(types []string, sinks map[string]Sink, options ...Option) *Dispatcher {
	d := &Dispatcher{
		types:  dedupe(types),
		sinks:  make(map[string]Sink, len(sinks)),
		logger: logging.Nop(),
	}

	for name, sink := range sinks {
		if sink != nil {
			d.sinks[name] = sink
		}
	}

	for _, option := range options {
		option(d)
	}

	return d
}

// Types returns the de-duplicated notification types in configured order.
func (d *Dispatcher) Types() []string {
	return slices.Clone(d.types)
}

// Sink returns the sink registered for the notification type name.
func (d *Dispatcher) Sink(name string) (Sink, bool) {
	s, ok := d.sinks[name]

	return s, ok
}

// Dispatch builds one payload for ev and hands it to every configured sink concurrently.
// It returns one Result per configured type, in configured order, once all sinks have returned.
// Without configured types, Dispatch does nothing and returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *event.ErrorEvent, header string, suppressedCount uint64) []Result {
	if len(d.types) == 0 {
		return nil
	}

	p := NewPayload(ev, header, suppressedCount, d.contextFields, d.link)
	results := make([]Result, len(d.types))

	// Errors are collected per slot, so that a failing sink never cancels the others.
	var g errgroup.Group
	for i, typ := range d.types {
		results[i].Type = typ

		sink, ok := d.sinks[typ]
		if !ok {
			results[i].Err = errors.Wrapf(ErrUnknownSink, "%q", typ)
			sinkResults.WithLabelValues(typ, statusUnknown).Inc()

			continue
		}

		g.Go(func() error {
			start := time.Now()
			err := send(ctx, sink, p)
			took := time.Since(start)

			results[i].Err = err
			observe(typ, err, took)

			d.logger.Debugw("Notification sink returned",
				zap.String("type", typ), zap.Stringer("dispatch_id", p.DispatchID),
				zap.Duration("took", took), zap.Bool("ok", err == nil))

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// send calls sink, converting a panic into an error.
func send(ctx context.Context, sink Sink, p *Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("sink panicked: %v", r)
		}
	}()

	if err := sink.Send(ctx, p); err != nil {
		return errors.Wrap(err, "cannot send notification")
	}

	return nil
}

func dedupe(types []string) []string {
	seen := make(map[string]struct{}, len(types))
	out := make([]string, 0, len(types))

	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}

		seen[t] = struct{}{}
		out = append(out, t)
	}

	return out
}
