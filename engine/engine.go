package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tripwire-io/tripwire/com"
	"github.com/tripwire-io/tripwire/event"
	"github.com/tripwire-io/tripwire/logging"
	"github.com/tripwire-io/tripwire/notify"
	"github.com/tripwire-io/tripwire/periodic"
	"github.com/tripwire-io/tripwire/throttle"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by Engine.Ready and Engine.Run if none of the configured
// notification types has a fully configured sink.
var ErrNotConfigured = stderrors.New("no notification sink configured")

// Outcome reports how Engine.Handle processed one event.
type Outcome struct {
	// ErrorID is the throttle key, the fingerprint if the event had no error id.
	ErrorID string

	Decision throttle.Decision

	// Results of the sink calls, nil unless the event was admitted.
	Results []notify.Result

	// Err is set if the event was rejected or processing it failed unexpectedly.
	Err error
}

// Engine throttles error events and dispatches them to notification sinks.
type Engine struct {
	settings   Settings
	store      *throttle.Store
	dispatcher *notify.Dispatcher
	logger     *logging.Logger
	now        func() time.Time

	admitted   com.Counter
	suppressed com.Counter
	delivered  com.Counter
	failed     com.Counter
	faults     com.Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the source of admission times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New returns an Engine dispatching to sinks, which maps notification types to their sinks.
// Zero durations and empty headers in settings fall back to their defaults, except ThrottleWindow:
// zero disables throttling and every event is dispatched. Start from DefaultSettings for the 10s window.
func New(settings Settings, sinks map[string]notify.Sink, logger *logging.Logger, options ...Option) *Engine {
	defaults := DefaultSettings()

	if settings.ThrottleWindow < 0 {
		settings.ThrottleWindow = 0
	}
	if settings.CleanupInterval <= 0 {
		settings.CleanupInterval = defaults.CleanupInterval
	}
	if settings.RetentionWindow <= 0 {
		settings.RetentionWindow = defaults.RetentionWindow
	}
	if settings.NewErrorHeader == "" {
		settings.NewErrorHeader = defaults.NewErrorHeader
	}
	if settings.NewOccurrenceHeader == "" {
		settings.NewOccurrenceHeader = defaults.NewOccurrenceHeader
	}

	if logger == nil {
		logger = logging.Nop()
	}

	e := &Engine{
		settings: settings,
		store:    throttle.NewStore(),
		dispatcher: notify.NewDispatcher(settings.NotificationTypes, sinks,
			notify.WithContextFields(settings.ContextFields...),
			notify.WithLinkFunc(settings.Link),
			notify.WithLogger(logger.Named("dispatcher"))),
		logger: logger,
		now:    time.Now,
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// Ready reports whether the Engine can operate meaningfully. That is the case in test mode, i.e. without
// notification types, or if at least one configured type has a sink that passes its own validation.
// Otherwise, the returned error wraps ErrNotConfigured and the reasons of every type.
func (e *Engine) Ready() error {
	types := e.dispatcher.Types()
	if len(types) == 0 {
		return nil
	}

	errs := make([]error, 0, len(types))
	for _, t := range types {
		sink, ok := e.dispatcher.Sink(t)
		if !ok {
			errs = append(errs, errors.Wrapf(notify.ErrUnknownSink, "%q", t))
			continue
		}

		if err := sink.Validate(); err != nil {
			errs = append(errs, errors.Wrapf(err, "%q", t))
			continue
		}

		return nil
	}

	return fmt.Errorf("%w: %w", ErrNotConfigured, stderrors.Join(errs...))
}

// Run handles events until ctx is canceled or events is closed.
//
// If the Engine is not Ready, Run logs that at info level and returns the error without consuming
// any event. Otherwise, it starts sweeping idle throttle state and logging statistics periodically.
// Events are admitted one after another in arrival order. Every admitted event is dispatched in its
// own goroutine, so slow or hung sinks never hold up admission of later events. Once events is closed,
// Run waits for pending dispatches unless ctx is canceled first.
func (e *Engine) Run(ctx context.Context, events <-chan *event.ErrorEvent) error {
	if err := e.Ready(); err != nil {
		e.logger.Infow("Not starting, no usable notification sink configured", logging.Error(err))

		return err
	}

	e.logger.Infow("Starting",
		zap.Strings("notification_types", e.dispatcher.Types()),
		zap.Duration("throttle_window", e.settings.ThrottleWindow))

	sweeper := throttle.NewSweeper(e.store, e.logger.Named("sweeper"),
		throttle.WithInterval(e.settings.CleanupInterval),
		throttle.WithRetention(e.settings.RetentionWindow))
	defer sweeper.Start(ctx).Stop()

	// Immediate publishes the tracked errors gauge before the first interval has passed.
	defer periodic.Start(ctx, e.logger.Interval(), e.logStats, periodic.Immediate(), periodic.OnStop(e.logStats)).Stop()

	var pending sync.WaitGroup

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return waitPending(ctx, &pending)
			}

			var outcome Outcome
			admitted := e.admit(ev, &outcome)
			if admitted == nil {
				continue
			}

			pending.Add(1)
			go func() {
				defer pending.Done()
				defer e.recoverFault(&outcome)

				outcome.Results = e.dispatch(ctx, admitted, outcome.Decision.SuppressedCount)
			}()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Handle admits ev through the throttle and, if admitted, dispatches it before returning.
// Sink failures are logged and reported in the Outcome. Handle never panics. A fault is logged,
// counted and returned as Outcome.Err, leaving the throttle state as of its last completed update.
func (e *Engine) Handle(ctx context.Context, ev *event.ErrorEvent) (outcome Outcome) {
	admitted := e.admit(ev, &outcome)
	if admitted == nil {
		return outcome
	}

	defer e.recoverFault(&outcome)
	outcome.Results = e.dispatch(ctx, admitted, outcome.Decision.SuppressedCount)

	return outcome
}

// admit validates ev and runs it through the throttle, recording the decision in outcome.
// It returns the event to dispatch, which carries the fingerprint if ev had no error id,
// or nil if ev was rejected, suppressed or processing it failed.
func (e *Engine) admit(ev *event.ErrorEvent, outcome *Outcome) (admitted *event.ErrorEvent) {
	defer func() {
		if outcome.Err != nil {
			admitted = nil
		}
	}()
	defer e.recoverFault(outcome)

	if ev == nil {
		outcome.Err = errors.Wrap(event.ErrInvalidEvent, "nil event")
		return nil
	}

	if err := ev.Validate(); err != nil {
		if ev.Kind == event.KindUnknown {
			decisions.WithLabelValues(decisionRejected).Inc()
			e.logger.Warnw("Ignoring error event", zap.String("error_id", ev.ErrorID), logging.Error(err))

			outcome.ErrorID, outcome.Err = ev.ErrorID, err
			return nil
		}

		e.logger.Debugw("Handling incomplete error event", zap.String("error_id", ev.ErrorID), logging.Error(err))
	}

	if ev.ErrorID == "" {
		fingerprinted := *ev
		fingerprinted.ErrorID = event.Fingerprint(ev)
		ev = &fingerprinted

		e.logger.Debugw("Error event without error id, using fingerprint", zap.String("error_id", ev.ErrorID))
	}

	outcome.ErrorID = ev.ErrorID
	outcome.Decision = e.store.Admit(ev.ErrorID, e.now(), e.settings.ThrottleWindow)

	if !outcome.Decision.Admit {
		e.suppressed.Inc()
		decisions.WithLabelValues(decisionSuppressed).Inc()
		e.logger.Debugw("Suppressed notification",
			zap.String("error_id", ev.ErrorID), zap.Uint64("suppressed", outcome.Decision.SuppressedCount))

		return nil
	}

	e.admitted.Inc()
	decisions.WithLabelValues(decisionAdmitted).Inc()

	return ev
}

// dispatch sends the admitted ev to every configured sink and logs each failed delivery.
func (e *Engine) dispatch(ctx context.Context, ev *event.ErrorEvent, suppressedCount uint64) []notify.Result {
	e.logger.Debugw("Dispatching notification",
		zap.String("error_id", ev.ErrorID), zap.Stringer("kind", ev.Kind), zap.Uint64("suppressed", suppressedCount))

	results := e.dispatcher.Dispatch(ctx, ev, e.header(ev.Kind), suppressedCount)

	for _, r := range results {
		if r.OK() {
			e.delivered.Inc()
			continue
		}

		e.failed.Inc()
		e.logger.Warnw("Cannot deliver notification",
			zap.String("type", r.Type), zap.String("error_id", ev.ErrorID), logging.Error(r.Err))
	}

	return results
}

// recoverFault turns a panic into outcome.Err. It must be deferred directly.
func (e *Engine) recoverFault(outcome *Outcome) {
	if r := recover(); r != nil {
		e.faults.Inc()
		decisions.WithLabelValues(decisionFault).Inc()

		outcome.Err = errors.Errorf("panic while handling event: %v", r)
		e.logger.Errorw("Cannot handle error event", zap.String("error_id", outcome.ErrorID), logging.Error(outcome.Err))
	}
}

// waitPending waits for pending dispatches or until ctx is done, whichever comes first.
func waitPending(ctx context.Context, pending *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) header(k event.Kind) string {
	if k == event.KindNewOccurrence {
		return e.settings.NewOccurrenceHeader
	}

	return e.settings.NewErrorHeader
}

// logStats logs the counters accumulated since its previous call, if there are any.
func (e *Engine) logStats(tick periodic.Tick) {
	admitted, suppressed := e.admitted.Reset(), e.suppressed.Reset()
	delivered, failed, faults := e.delivered.Reset(), e.failed.Reset(), e.faults.Reset()

	trackedErrors.Set(float64(e.store.Len()))

	if admitted+suppressed+faults == 0 {
		return
	}

	e.logger.Infow("Processed error events",
		zap.Uint64("admitted", admitted),
		zap.Uint64("suppressed", suppressed),
		zap.Uint64("delivered", delivered),
		zap.Uint64("failed", failed),
		zap.Uint64("faults", faults),
		zap.Int("tracked_errors", e.store.Len()),
		zap.Duration("uptime", tick.Elapsed))
}
