package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripwire-io/tripwire/event"
	"github.com/tripwire-io/tripwire/logging"
	"github.com/tripwire-io/tripwire/notify"
	"github.com/tripwire-io/tripwire/notify/logsink"
	"github.com/tripwire-io/tripwire/notify/webhook"
	"github.com/tripwire-io/tripwire/testutils"
	"github.com/tripwire-io/tripwire/throttle"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// recorder is a Sink remembering every payload it was sent.
type recorder struct {
	mu       sync.Mutex
	payloads []*notify.Payload
}

func (r *recorder) Send(_ context.Context, p *notify.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.payloads = append(r.payloads, p)

	return nil
}

func (r *recorder) Validate() error {
	return nil
}

func (r *recorder) headers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	headers := make([]string, 0, len(r.payloads))
	for _, p := range r.payloads {
		headers = append(headers, p.Header)
	}

	return headers
}

// stallingSink holds back deliveries of the errors in hold until release is closed or ctx is done.
// Every call reports its error id on started first.
type stallingSink struct {
	hold    map[string]bool
	release chan struct{}
	started chan string
	sent    chan string
}

func newStallingSink(hold ...string) *stallingSink {
	s := &stallingSink{
		hold:    make(map[string]bool, len(hold)),
		release: make(chan struct{}),
		started: make(chan string, 16),
		sent:    make(chan string, 16),
	}
	for _, id := range hold {
		s.hold[id] = true
	}

	return s
}

func (s *stallingSink) Send(ctx context.Context, p *notify.Payload) error {
	s.started <- p.ErrorID

	if s.hold[p.ErrorID] {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.sent <- p.ErrorID

	return nil
}

func (s *stallingSink) Validate() error {
	return nil
}

// receive returns the next value of ch or fails the test after timeout.
func receive[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, "timeout waiting for value")

		var zero T
		return zero
	}
}

func testLogger(t *testing.T) *logging.Logger {
	return logging.NewLogger(zaptest.NewLogger(t).Sugar(), time.Second)
}

func newError(id string) *event.ErrorEvent {
	return &event.ErrorEvent{Kind: event.KindNewError, ErrorID: id, Reason: "boom"}
}

func newOccurrence(id, occurrence string) *event.ErrorEvent {
	return &event.ErrorEvent{Kind: event.KindNewOccurrence, ErrorID: id, OccurrenceID: occurrence, Reason: "boom"}
}

func settings(types ...string) Settings {
	s := DefaultSettings()
	s.NotificationTypes = types

	return s
}

func TestEngine_Ready(t *testing.T) {
	t.Parallel()

	unconfigured := webhook.New(webhook.Config{}, "tripwire-test")

	tests := []struct {
		name  string
		types []string
		sinks map[string]notify.Sink
		ready bool
	}{
		{"test mode", nil, nil, true},
		{"test sink", []string{notify.TypeTest}, map[string]notify.Sink{notify.TypeTest: logsink.New(logging.Nop())}, true},
		{"unknown type", []string{"pager"}, nil, false},
		{"missing config", []string{webhook.Type}, map[string]notify.Sink{webhook.Type: unconfigured}, false},
		{"one usable", []string{"pager", webhook.Type, "email"},
			map[string]notify.Sink{webhook.Type: unconfigured, "email": &recorder{}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(settings(tt.types...), tt.sinks, testLogger(t)).Ready()
			if tt.ready {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrNotConfigured)
			}
		})
	}

	t.Run("reasons", func(t *testing.T) {
		err := New(settings("pager", webhook.Type), map[string]notify.Sink{webhook.Type: unconfigured}, nil).Ready()

		require.ErrorIs(t, err, notify.ErrUnknownSink)
		require.ErrorIs(t, err, notify.ErrMissingConfig)
	})
}

func TestEngine_Run(t *testing.T) {
	t.Parallel()

	t.Run("declines without usable sink", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zapcore.DebugLevel)
		logger := logging.NewLogger(zap.New(core).Sugar(), time.Second)

		events := make(chan *event.ErrorEvent, 1)
		events <- newError("E1")

		e := New(settings(webhook.Type), map[string]notify.Sink{webhook.Type: webhook.New(webhook.Config{}, "")}, logger)
		require.ErrorIs(t, e.Run(context.Background(), events), ErrNotConfigured)

		require.Len(t, events, 1, "no event may be consumed")

		entries := logs.All()
		require.Len(t, entries, 1)
		require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	})

	t.Run("handles events until closed", func(t *testing.T) {
		t.Parallel()

		// The statistics are logged once more after Run has returned.
		core, _ := observer.New(zapcore.InfoLevel)
		logger := logging.NewLogger(zap.New(core).Sugar(), time.Second)

		r := &recorder{}
		e := New(settings("email"), map[string]notify.Sink{"email": r}, logger)

		events := make(chan *event.ErrorEvent, 3)
		events <- newError("E1")
		events <- newError("E1")
		events <- newError("E2")
		close(events)

		require.NoError(t, e.Run(context.Background(), events))
		require.Len(t, r.headers(), 2)
		require.Equal(t, uint64(2), e.admitted.Total())
		require.Equal(t, uint64(1), e.suppressed.Total())
	})

	t.Run("hung sinks do not block admission", func(t *testing.T) {
		t.Parallel()

		sink := newStallingSink("E1", "E2")
		defer close(sink.release)

		e := New(settings("email"), map[string]notify.Sink{"email": sink}, logging.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events := make(chan *event.ErrorEvent)
		done := make(chan error, 1)
		go func() { done <- e.Run(ctx, events) }()

		events <- newError("E1")
		events <- newError("E2")
		require.ElementsMatch(t, []string{"E1", "E2"},
			[]string{receive(t, sink.started, time.Second), receive(t, sink.started, time.Second)})

		// Repeats are throttled while the first dispatch still hangs.
		events <- newError("E1")
		require.Eventually(t, func() bool { return e.suppressed.Total() == 1 }, time.Second, 5*time.Millisecond)

		events <- newError("E9")
		require.Equal(t, "E9", receive(t, sink.started, time.Second))
		require.Equal(t, "E9", receive(t, sink.sent, time.Second))
		require.Equal(t, uint64(3), e.admitted.Total())

		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("Run did not return")
		}
	})

	t.Run("slow sinks are called concurrently", func(t *testing.T) {
		t.Parallel()

		const n, delay = 10, 100 * time.Millisecond

		var mu sync.Mutex
		var sent []string
		slow := notify.SinkFunc(func(_ context.Context, p *notify.Payload) error {
			time.Sleep(delay)

			mu.Lock()
			defer mu.Unlock()
			sent = append(sent, p.ErrorID)

			return nil
		})

		e := New(settings("email", "webhook"), map[string]notify.Sink{"email": slow, "webhook": slow}, logging.Nop())

		events := make(chan *event.ErrorEvent, n)
		for i := range n {
			events <- newError(fmt.Sprintf("E%d", i))
		}
		close(events)

		start := time.Now()
		require.NoError(t, e.Run(context.Background(), events))
		require.Less(t, time.Since(start), n*delay, "deliveries must overlap")

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, sent, 2*n, "Run waits for pending dispatches once events is closed")
	})

	t.Run("sweeps idle errors", func(t *testing.T) {
		t.Parallel()

		s := settings()
		s.CleanupInterval = 20 * time.Millisecond
		s.RetentionWindow = 10 * time.Millisecond
		e := New(s, nil, logging.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events := make(chan *event.ErrorEvent)
		done := make(chan error, 1)
		go func() { done <- e.Run(ctx, events) }()

		events <- newError("E1")
		events <- newOccurrence("E2", "O1")
		require.Eventually(t, func() bool { return e.admitted.Total() == 2 }, time.Second, 5*time.Millisecond)

		require.Eventually(t, func() bool { return e.store.Len() == 0 }, time.Second, 10*time.Millisecond)

		cancel()
		require.ErrorIs(t, receive(t, done, time.Second), context.Canceled)
	})

	t.Run("stops with context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() { done <- New(settings(), nil, logging.Nop()).Run(ctx, make(chan *event.ErrorEvent)) }()
		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("Run did not return")
		}
	})
}

func TestEngine_Handle(t *testing.T) {
	t.Parallel()

	epoch := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	t.Run("Scenario A", func(t *testing.T) {
		t.Parallel()

		clock := testutils.NewClock(epoch)
		r := &recorder{}
		e := New(settings("email"), map[string]notify.Sink{"email": r}, testLogger(t), WithClock(clock.Now))

		o := e.Handle(context.Background(), newError("E1"))
		require.True(t, o.Decision.Admit)
		require.Len(t, o.Results, 1)

		clock.Advance(3 * time.Second)
		o = e.Handle(context.Background(), newOccurrence("E1", "O2"))
		require.False(t, o.Decision.Admit)
		require.Nil(t, o.Results)

		clock.Advance(9 * time.Second)
		o = e.Handle(context.Background(), newOccurrence("E1", "O3"))
		require.True(t, o.Decision.Admit)
		require.Equal(t, uint64(1), o.Decision.SuppressedCount)

		require.Equal(t, []string{"New Error!", "New Occurrence!"}, r.headers())
	})

	t.Run("annotates suppressed occurrences", func(t *testing.T) {
		t.Parallel()

		clock := testutils.NewClock(epoch)
		r := &recorder{}
		e := New(settings("email"), map[string]notify.Sink{"email": r}, testLogger(t), WithClock(clock.Now))

		for i := 0; i < 4; i++ {
			e.Handle(context.Background(), newError("E1"))
			clock.Advance(time.Second)
		}

		clock.Advance(10 * time.Second)
		e.Handle(context.Background(), newError("E1"))

		require.Equal(t, []string{"New Error!", "New Error! (3 occurrences)"}, r.headers())
	})

	t.Run("Scenario B", func(t *testing.T) {
		t.Parallel()

		s := settings("email")
		s.ThrottleWindow = 0

		r := &recorder{}
		e := New(s, map[string]notify.Sink{"email": r}, testLogger(t))

		for i := 0; i < 5; i++ {
			o := e.Handle(context.Background(), newError("E1"))
			require.Equal(t, throttle.Decision{Admit: true}, o.Decision)
		}

		require.Len(t, r.headers(), 5)
	})

	t.Run("Scenario D", func(t *testing.T) {
		t.Parallel()

		r := &recorder{}
		e := New(settings("email", webhook.Type), map[string]notify.Sink{
			"email":      r,
			webhook.Type: webhook.New(webhook.Config{}, "tripwire-test"),
		}, testLogger(t))

		require.NoError(t, e.Ready())

		o := e.Handle(context.Background(), newError("E1"))
		require.Len(t, o.Results, 2)
		assert.Equal(t, "email", o.Results[0].Type)
		assert.True(t, o.Results[0].OK())
		assert.Equal(t, webhook.Type, o.Results[1].Type)
		assert.ErrorIs(t, o.Results[1].Err, notify.ErrMissingConfig)
		assert.Equal(t, uint64(1), e.delivered.Total())
		assert.Equal(t, uint64(1), e.failed.Total())
	})

	t.Run("test mode", func(t *testing.T) {
		t.Parallel()

		o := New(settings(), nil, testLogger(t)).Handle(context.Background(), newError("E1"))
		require.True(t, o.Decision.Admit)
		require.Nil(t, o.Results)
		require.NoError(t, o.Err)
	})

	t.Run("fingerprint without error id", func(t *testing.T) {
		t.Parallel()

		e := New(settings(), nil, testLogger(t))

		first := &event.ErrorEvent{Kind: event.KindNewError, Reason: "order 17 not found"}
		second := &event.ErrorEvent{Kind: event.KindNewError, Reason: "order 18 not found"}

		o := e.Handle(context.Background(), first)
		require.True(t, o.Decision.Admit)
		require.NotEmpty(t, o.ErrorID)
		require.Empty(t, first.ErrorID, "the caller's event must not be modified")

		o2 := e.Handle(context.Background(), second)
		require.Equal(t, o.ErrorID, o2.ErrorID)
		require.False(t, o2.Decision.Admit)
	})

	t.Run("malformed events", func(t *testing.T) {
		t.Parallel()

		r := &recorder{}
		e := New(settings("email"), map[string]notify.Sink{"email": r}, testLogger(t))

		require.ErrorIs(t, e.Handle(context.Background(), nil).Err, event.ErrInvalidEvent)
		require.ErrorIs(t, e.Handle(context.Background(), &event.ErrorEvent{ErrorID: "E1"}).Err, event.ErrInvalidEvent)

		// A new occurrence without occurrence id and stack trace is still dispatched.
		o := e.Handle(context.Background(), &event.ErrorEvent{Kind: event.KindNewOccurrence, ErrorID: "E2"})
		require.NoError(t, o.Err)
		require.True(t, o.Results[0].OK())
		require.Equal(t, notify.UnknownLocation, r.payloads[0].Location)
	})

	t.Run("recovers from faults", func(t *testing.T) {
		t.Parallel()

		calls := 0
		clock := func() time.Time {
			calls++
			if calls == 1 {
				panic("clock failure")
			}

			return epoch
		}

		e := New(settings(), nil, testLogger(t), WithClock(clock))

		o := e.Handle(context.Background(), newError("E1"))
		require.ErrorContains(t, o.Err, "clock failure")
		require.Equal(t, "E1", o.ErrorID)
		require.Equal(t, uint64(1), e.faults.Total())

		o = e.Handle(context.Background(), newError("E1"))
		require.NoError(t, o.Err)
		require.True(t, o.Decision.Admit)
	})

	t.Run("dispatch does not block admission", func(t *testing.T) {
		t.Parallel()

		entered := make(chan struct{})
		release := make(chan struct{})
		blocking := notify.SinkFunc(func(ctx context.Context, p *notify.Payload) error {
			if p.ErrorID != "E1" {
				return nil
			}

			close(entered)
			<-release

			return errors.New("released")
		})

		e := New(settings("chat"), map[string]notify.Sink{"chat": blocking}, testLogger(t))

		done := make(chan Outcome, 1)
		go func() { done <- e.Handle(context.Background(), newError("E1")) }()
		<-entered

		require.True(t, e.Handle(context.Background(), newError("E2")).Decision.Admit)
		require.False(t, e.Handle(context.Background(), newError("E1")).Decision.Admit)

		close(release)
		o := <-done
		require.ErrorContains(t, o.Results[0].Err, "released")
	})
}
