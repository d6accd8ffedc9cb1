package throttle

import (
	"context"
	"time"

	"github.com/tripwire-io/tripwire/logging"
	"github.com/tripwire-io/tripwire/periodic"
	"go.uber.org/zap"
)

const (
	// DefaultCleanupInterval is how often the Sweeper runs by default.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultRetention is how long a record may stay idle before the Sweeper removes it.
	DefaultRetention = time.Hour
)

// Sweeper periodically removes idle records from a Store to bound its memory.
type Sweeper struct {
	store     *Store
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *logging.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithInterval overrides DefaultCleanupInterval. Values <= 0 are ignored.
func WithInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithRetention overrides DefaultRetention. Values <= 0 are ignored.
func WithRetention(retention time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// WithClock makes the Sweeper take the current time from now instead of the tick time.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper returns a Sweeper for store. A nil logger discards all output.
func NewSweeper(store *Store, logger *logging.Logger, options ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Sweeper{
		store:     store,
		interval:  DefaultCleanupInterval,
		retention: DefaultRetention,
		logger:    logger,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// Start runs the Sweeper until ctx is canceled or the returned Stopper is stopped.
// The next run is always scheduled independently of the current one, and a panic during
// one run is logged without affecting later runs.
func (s *Sweeper) Start(ctx context.Context) periodic.Stopper {
	return periodic.Start(ctx, s.interval, s.sweep,
		periodic.OnPanic(func(tick periodic.Tick, err error) {
			s.logger.Errorw("Throttle sweep failed", zap.Int64("run", tick.Count), logging.Error(err))
		}),
		periodic.OnStop(func(tick periodic.Tick) {
			s.logger.Debugw("Stopped throttle sweeper", zap.Int64("runs", tick.Count))
		}),
	)
}

func (s *Sweeper) sweep(tick periodic.Tick) {
	now := tick.Time
	if s.now != nil {
		now = s.now()
	}

	if evicted := s.store.Sweep(now, s.retention); evicted > 0 {
		s.logger.Debugw("Evicted idle throttle records",
			zap.Int("evicted", evicted), zap.Int("remaining", s.store.Len()))
	}
}
