// Package periodic runs a callback on a fixed interval in its own goroutine.
//
// The ticker driving a task is armed independently of the callback, so the next run is always scheduled
// before the current one does its work. Combined with [OnPanic], a fault inside one run never stops
// later runs.
package periodic

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Option configures Start.
type Option interface {
	apply(*periodic)
}

// Stopper stops a periodic task returned by Start.
type Stopper interface {
	Stop()
}

// Tick is passed to every callback run.
type Tick struct {
	Elapsed time.Duration // Elapsed since Start was called.
	Time    time.Time     // Time of the tick.
	Count   int64         // Count of runs so far, including this one.
}

// Immediate runs the callback once synchronously within Start instead of waiting for the first tick.
func Immediate() Option {
	return optionFunc(func(p *periodic) {
		p.immediate = true
	})
}

// OnStop configures a callback that is executed when a periodic task is stopped or its context is canceled.
func OnStop(f func(Tick)) Option {
	return optionFunc(func(p *periodic) {
		p.onStop = f
	})
}

// OnPanic recovers panics raised by the callback and hands the recovered value to f as an error.
// Without OnPanic, a panicking callback crashes the process.
func OnPanic(f func(Tick, error)) Option {
	return optionFunc(func(p *periodic) {
		p.onPanic = f
	})
}

// Start calls callback every interval until ctx is canceled or Stop is called on the returned Stopper.
// Runs never overlap; if a run takes longer than interval, the next one starts right after it.
// The interval must be greater than zero.
func Start(ctx context.Context, interval time.Duration, callback func(Tick), options ...Option) Stopper {
	p := &periodic{
		interval: interval,
		callback: callback,
	}

	for _, option := range options {
		option.apply(p)
	}

	start := time.Now()

	if ctx.Err() != nil {
		if p.onStop != nil {
			p.onStop(Tick{Time: start})
		}

		return stopperFunc(func() {})
	}

	var count int64

	if p.immediate {
		count++
		p.run(Tick{Time: start, Count: count})
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case tick := <-ticker.C:
				count++
				p.run(Tick{Elapsed: tick.Sub(start), Time: tick, Count: count})
			case <-ctx.Done():
				if p.onStop != nil {
					now := time.Now()
					p.onStop(Tick{Elapsed: now.Sub(start), Time: now, Count: count})
				}

				return
			}
		}
	}()

	return stopperFunc(func() {
		p.stop.Do(cancel)
	})
}

type optionFunc func(*periodic)

func (f optionFunc) apply(p *periodic) {
	f(p)
}

type stopperFunc func()

func (f stopperFunc) Stop() {
	f()
}

type periodic struct {
	interval  time.Duration
	callback  func(Tick)
	immediate bool
	stop      sync.Once
	onStop    func(Tick)
	onPanic   func(Tick, error)
}

// run executes the callback for one tick, recovering panics if OnPanic is set.
func (p *periodic) run(tick Tick) {
	if p.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				p.onPanic(tick, fmt.Errorf("periodic task panicked: %v", r))
			}
		}()
	}

	p.callback(tick)
}
