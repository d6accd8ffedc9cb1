// Package com holds small concurrency-safe building blocks shared across tripwire.
package com

import "sync/atomic"

// Counter is a concurrency-safe counter with a resettable value and a running total.
// The zero value is ready to use.
type Counter struct {
	value atomic.Uint64
	total atomic.Uint64
}

// Add adds delta to both the value and the total.
func (c *Counter) Add(delta uint64) {
	c.value.Add(delta)
	c.total.Add(delta)
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.Add(1)
}

// Reset sets the value to zero and returns the value before the reset. The total is kept.
func (c *Counter) Reset() uint64 {
	return c.value.Swap(0)
}

// Total returns the sum of everything ever added.
func (c *Counter) Total() uint64 {
	return c.total.Load()
}
