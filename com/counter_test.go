package com

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	var c Counter
	require.Zero(t, c.Reset())
	require.Zero(t, c.Total())

	c.Add(3)
	c.Inc()
	require.Equal(t, uint64(4), c.Total())

	require.Equal(t, uint64(4), c.Reset())
	require.Zero(t, c.Reset(), "second reset without adds")

	c.Add(10)
	require.Equal(t, uint64(14), c.Total(), "total survives resets")
	require.Equal(t, uint64(10), c.Reset())
}

func TestCounter_Concurrent(t *testing.T) {
	var c Counter
	var collected uint64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			for range 1000 {
				c.Inc()
			}
		}()

		go func() {
			defer wg.Done()

			for range 100 {
				n := c.Reset()

				mu.Lock()
				collected += n
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(8000), collected+c.Reset(), "every increment is reported by exactly one reset")
	require.Equal(t, uint64(8000), c.Total())
}
