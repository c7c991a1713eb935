package vm

import "sync/atomic"

// A Clock provides monotonically increasing timestamps.
type Clock interface {
	Now() uint64
}

// CounterClock is a Clock that advances by one on every reading, so no two
// events share a timestamp.
type CounterClock struct {
	now atomic.Uint64
}

// NewCounterClock creates a clock that starts at zero.
func NewCounterClock() *CounterClock {
	return &CounterClock{}
}

// Now advances the clock and returns the new time.
func (c *CounterClock) Now() uint64 {
	return c.now.Add(1)
}

// Current returns the time of the last reading without advancing.
func (c *CounterClock) Current() uint64 {
	return c.now.Load()
}
