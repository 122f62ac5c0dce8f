package metrics

import (
	"sync/atomic"
)

// Counter holds an int64 value that can be incremented and decremented.
type Counter interface {
	Clear()
	Count() int64
	Dec(int64)
	Inc(int64)
}

// GetOrRegisterCounter returns an existing Counter or constructs and registers
// a new StandardCounter.
func GetOrRegisterCounter(name string, r Registry) Counter {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewCounter).(Counter)
}

// NewCounter constructs a new StandardCounter.
func NewCounter() Counter {
	if !Enabled {
		return NilCounter{}
	}
	return new(StandardCounter)
}

// NewRegisteredCounter constructs and registers a new StandardCounter.
func NewRegisteredCounter(name string, r Registry) Counter {
	c := NewCounter()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

// NilCounter is a no-op Counter.
type NilCounter struct{}

func (NilCounter) Clear()       {}
func (NilCounter) Count() int64 { return 0 }
func (NilCounter) Dec(int64)    {}
func (NilCounter) Inc(int64)    {}

// StandardCounter is the standard implementation of a Counter and uses the
// sync/atomic package to manage a single int64 value.
type StandardCounter struct {
	count atomic.Int64
}

// Clear sets the counter to zero.
func (c *StandardCounter) Clear() { c.count.Store(0) }

// Count returns the current count.
func (c *StandardCounter) Count() int64 { return c.count.Load() }

// Dec decrements the counter by the given amount.
func (c *StandardCounter) Dec(i int64) { c.count.Add(-i) }

// Inc increments the counter by the given amount.
func (c *StandardCounter) Inc(i int64) { c.count.Add(i) }
