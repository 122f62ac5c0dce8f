package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

const tickInterval = 5 * time.Second

// Meter counts events and tracks their one- and five-minute moving average
// rates.
type Meter interface {
	Count() int64
	Mark(int64)
	Rate1() float64
	Rate5() float64
	Stop()
}

// GetOrRegisterMeter returns an existing Meter or constructs and registers a
// new StandardMeter.
func GetOrRegisterMeter(name string, r Registry) Meter {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewMeter).(Meter)
}

// NewMeter constructs a new StandardMeter and hands it to the shared ticker.
// Be sure to call Stop() once the meter is of no use to allow for garbage collection.
func NewMeter() Meter {
	if !Enabled {
		return NilMeter{}
	}
	m := newStandardMeter()
	arbiter.add(m)
	return m
}

// NewRegisteredMeter constructs and registers a new StandardMeter.
func NewRegisteredMeter(name string, r Registry) Meter {
	return GetOrRegisterMeter(name, r)
}

// NilMeter is a no-op Meter.
type NilMeter struct{}

func (NilMeter) Count() int64   { return 0 }
func (NilMeter) Mark(int64)     {}
func (NilMeter) Rate1() float64 { return 0 }
func (NilMeter) Rate5() float64 { return 0 }
func (NilMeter) Stop()          {}

// StandardMeter is the standard implementation of a Meter.
type StandardMeter struct {
	count   atomic.Int64
	a1, a5  *EWMA
	stopped atomic.Bool
}

func newStandardMeter() *StandardMeter {
	return &StandardMeter{a1: NewEWMA1(), a5: NewEWMA5()}
}

// Count returns the number of events recorded.
func (m *StandardMeter) Count() int64 { return m.count.Load() }

// Mark records the occurrence of n events.
func (m *StandardMeter) Mark(n int64) {
	if m.stopped.Load() {
		return
	}
	m.count.Add(n)
	m.a1.Update(n)
	m.a5.Update(n)
}

// Rate1 returns the one-minute moving average rate of events per second.
func (m *StandardMeter) Rate1() float64 { return m.a1.Rate() }

// Rate5 returns the five-minute moving average rate of events per second.
func (m *StandardMeter) Rate5() float64 { return m.a5.Rate() }

// Stop stops the meter, Mark() will be a no-op if you use it after being stopped.
func (m *StandardMeter) Stop() {
	if !m.stopped.Swap(true) {
		arbiter.remove(m)
	}
}

func (m *StandardMeter) tick() {
	m.a1.tick()
	m.a5.tick()
}

var arbiter = meterTicker{meters: make(map[*StandardMeter]struct{})}

// meterTicker ticks meters every tickInterval from a single goroutine.
type meterTicker struct {
	mu     sync.RWMutex
	once   sync.Once
	meters map[*StandardMeter]struct{}
}

func (ma *meterTicker) add(m *StandardMeter) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.meters[m] = struct{}{}
}

func (ma *meterTicker) remove(m *StandardMeter) {
	ma.mu.Lock()
	delete(ma.meters, m)
	ma.mu.Unlock()
}

func (ma *meterTicker) tickAll() {
	ma.mu.RLock()
	defer ma.mu.RUnlock()
	for m := range ma.meters {
		m.tick()
	}
}

func (ma *meterTicker) loop() {
	ticker := time.NewTicker(tickInterval)
	for range ticker.C {
		ma.tickAll()
	}
}

func startMeterTickerLoop() {
	arbiter.once.Do(func() { go arbiter.loop() })
}
