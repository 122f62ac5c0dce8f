package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// EWMA calculates an exponentially-weighted moving average of events per
// second. Events are fed with Update and folded in on every tick.
type EWMA struct {
	uncounted atomic.Int64
	alpha     float64
	rate      atomic.Uint64 // float64 bits, events per nanosecond
	init      bool
	mu        sync.Mutex
}

// NewEWMA constructs a new EWMA with the given alpha.
func NewEWMA(alpha float64) *EWMA {
	return &EWMA{alpha: alpha}
}

// NewEWMA1 constructs a new EWMA for a one-minute moving average.
func NewEWMA1() *EWMA {
	return NewEWMA(1 - math.Exp(-5.0/60.0/1))
}

// NewEWMA5 constructs a new EWMA for a five-minute moving average.
func NewEWMA5() *EWMA {
	return NewEWMA(1 - math.Exp(-5.0/60.0/5))
}

// Rate returns the moving average rate of events per second.
func (a *EWMA) Rate() float64 {
	return math.Float64frombits(a.rate.Load()) * float64(time.Second)
}

// Update adds n uncounted events.
func (a *EWMA) Update(n int64) {
	a.uncounted.Add(n)
}

// tick folds the uncounted events into the average. It is expected to be
// called every tickInterval.
func (a *EWMA) tick() {
	count := a.uncounted.Swap(0)
	instant := float64(count) / float64(tickInterval)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.init {
		cur := math.Float64frombits(a.rate.Load())
		a.rate.Store(math.Float64bits(cur + a.alpha*(instant-cur)))
	} else {
		a.init = true
		a.rate.Store(math.Float64bits(instant))
	}
}
