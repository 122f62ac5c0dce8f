// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package mclock

import (
	"container/heap"
	"sync"
	"time"
)

// Simulated implements a virtual Clock for reproducible time-sensitive tests.
// Virtual time only moves when Run is called; timers scheduled at or before the
// new time fire on the goroutine calling Run, in scheduling order.
type Simulated struct {
	mu     sync.Mutex
	now    AbsTime
	queue  simQueue
	nextID uint64
	cond   *sync.Cond
}

type simTimer struct {
	at    AbsTime
	id    uint64
	index int
	fn    func()
	s     *Simulated
}

// Run moves the clock by the given duration, executing all timers before that duration.
func (s *Simulated) Run(d time.Duration) {
	s.mu.Lock()
	s.init()
	end := s.now.Add(d)
	var fire []func()
	for s.queue.Len() > 0 && s.queue[0].at <= end {
		t := heap.Pop(&s.queue).(*simTimer)
		s.now = t.at
		fire = append(fire, t.fn)
	}
	s.now = end
	s.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

// ActiveTimers returns the number of timers that haven't fired.
func (s *Simulated) ActiveTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// WaitForTimers blocks until at least n timers are scheduled.
func (s *Simulated) WaitForTimers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	for s.queue.Len() < n {
		s.cond.Wait()
	}
}

// Now returns the current virtual time.
func (s *Simulated) Now() AbsTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Sleep blocks until the clock has advanced by d.
func (s *Simulated) Sleep(d time.Duration) {
	<-s.After(d)
}

// After returns a channel which receives the virtual time once the clock
// has advanced by d.
func (s *Simulated) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	s.AfterFunc(d, func() { ch <- s.Now() })
	return ch
}

// AfterFunc schedules fn to run once the clock has advanced by d. Unlike the
// system clock, fn runs on the goroutine that calls Run.
func (s *Simulated) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	s.nextID++
	t := &simTimer{at: s.now.Add(d), id: s.nextID, fn: fn, s: s}
	heap.Push(&s.queue, t)
	s.cond.Broadcast()
	return t
}

func (t *simTimer) Stop() bool {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&s.queue, t.index)
	s.cond.Broadcast()
	return true
}

func (s *Simulated) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
}

// simQueue orders timers by due time, then by creation order.
type simQueue []*simTimer

func (q simQueue) Len() int { return len(q) }

func (q simQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].id < q[j].id
}

func (q simQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *simQueue) Push(x interface{}) {
	t := x.(*simTimer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *simQueue) Pop() interface{} {
	old := *q
	t := old[len(old)-1]
	old[len(old)-1] = nil
	t.index = -1
	*q = old[:len(old)-1]
	return t
}
