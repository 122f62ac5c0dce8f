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

// Package event deals with subscriptions to real-time events.
package event

import (
	"sync"
)

// Subscription represents a stream of events. The carrier of the events is typically a
// channel, but isn't part of the interface.
//
// The Err channel is closed when Unsubscribe is called. Unsubscribe may be
// called any number of times.
type Subscription interface {
	Err() <-chan error // returns the error channel
	Unsubscribe()      // cancels sending of events, closing the error channel
}

// FeedOf implements one-to-many subscriptions where the carrier of events is a channel.
// Values sent to a feed are delivered to every subscribed channel in turn.
//
// The zero value is ready to use.
type FeedOf[T any] struct {
	sendMu sync.Mutex // serializes Send so subscribers see one order
	mu     sync.Mutex
	subs   map[*feedOfSub[T]]struct{}
}

type feedOfSub[T any] struct {
	feed    *FeedOf[T]
	channel chan<- T
	quit    chan struct{}
	once    sync.Once
	err     chan error
}

// Subscribe adds a channel to the feed. Future sends will be delivered on the channel
// until the subscription is canceled.
//
// The channel should have ample buffer space to avoid blocking other subscribers. Slow
// subscribers are not dropped.
func (f *FeedOf[T]) Subscribe(channel chan<- T) Subscription {
	sub := &feedOfSub[T]{
		feed:    f,
		channel: channel,
		quit:    make(chan struct{}),
		err:     make(chan error),
	}
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[*feedOfSub[T]]struct{})
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

// Send delivers to all subscribed channels simultaneously.
// It returns the number of subscribers that the value was sent to.
func (f *FeedOf[T]) Send(value T) (nsent int) {
	return f.SendAbort(value, nil)
}

// SendAbort is like Send but gives up on the remaining subscribers once abort
// is closed.
func (f *FeedOf[T]) SendAbort(value T, abort <-chan struct{}) (nsent int) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	f.mu.Lock()
	targets := make([]*feedOfSub[T], 0, len(f.subs))
	for sub := range f.subs {
		targets = append(targets, sub)
	}
	f.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.channel <- value:
			nsent++
		case <-sub.quit:
		case <-abort:
			return nsent
		}
	}
	return nsent
}

func (f *FeedOf[T]) remove(sub *feedOfSub[T]) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
}

func (sub *feedOfSub[T]) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.quit)
		sub.feed.remove(sub)
		close(sub.err)
	})
}

func (sub *feedOfSub[T]) Err() <-chan error {
	return sub.err
}
