// Copyright 2019 The go-ethereum Authors
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

// Package testlog provides a log handler for unit tests.
package testlog

import (
	"sync"
	"time"

	"github.com/aionnetwork/aion-sub011/log"
)

// T is the subset of testing.TB used by the test logger.
type T interface {
	Helper()
	Logf(format string, args ...interface{})
	FailNow()
}

// Handler returns a log handler which logs to the unit test log of t.
func Handler(t T, level log.Lvl) log.Handler {
	return log.LvlFilterHandler(level, &handler{t, log.TerminalFormat(false)})
}

type handler struct {
	t   T
	fmt log.Format
}

func (h *handler) Log(r *log.Record) error {
	h.t.Logf("%s", h.fmt.Format(r))
	return nil
}

// logger implements log.Logger such that all output goes to the unit test log via
// t.Logf(). Records are buffered and flushed from the calling method, which is
// marked as a test helper, so line numbers point at the log call site.
type logger struct {
	t  T
	l  log.Logger
	mu *sync.Mutex
	h  *bufHandler
}

type bufHandler struct {
	buf []*log.Record
	fmt log.Format
}

func (h *bufHandler) Log(r *log.Record) error {
	h.buf = append(h.buf, r)
	return nil
}

// Logger returns a logger which logs to the unit test log of t.
func Logger(t T, level log.Lvl) log.Logger {
	l := &logger{
		t:  t,
		l:  log.New(),
		mu: new(sync.Mutex),
		h:  &bufHandler{fmt: log.TerminalFormat(false)},
	}
	l.l.SetHandler(log.LvlFilterHandler(level, l.h))
	return l
}

func (l *logger) emit(fn func(string, ...interface{}), msg string, ctx []interface{}) {
	l.t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(msg, ctx...)
	l.flush()
}

func (l *logger) Trace(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Trace, msg, ctx)
}

func (l *logger) Debug(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Debug, msg, ctx)
}

func (l *logger) Info(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Info, msg, ctx)
}

func (l *logger) Warn(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Warn, msg, ctx)
}

func (l *logger) Error(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.emit(l.l.Error, msg, ctx)
}

// Crit logs the message and fails the test instead of exiting the process.
func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.t.Helper()
	l.mu.Lock()
	l.h.buf = append(l.h.buf, &log.Record{Time: time.Now(), Lvl: log.LvlCrit, Msg: msg, Ctx: ctx})
	l.flush()
	l.mu.Unlock()
	l.t.FailNow()
}

func (l *logger) New(ctx ...interface{}) log.Logger {
	return &logger{l.t, l.l.New(ctx...), l.mu, l.h}
}

func (l *logger) GetHandler() log.Handler {
	return l.l.GetHandler()
}

func (l *logger) SetHandler(h log.Handler) {
	l.l.SetHandler(h)
}

// flush writes all buffered messages and clears the buffer.
func (l *logger) flush() {
	l.t.Helper()
	for _, r := range l.h.buf {
		l.t.Logf("%s", l.h.fmt.Format(r))
	}
	l.h.buf = nil
}
