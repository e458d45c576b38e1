// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package loop runs a task repeatedly until it asks to stop.
// use example:
//
//	l := loop.New(loop.WithInterval(time.Second), loop.WithContext(ctx))
//	err := l.Do(func() (bool, error) { ... })
package loop

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrMaxTimes is returned when the task never asked to stop.
var ErrMaxTimes = errors.New("loop: max times reached")

// Loop executes a task in a loop.
type Loop struct {
	maxTimes      uint64
	declineRatio  float64
	declineLimit  time.Duration
	interval      time.Duration
	lastSleepTime time.Duration
	ctx           context.Context
}

// Option Define Loop option type.
type Option func(*Loop)

func New(options ...Option) *Loop {
	l := &Loop{
		interval:     time.Second,
		maxTimes:     math.MaxUint64,
		declineRatio: 1,
		ctx:          context.Background(),
	}
	for _, op := range options {
		op(l)
	}
	l.lastSleepTime = l.interval
	return l
}

// sleep waits d, returning false when the context ends first.
func (l *Loop) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Do calls f until it returns done=true, then returns f's error.
// An error with done=false backs off by the decline ratio before the next call.
// Context cancellation returns ctx.Err(); running out of attempts returns the
// last error or ErrMaxTimes.
func (l *Loop) Do(f func() (done bool, err error)) error {
	var err error
	for i := uint64(0); i < l.maxTimes; i++ {
		if ctxErr := l.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var done bool
		done, err = f()
		if done {
			return err
		}
		if err != nil {
			l.lastSleepTime = time.Duration(float64(l.lastSleepTime) * l.declineRatio)
			if l.declineLimit > 0 && l.lastSleepTime > l.declineLimit {
				l.lastSleepTime = l.declineLimit
			}
		} else {
			l.lastSleepTime = l.interval
		}
		if i+1 < l.maxTimes && !l.sleep(l.lastSleepTime) {
			return l.ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return ErrMaxTimes
}

// WithMaxTimes Set the maximum number of loop executions, default is unlimited.
func WithMaxTimes(n uint64) Option {
	return func(l *Loop) {
		l.maxTimes = n
	}
}

// WithDeclineRatio Set the backoff ratio applied after an error, default is 1.
func WithDeclineRatio(n float64) Option {
	return func(l *Loop) {
		if n >= 1 {
			l.declineRatio = n
		}
	}
}

// WithDeclineLimit caps the backoff, default is no limit.
func WithDeclineLimit(t time.Duration) Option {
	return func(l *Loop) {
		if t >= 0 {
			l.declineLimit = t
		}
	}
}

// WithInterval Set the interval between executions, default is 1 second.
func WithInterval(t time.Duration) Option {
	return func(l *Loop) {
		if t >= time.Millisecond {
			l.interval = t
		}
	}
}

// WithContext set the context to cancel loop
func WithContext(ctx context.Context) Option {
	return func(l *Loop) {
		if ctx != nil {
			l.ctx = ctx
		}
	}
}
