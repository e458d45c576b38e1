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

// Package retry runs a function again on failure with configurable backoff,
// jitter and retry conditions. The context bounds the whole run.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Func defines a retryable function. It must respect ctx.
type Func func(ctx context.Context) error

// RetryIf reports whether err should trigger another attempt.
type RetryIf func(error) bool

// Backoff returns the wait before retry number attempt (0-based).
type Backoff interface {
	Next(attempt int) time.Duration
}

type fixedBackoff time.Duration

func (b fixedBackoff) Next(int) time.Duration { return time.Duration(b) }

// Fixed waits the same interval before every retry.
func Fixed(interval time.Duration) Backoff {
	return fixedBackoff(interval)
}

type exponentialBackoff struct {
	base time.Duration
	max  time.Duration
}

func (b exponentialBackoff) Next(attempt int) time.Duration {
	d := b.base * time.Duration(1<<attempt)
	if b.max > 0 && (d > b.max || d <= 0) {
		return b.max
	}
	return d
}

// Exponential doubles the wait on every retry, capped at max when given.
func Exponential(base time.Duration, max ...time.Duration) Backoff {
	var m time.Duration
	if len(max) > 0 {
		m = max[0]
	}
	return exponentialBackoff{base: base, max: m}
}

// Jitter modifies a backoff duration.
type Jitter func(time.Duration) time.Duration

func NoJitter(d time.Duration) time.Duration { return d }

// FullJitter picks a random duration in [0, d).
func FullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return rand.N(d)
}

type config struct {
	maxAttempts int
	backoff     Backoff
	jitter      Jitter
	retryIf     RetryIf
	onRetry     func(attempt int, err error)
}

// Option configures retry behavior.
type Option func(*config)

// WithMaxAttempts sets the number of attempts including the first one.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithBackoff(b Backoff) Option {
	return func(c *config) {
		if b != nil {
			c.backoff = b
		}
	}
}

func WithJitter(j Jitter) Option {
	return func(c *config) {
		if j != nil {
			c.jitter = j
		}
	}
}

func WithRetryIf(fn RetryIf) Option {
	return func(c *config) {
		if fn != nil {
			c.retryIf = fn
		}
	}
}

// OnRetry registers a callback invoked before each retry wait.
func OnRetry(fn func(attempt int, err error)) Option {
	return func(c *config) {
		c.onRetry = fn
	}
}

// Do executes fn until it succeeds, the retry condition rejects the error,
// attempts run out, or ctx is done. It returns the last error.
func Do(ctx context.Context, fn Func, opts ...Option) error {
	cfg := &config{
		maxAttempts: 3,
		backoff:     Fixed(time.Second),
		jitter:      NoJitter,
		retryIf:     IsRetryableError,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !cfg.retryIf(err) || attempt == cfg.maxAttempts-1 {
			break
		}
		if cfg.onRetry != nil {
			cfg.onRetry(attempt+1, err)
		}

		wait := cfg.jitter(cfg.backoff.Next(attempt))
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}
	}
	return lastErr
}

// IsRetryableError retries everything except context cancellation and deadline.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
