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

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDo_RetrySuccess(t *testing.T) {
	calls := 0
	var retried []int
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, WithMaxAttempts(5), WithBackoff(Fixed(time.Millisecond)), OnRetry(func(attempt int, err error) {
		retried = append(retried, attempt)
	}))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_MaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, WithMaxAttempts(3), WithBackoff(Fixed(0)))

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDo_CustomRetryIf(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, WithRetryIf(func(err error) bool { return !errors.Is(err, permanent) }))

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Do(ctx, func(context.Context) error { return errFlaky },
		WithMaxAttempts(10), WithBackoff(Fixed(time.Second)))

	assert.ErrorIs(t, err, errFlaky)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDo_PreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(context.DeadlineExceeded))
	assert.True(t, IsRetryableError(errFlaky))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, Fixed(5*time.Millisecond).Next(7))

	exp := Exponential(10*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, exp.Next(0))
	assert.Equal(t, 40*time.Millisecond, exp.Next(2))
	assert.Equal(t, 50*time.Millisecond, exp.Next(3))

	for range 20 {
		d := FullJitter(10 * time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 10*time.Millisecond)
	}
	assert.Zero(t, FullJitter(0))
}
