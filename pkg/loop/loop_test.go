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

package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopMaxTimes(t *testing.T) {
	count := 0
	err := New(WithMaxTimes(20), WithInterval(time.Millisecond)).Do(func() (bool, error) {
		count++
		return false, nil
	})
	assert.ErrorIs(t, err, ErrMaxTimes)
	assert.Equal(t, 20, count)
}

func TestLoopStopsWhenDone(t *testing.T) {
	count := 0
	stop := errors.New("stop")
	err := New(WithInterval(time.Millisecond)).Do(func() (bool, error) {
		count++
		return count == 3, stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, count)
}

func TestLoopReturnsLastError(t *testing.T) {
	boom := errors.New("boom")
	err := New(WithMaxTimes(2), WithInterval(time.Millisecond)).Do(func() (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	executed := 0
	err := New(WithContext(ctx), WithMaxTimes(10)).Do(func() (bool, error) {
		executed++
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, executed)

	ctx, cancel = context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err = New(WithContext(ctx), WithInterval(100*time.Millisecond), WithMaxTimes(5)).Do(func() (bool, error) {
		executed++
		return false, errors.New("error")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, executed)
}
