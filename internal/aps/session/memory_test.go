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

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(conf Conf) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryStore(conf, WithClock(clock.Now)), clock
}

func TestMemoryStore_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(DefaultConf())

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	for _, st := range model.Stages() {
		assert.Equal(t, model.StatusPending, sess.Stages[st].Status)
	}

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, sess.ID), model.ErrNotFound)
}

func TestMemoryStore_SnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(DefaultConf())
	sess, err := store.Create(ctx)
	require.NoError(t, err)

	sess.Stages[model.StageLoadData].Status = model.StatusFailed
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Stages[model.StageLoadData].Status)
}

func TestMemoryStore_FailedUpdateLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(DefaultConf())
	sess, err := store.Create(ctx)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.Update(ctx, sess.ID, func(s *model.Session) error {
		s.Record(model.StageLoadData).Status = model.StatusRunning
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Stages[model.StageLoadData].Status)
}

func TestMemoryStore_UpdateStage(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(DefaultConf())
	sess, err := store.Create(ctx)
	require.NoError(t, err)

	clock.Advance(time.Second)
	rec, err := store.UpdateStage(ctx, sess.ID, model.StagePreprocess, func(r *model.StageRecord) error {
		r.Status = model.StatusRunning
		r.Attempt++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempt)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Stages[model.StagePreprocess].Status)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestMemoryStore_ConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(DefaultConf())
	sess, err := store.Create(ctx)
	require.NoError(t, err)

	const n = 64
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateStage(ctx, sess.ID, model.StageLoadData, func(r *model.StageRecord) error {
				r.Attempt++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.Stages[model.StageLoadData].Attempt)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	conf := DefaultConf()
	conf.TTL = time.Minute
	store, clock := newTestStore(conf)

	a, err := store.Create(ctx)
	require.NoError(t, err)
	b, err := store.Create(ctx)
	require.NoError(t, err)

	clock.Advance(40 * time.Second)
	_, err = store.Get(ctx, a.ID) // refreshes a
	require.NoError(t, err)

	clock.Advance(40 * time.Second)
	_, err = store.Get(ctx, b.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	n, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(2 * time.Minute)
	n, err = store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	live, _ := store.Len(ctx)
	assert.Equal(t, 0, live)
}

func TestMemoryStore_Capacity(t *testing.T) {
	ctx := context.Background()
	conf := DefaultConf()
	conf.MaxSessions = 2
	conf.TTL = time.Minute
	store, clock := newTestStore(conf)

	_, err := store.Create(ctx)
	require.NoError(t, err)
	_, err = store.Create(ctx)
	require.NoError(t, err)

	_, err = store.Create(ctx)
	assert.ErrorIs(t, err, model.ErrSessionCapacity)

	// expired sessions make room
	clock.Advance(2 * time.Minute)
	_, err = store.Create(ctx)
	assert.NoError(t, err)
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	conf := DefaultConf()
	conf.TTL = time.Minute
	store, clock := newTestStore(conf)
	_, err := store.Create(ctx)
	require.NoError(t, err)

	sw, err := NewSweeper(store, "@every 1m")
	require.NoError(t, err)
	live := -1
	sw.OnSweep = func(n int) { live = n }

	clock.Advance(2 * time.Minute)
	sw.RunOnce()
	assert.Equal(t, 0, live)

	_, err = NewSweeper(store, "not a spec")
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	s, cleanup, err := NewStore(DefaultConf(), cacheRedisConf())
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &MemoryStore{}, s)

	_, _, err = NewStore(Conf{Backend: "etcd"}, cacheRedisConf())
	assert.Error(t, err)
}
