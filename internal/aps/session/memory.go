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
	"sync"
	"time"

	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/pkg/id"
)

type memoryEntry struct {
	mu      sync.Mutex
	sess    *model.Session
	touched time.Time
	deleted bool
}

// MemoryStore is an in-process Store. The map lock only guards membership;
// each session has its own lock, so unrelated sessions never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	ttl         time.Duration
	maxSessions int
	now         func() time.Time
	newID       func() string
}

type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) MemoryOption {
	return func(s *MemoryStore) { s.newID = gen }
}

func NewMemoryStore(conf Conf, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*memoryEntry),
		ttl:         conf.TTL,
		maxSessions: conf.MaxSessions,
		now:         time.Now,
		newID:       id.GetUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) expired(e *memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.touched) > s.ttl
}

func (s *MemoryStore) Create(_ context.Context) (*model.Session, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.entries) >= s.maxSessions {
		s.sweepLocked(now)
		if len(s.entries) >= s.maxSessions {
			return nil, model.NewCapacityError(s.maxSessions)
		}
	}

	sid := s.newID()
	for _, exists := s.entries[sid]; exists; _, exists = s.entries[sid] {
		sid = s.newID()
	}
	sess := model.NewSession(sid, now)
	s.entries[sid] = &memoryEntry{sess: sess, touched: now}
	return sess.Clone(), nil
}

// lockEntry returns the locked live entry for id; the caller must unlock it.
func (s *MemoryStore) lockEntry(sid string) (*memoryEntry, error) {
	s.mu.RLock()
	e, ok := s.entries[sid]
	s.mu.RUnlock()
	if !ok {
		return nil, model.NewNotFoundError("session " + sid)
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, model.NewNotFoundError("session " + sid)
	}
	if now := s.now(); s.expired(e, now) {
		e.deleted = true
		e.mu.Unlock()
		s.remove(sid, e)
		return nil, model.NewNotFoundError("session " + sid)
	}
	return e, nil
}

func (s *MemoryStore) remove(sid string, e *memoryEntry) {
	s.mu.Lock()
	if cur, ok := s.entries[sid]; ok && cur == e {
		delete(s.entries, sid)
	}
	s.mu.Unlock()
}

func (s *MemoryStore) Get(_ context.Context, sid string) (*model.Session, error) {
	e, err := s.lockEntry(sid)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	e.touched = s.now()
	return e.sess.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, sid string, fn func(*model.Session) error) (*model.Session, error) {
	e, err := s.lockEntry(sid)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	// fn works on a copy so a failed mutation leaves no trace
	next := e.sess.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	now := s.now()
	next.UpdatedAt = now
	e.sess = next
	e.touched = now
	return next.Clone(), nil
}

func (s *MemoryStore) UpdateStage(ctx context.Context, sid string, stage model.StageID, fn func(*model.StageRecord) error) (model.StageRecord, error) {
	return updateStage(s, ctx, sid, stage, fn)
}

func (s *MemoryStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	e, ok := s.entries[sid]
	if ok {
		delete(s.entries, sid)
	}
	s.mu.Unlock()
	if !ok {
		return model.NewNotFoundError("session " + sid)
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now()), nil
}

// sweepLocked requires s.mu held for writing. Entries busy in an update are
// skipped rather than waited for.
func (s *MemoryStore) sweepLocked(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	removed := 0
	for sid, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if s.expired(e, now) {
			e.deleted = true
			delete(s.entries, sid)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}
