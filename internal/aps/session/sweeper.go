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
	"fmt"

	"github.com/go-arcade/aps/pkg/log"
	"github.com/robfig/cron"
)

// Sweeper periodically evicts expired sessions. OnSweep receives the
// number of live sessions after each run.
type Sweeper struct {
	store   Store
	cron    *cron.Cron
	OnSweep func(live int)
}

func NewSweeper(store Store, spec string) (*Sweeper, error) {
	s := &Sweeper{store: store, cron: cron.New()}
	if spec == "" {
		return s, nil
	}
	if err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid sweep spec %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce() {
	ctx := context.Background()
	n, err := s.store.Sweep(ctx)
	if err != nil {
		log.Warnw("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		log.Infow("expired sessions evicted", "count", n)
	}
	if s.OnSweep != nil {
		if live, err := s.store.Len(ctx); err == nil {
			s.OnSweep(live)
		}
	}
}

func (s *Sweeper) Start() { s.cron.Start() }

func (s *Sweeper) Stop() { s.cron.Stop() }
