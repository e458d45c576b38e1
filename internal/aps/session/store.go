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

// Package session keeps the progress record of every pipeline run.
// Stores are keyed registries with atomic per-session read-modify-write;
// stage ordering is not their concern.
package session

import (
	"context"
	"time"

	"github.com/go-arcade/aps/internal/aps/model"
)

// Store owns every Session. Callers only ever see deep copies.
type Store interface {
	// Create allocates a new id and an all-Pending session.
	Create(ctx context.Context) (*model.Session, error)
	// Get returns a snapshot or a NotFound StageError.
	Get(ctx context.Context, id string) (*model.Session, error)
	// Update applies fn to the session atomically. When fn returns an error
	// nothing is written and that error is returned unchanged.
	Update(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error)
	// UpdateStage is Update narrowed to one stage record.
	UpdateStage(ctx context.Context, id string, stage model.StageID, fn func(*model.StageRecord) error) (model.StageRecord, error)
	// Delete removes the session immediately.
	Delete(ctx context.Context, id string) error
	// Len counts live sessions.
	Len(ctx context.Context) (int, error)
	// Sweep drops expired sessions and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Conf is the [session] section.
type Conf struct {
	// Backend is memory or redis.
	Backend string `mapstructure:"backend"`
	// TTL is the idle lifetime of a session, 0 keeps sessions forever.
	TTL time.Duration `mapstructure:"ttl"`
	// MaxSessions bounds live sessions, 0 is unbounded.
	MaxSessions int `mapstructure:"max_sessions"`
	// SweepSpec is the cron spec of the expiry sweeper.
	SweepSpec string `mapstructure:"sweep_spec"`
	// KeyPrefix namespaces redis keys.
	KeyPrefix string `mapstructure:"key_prefix"`
}

func DefaultConf() Conf {
	return Conf{
		Backend:   "memory",
		TTL:       time.Hour,
		SweepSpec: "@every 1m",
		KeyPrefix: "aps:session:",
	}
}

// updateStage adapts a record mutation to a session mutation.
func updateStage(s Store, ctx context.Context, id string, stage model.StageID, fn func(*model.StageRecord) error) (model.StageRecord, error) {
	var out model.StageRecord
	_, err := s.Update(ctx, id, func(sess *model.Session) error {
		rec := sess.Record(stage)
		if err := fn(rec); err != nil {
			return err
		}
		out = rec.Clone()
		return nil
	})
	if err != nil {
		return model.StageRecord{}, err
	}
	return out, nil
}
