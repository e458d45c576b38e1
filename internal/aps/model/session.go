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

package model

import (
	"encoding/json"
	"time"
)

// StageRecord is the progress of one stage inside one session.
// CompletedAt is set if and only if Status is terminal.
type StageRecord struct {
	Stage        StageID     `json:"stage"`
	Status       StageStatus `json:"status"`
	StartedAt    *time.Time  `json:"startedAt,omitempty"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
	Payload      Payload     `json:"payload,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	ErrorCode    ErrorCode   `json:"errorCode,omitempty"`
	// Attempt counts how many times the stage has been started.
	Attempt   int    `json:"attempt"`
	AttemptID string `json:"attemptId,omitempty"`
	// Deadline is the lease of a synchronous attempt. Once passed, a Running
	// record may be taken over by a new attempt.
	Deadline *time.Time `json:"deadline,omitempty"`
	// Accepted marks an async attempt the engine acknowledged.
	Accepted bool `json:"accepted,omitempty"`
}

type stageRecordJSON struct {
	Stage        StageID         `json:"stage"`
	Status       StageStatus     `json:"status"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ErrorCode    ErrorCode       `json:"errorCode,omitempty"`
	Attempt      int             `json:"attempt"`
	AttemptID    string          `json:"attemptId,omitempty"`
	Deadline     *time.Time      `json:"deadline,omitempty"`
	Accepted     bool            `json:"accepted,omitempty"`
}

func (r StageRecord) MarshalJSON() ([]byte, error) {
	aux := stageRecordJSON{
		Stage:        r.Stage,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		ErrorMessage: r.ErrorMessage,
		ErrorCode:    r.ErrorCode,
		Attempt:      r.Attempt,
		AttemptID:    r.AttemptID,
		Deadline:     r.Deadline,
		Accepted:     r.Accepted,
	}
	if r.Payload != nil {
		raw, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, err
		}
		aux.Payload = raw
	}
	return json.Marshal(aux)
}

func (r *StageRecord) UnmarshalJSON(data []byte) error {
	var aux stageRecordJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	payload, err := DecodePayload(aux.Stage, aux.Payload)
	if err != nil {
		return err
	}
	*r = StageRecord{
		Stage:        aux.Stage,
		Status:       aux.Status,
		StartedAt:    aux.StartedAt,
		CompletedAt:  aux.CompletedAt,
		Payload:      payload,
		ErrorMessage: aux.ErrorMessage,
		ErrorCode:    aux.ErrorCode,
		Attempt:      aux.Attempt,
		AttemptID:    aux.AttemptID,
		Deadline:     aux.Deadline,
		Accepted:     aux.Accepted,
	}
	return nil
}

// LeaseExpired reports whether a Running synchronous attempt outlived its deadline.
func (r *StageRecord) LeaseExpired(now time.Time) bool {
	return r.Status == StatusRunning && r.Deadline != nil && now.After(*r.Deadline)
}

// Clone returns a deep copy of the record.
func (r StageRecord) Clone() StageRecord {
	r.StartedAt = cloneTime(r.StartedAt)
	r.CompletedAt = cloneTime(r.CompletedAt)
	r.Deadline = cloneTime(r.Deadline)
	r.Payload = clonePayload(r.Payload)
	return r
}

// Session is one independent pipeline run.
type Session struct {
	ID                   string                   `json:"sessionId"`
	Stages               map[StageID]*StageRecord `json:"stages"`
	AwaitingConfirmation *StageID                 `json:"awaitingConfirmation"`
	CreatedAt            time.Time                `json:"createdAt"`
	UpdatedAt            time.Time                `json:"updatedAt"`
}

// NewSession returns a session with all six stages Pending.
func NewSession(id string, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Stages:    make(map[StageID]*StageRecord, len(stageOrder)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, st := range stageOrder {
		s.Stages[st] = &StageRecord{Stage: st, Status: StatusPending}
	}
	return s
}

// Record returns the record of stage, creating a Pending one if it is missing.
func (s *Session) Record(stage StageID) *StageRecord {
	rec, ok := s.Stages[stage]
	if !ok || rec == nil {
		rec = &StageRecord{Stage: stage, Status: StatusPending}
		s.Stages[stage] = rec
	}
	return rec
}

// FirstUnmet returns the first prerequisite of stage that is not Completed.
func (s *Session) FirstUnmet(stage StageID) (StageID, bool) {
	for _, pre := range stage.Prerequisites() {
		if rec := s.Stages[pre]; rec == nil || rec.Status != StatusCompleted {
			return pre, true
		}
	}
	return "", false
}

// AllCompleted reports whether all six stages are Completed.
func (s *Session) AllCompleted() bool {
	for _, st := range stageOrder {
		if rec := s.Stages[st]; rec == nil || rec.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Results collects the payloads of completed stages.
func (s *Session) Results() Results {
	out := make(Results)
	for st, rec := range s.Stages {
		if rec != nil && rec.Status == StatusCompleted && rec.Payload != nil {
			out[st] = clonePayload(rec.Payload)
		}
	}
	return out
}

// Current returns the furthest stage that left Pending, or LoadData for a fresh session.
func (s *Session) Current() StageID {
	cur := StageLoadData
	for _, st := range stageOrder {
		if rec := s.Stages[st]; rec != nil && rec.Status != StatusPending {
			cur = st
		}
	}
	return cur
}

// Clone returns a deep copy that shares nothing with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		ID:        s.ID,
		Stages:    make(map[StageID]*StageRecord, len(s.Stages)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	for st, rec := range s.Stages {
		if rec == nil {
			continue
		}
		c := rec.Clone()
		out.Stages[st] = &c
	}
	if s.AwaitingConfirmation != nil {
		a := *s.AwaitingConfirmation
		out.AwaitingConfirmation = &a
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
