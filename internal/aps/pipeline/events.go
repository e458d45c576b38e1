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

package pipeline

import (
	"time"

	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/pkg/event"
	"github.com/go-arcade/aps/pkg/log"
	"github.com/go-arcade/aps/pkg/metrics"
)

const (
	EventStageTransition = "stage.transition"
	EventStagePolled     = "stage.polled"
	EventSessionChanged  = "session.changed"
)

// Outcome labels of a finished stage attempt.
const (
	OutcomeStarted   = "started"
	OutcomeAccepted  = "accepted"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeReverted  = "transport_error"
	OutcomeTimeout   = "timeout"
)

// StageTransition is published for every committed stage record change.
type StageTransition struct {
	SessionID string
	Stage     model.StageID
	From      model.StageStatus
	To        model.StageStatus
	Attempt   int
	Outcome   string
	Code      model.ErrorCode
	Duration  time.Duration
}

func (StageTransition) EventName() string { return EventStageTransition }

// StagePolled is published for each engine status query.
type StagePolled struct {
	SessionID string
	Stage     model.StageID
	Status    model.StageStatus
}

func (StagePolled) EventName() string { return EventStagePolled }

// SessionChanged is published when a session is created or deleted.
type SessionChanged struct {
	SessionID string
	Deleted   bool
	Live      int
}

func (SessionChanged) EventName() string { return EventSessionChanged }

// Subscribe attaches the transition logger and, when m is set, the metrics recorder.
func Subscribe(bus *event.EventBus, m *metrics.PipelineMetrics) {
	bus.RegisterHandler(EventStageTransition, event.HandlerFunc(logTransition))
	if m == nil {
		return
	}
	bus.RegisterHandler(EventStageTransition, event.HandlerFunc(func(e event.Event) {
		t := e.(StageTransition)
		if t.Outcome == OutcomeStarted {
			return
		}
		m.RecordStage(t.Stage.String(), t.Outcome, t.Duration)
	}))
	bus.RegisterHandler(EventStagePolled, event.HandlerFunc(func(e event.Event) {
		p := e.(StagePolled)
		m.RecordPoll(p.Stage.String(), string(p.Status))
	}))
	bus.RegisterHandler(EventSessionChanged, event.HandlerFunc(func(e event.Event) {
		m.SessionsActive.Set(float64(e.(SessionChanged).Live))
	}))
}

func logTransition(e event.Event) {
	t := e.(StageTransition)
	kv := []any{
		"session", t.SessionID,
		"stage", t.Stage,
		"from", t.From,
		"to", t.To,
		"attempt", t.Attempt,
		"outcome", t.Outcome,
	}
	switch t.Outcome {
	case OutcomeFailed, OutcomeReverted, OutcomeTimeout:
		log.Warnw("stage transition", append(kv, "code", t.Code, "duration", t.Duration)...)
	default:
		log.Infow("stage transition", kv...)
	}
}
