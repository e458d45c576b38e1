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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-arcade/aps/internal/aps/engine"
	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/internal/aps/session"
	"github.com/go-arcade/aps/pkg/event"
)

type execFunc func(ctx context.Context, stage model.StageID, params model.StageParams, prior model.Results) (engine.Outcome, error)

type pollFunc func(ctx context.Context, stage model.StageID, prior model.Results) (engine.AsyncStatus, error)

// stubExecutor answers every stage successfully unless overridden per stage.
type stubExecutor struct {
	mu       sync.Mutex
	execs    map[model.StageID]int
	polls    int
	released []string
	exec     map[model.StageID]execFunc
	poll     pollFunc
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{
		execs: make(map[model.StageID]int),
		exec:  make(map[model.StageID]execFunc),
	}
}

func (s *stubExecutor) on(stage model.StageID, fn execFunc) {
	s.mu.Lock()
	s.exec[stage] = fn
	s.mu.Unlock()
}

func (s *stubExecutor) onPoll(fn pollFunc) {
	s.mu.Lock()
	s.poll = fn
	s.mu.Unlock()
}

func (s *stubExecutor) Execute(ctx context.Context, stage model.StageID, params model.StageParams, prior model.Results) (engine.Outcome, error) {
	s.mu.Lock()
	s.execs[stage]++
	fn := s.exec[stage]
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, stage, params, prior)
	}
	return defaultOutcome(stage, params), nil
}

func defaultOutcome(stage model.StageID, params model.StageParams) engine.Outcome {
	switch stage {
	case model.StageLoadData:
		return engine.Outcome{Payload: model.LoadDataResult{EngineSessionID: "eng-1", Message: "loaded"}}
	case model.StagePreprocess:
		return engine.Outcome{Payload: model.PreprocessResult{Message: "preprocessed", ProcessedJobs: 10}}
	case model.StagePredictYield:
		return engine.Outcome{Payload: model.YieldResult{Message: "predicted", YieldPredictions: 10}}
	case model.StageBuildDag:
		return engine.Outcome{Payload: model.DagResult{Message: "built", DagNodes: 20, Machines: 3}}
	case model.StageSchedule:
		sp := params.(*model.ScheduleParams)
		return engine.Outcome{Payload: model.ScheduleResult{Message: "accepted", WindowSize: sp.WindowSize}, Accepted: true}
	default:
		return engine.Outcome{Payload: model.PostprocessResult{Message: "done", LateOrders: 1}}
	}
}

func (s *stubExecutor) Poll(ctx context.Context, stage model.StageID, prior model.Results) (engine.AsyncStatus, error) {
	s.mu.Lock()
	s.polls++
	fn := s.poll
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, stage, prior)
	}
	return engine.AsyncStatus{
		Status:  model.StatusCompleted,
		Payload: model.ScheduleResult{Message: "scheduled", ScheduledJobs: 10, Makespan: 42},
	}, nil
}

func (s *stubExecutor) Release(_ context.Context, engineSessionID string) error {
	s.mu.Lock()
	s.released = append(s.released, engineSessionID)
	s.mu.Unlock()
	return nil
}

func (s *stubExecutor) Health(context.Context) error { return nil }

func (s *stubExecutor) execCount(stage model.StageID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs[stage]
}

func (s *stubExecutor) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *stubExecutor) releasedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.released...)
}

type fixture struct {
	orch  *Orchestrator
	exec  *stubExecutor
	store session.Store
	bus   *event.EventBus
}

func newFixture(t *testing.T, gate Gate) *fixture {
	t.Helper()
	store := session.NewMemoryStore(session.DefaultConf())
	exec := newStubExecutor()
	bus := event.NewEventBus()
	conf := DefaultConf()
	conf.PollInterval = 5 * time.Millisecond
	conf.PollMaxInterval = 20 * time.Millisecond
	return &fixture{
		orch:  New(store, exec, gate, conf, WithEventBus(bus)),
		exec:  exec,
		store: store,
		bus:   bus,
	}
}

func validLoadData() *model.LoadDataParams {
	empty := []map[string]any{}
	return &model.LoadDataParams{Data: &model.ProductionData{
		Linespeed:         empty,
		OperationSequence: empty,
		MachineMasterInfo: empty,
		YieldData:         empty,
		GitemOperation:    empty,
		OperationTypes:    empty,
		OperationDelay:    empty,
		WidthChange:       empty,
		MachineRest:       empty,
		MachineAllocate:   empty,
		MachineLimit:      empty,
		OrderData:         []map[string]any{{"po_no": "PO-1", "gitem": "G1"}},
	}}
}

// runThrough completes every stage before stop on a fresh session.
func (f *fixture) runThrough(t *testing.T, stop model.StageID) string {
	t.Helper()
	ctx := context.Background()
	view, err := f.orch.RunStage(ctx, StageRequest{Stage: model.StageLoadData, Params: validLoadData()})
	if err != nil {
		t.Fatalf("load data: %v", err)
	}
	sid := view.SessionID
	for _, st := range model.Stages()[1:] {
		if st == stop {
			break
		}
		if _, err := f.orch.RunStage(ctx, StageRequest{SessionID: sid, Stage: st}); err != nil {
			t.Fatalf("%s: %v", st, err)
		}
		if st.IsAsync() {
			if _, err := f.orch.PollStage(ctx, sid, st); err != nil {
				t.Fatalf("poll %s: %v", st, err)
			}
		}
	}
	return sid
}
