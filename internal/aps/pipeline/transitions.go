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
	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/pkg/statemachine"
)

const (
	eventRun      statemachine.Event = "run"
	eventTakeover statemachine.Event = "takeover"
	eventComplete statemachine.Event = "complete"
	eventFail     statemachine.Event = "fail"
	eventRevert   statemachine.Event = "revert"
)

// NewStageStateMachine returns the transition table shared by every stage
// record. Records keep their own status and are checked with Check.
//
//	pending   -> running
//	running   -> completed | failed | running (lease takeover)
//	running   -> pending | failed | running (transport revert to the prior record)
//	failed    -> running
func NewStageStateMachine() *statemachine.StateMachine[model.StageStatus] {
	return statemachine.NewWithState(model.StatusPending).
		Allow(model.StatusPending, model.StatusRunning).
		Allow(model.StatusRunning, model.StatusCompleted, model.StatusFailed, model.StatusPending, model.StatusRunning).
		Allow(model.StatusFailed, model.StatusRunning)
}
