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
	"fmt"
	"strings"
)

// StageID identifies one of the six ordered pipeline stages.
type StageID string

const (
	StageLoadData     StageID = "load_data"
	StagePreprocess   StageID = "preprocess"
	StagePredictYield StageID = "predict_yield"
	StageBuildDag     StageID = "build_dag"
	StageSchedule     StageID = "schedule"
	StagePostprocess  StageID = "postprocess"
)

// stageOrder is the fixed, total execution order.
var stageOrder = []StageID{
	StageLoadData,
	StagePreprocess,
	StagePredictYield,
	StageBuildDag,
	StageSchedule,
	StagePostprocess,
}

// Stages returns all stages in execution order.
func Stages() []StageID {
	out := make([]StageID, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Index returns the zero-based position of the stage, or -1 for an unknown id.
func (s StageID) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the six known stages.
func (s StageID) Valid() bool {
	return s.Index() >= 0
}

// IsAsync reports whether the engine runs the stage in the background.
// Only Schedule is accepted immediately and polled to completion.
func (s StageID) IsAsync() bool {
	return s == StageSchedule
}

// Prerequisites returns every stage that must be Completed before s may run.
func (s StageID) Prerequisites() []StageID {
	idx := s.Index()
	if idx <= 0 {
		return nil
	}
	out := make([]StageID, idx)
	copy(out, stageOrder[:idx])
	return out
}

// Next returns the stage after s, or false when s is the last stage.
func (s StageID) Next() (StageID, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[idx+1], true
}

// Before reports whether s runs strictly before other.
func (s StageID) Before(other StageID) bool {
	return s.Index() < other.Index()
}

func (s StageID) String() string {
	return string(s)
}

// ParseStage accepts the canonical id as well as CamelCase, kebab-case and
// the 1-based stage number ("LoadData", "load-data", "1").
func ParseStage(raw string) (StageID, error) {
	key := normalizeStageKey(raw)
	if key == "" {
		return "", fmt.Errorf("empty stage name")
	}
	for i, st := range stageOrder {
		if key == normalizeStageKey(string(st)) || key == fmt.Sprintf("%d", i+1) || key == fmt.Sprintf("stage%d", i+1) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}

func normalizeStageKey(raw string) string {
	r := strings.NewReplacer("_", "", "-", "", " ", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(raw)))
}

// StageStatus is the lifecycle state of a single stage slot.
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
)

// IsTerminal reports whether an attempt has finished.
func (s StageStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
