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
	"fmt"
	"slices"

	"github.com/go-arcade/aps/internal/aps/model"
)

// Gate is the set of stages that pause the pipeline once completed until an
// operator confirms them.
type Gate struct {
	stages map[model.StageID]struct{}
}

// NewGate parses stage names in any accepted spelling. The last stage cannot
// be gated since nothing follows it.
func NewGate(names ...string) (Gate, error) {
	g := Gate{stages: make(map[model.StageID]struct{}, len(names))}
	for _, name := range names {
		st, err := model.ParseStage(name)
		if err != nil {
			return Gate{}, fmt.Errorf("confirm stage: %w", err)
		}
		if _, ok := st.Next(); !ok {
			return Gate{}, fmt.Errorf("confirm stage: %s has no successor to gate", st)
		}
		g.stages[st] = struct{}{}
	}
	return g, nil
}

// MustGate is NewGate for fixed, known-good stage lists.
func MustGate(stages ...model.StageID) Gate {
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.String()
	}
	g, err := NewGate(names...)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Gate) Gated(stage model.StageID) bool {
	_, ok := g.stages[stage]
	return ok
}

// Stages lists the gated stages in pipeline order.
func (g Gate) Stages() []model.StageID {
	out := make([]model.StageID, 0, len(g.stages))
	for st := range g.stages {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b model.StageID) int { return a.Index() - b.Index() })
	return out
}

// blocks reports whether a pending confirmation of awaiting holds back stage.
func blocks(awaiting *model.StageID, stage model.StageID) bool {
	return awaiting != nil && awaiting.Before(stage)
}
