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
	"testing"

	"github.com/go-arcade/aps/internal/aps/engine"
	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// call is one generated orchestrator call.
type call struct {
	Stage int
	Fail  bool
	Poll  bool
}

func genCall() gopter.Gen {
	return gopter.CombineGens(gen.IntRange(0, 5), gen.Bool(), gen.Bool()).Map(func(v []any) call {
		return call{Stage: v[0].(int), Fail: v[1].(bool), Poll: v[2].(bool)}
	})
}

// checkSession verifies the ordering and completedAt invariants on a snapshot.
func checkSession(sess *model.Session) bool {
	for i, st := range model.Stages() {
		rec := sess.Stages[st]
		if (rec.CompletedAt != nil) != rec.Status.IsTerminal() {
			return false
		}
		if rec.Status == model.StatusRunning || rec.Status == model.StatusCompleted {
			for _, pre := range model.Stages()[:i] {
				if sess.Stages[pre].Status != model.StatusCompleted {
					return false
				}
			}
		}
	}
	return true
}

func TestStageInvariantsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ordering and completedAt hold after any call sequence", prop.ForAll(
		func(calls []call) bool {
			f := newFixture(t, MustGate(model.StagePredictYield))
			ctx := context.Background()
			sess, err := f.orch.CreateSession(ctx)
			if err != nil {
				return false
			}

			var fail bool
			failing := func(ctx context.Context, stage model.StageID, params model.StageParams, _ model.Results) (engine.Outcome, error) {
				if fail {
					return engine.Outcome{}, model.NewEngineBusinessError(stage, "generated failure")
				}
				return defaultOutcome(stage, params), nil
			}
			for _, st := range model.Stages() {
				f.exec.on(st, failing)
			}

			for _, c := range calls {
				stage := model.Stages()[c.Stage]
				fail = c.Fail
				before, err := f.orch.GetSessionStatus(ctx, sess.ID)
				if err != nil {
					return false
				}

				var params model.StageParams
				if stage == model.StageLoadData {
					params = validLoadData()
				}
				_, runErr := f.orch.RunStage(ctx, StageRequest{SessionID: sess.ID, Stage: stage, Params: params})

				// out-of-order requests are rejected with the first unmet stage
				if missing, unmet := before.FirstUnmet(stage); unmet {
					se, ok := model.AsStageError(runErr)
					if !ok || se.Code != model.CodeStagePrecondition || se.Prerequisite != missing {
						return false
					}
				}

				if c.Poll {
					if _, err := f.orch.PollStage(ctx, sess.ID, model.StageSchedule); err != nil {
						return false
					}
				}
				if stage == model.StagePredictYield && runErr == nil && c.Poll {
					if _, err := f.orch.Confirm(ctx, sess.ID, stage); err != nil {
						return false
					}
				}

				after, err := f.orch.GetSessionStatus(ctx, sess.ID)
				if err != nil || !checkSession(after) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(24, genCall()),
	))

	properties.TestingRun(t)
}
