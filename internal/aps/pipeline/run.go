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
	"errors"

	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/pkg/log"
	"github.com/go-arcade/aps/pkg/loop"
)

// PipelineRequest runs every remaining stage of a session. LoadData is only
// needed while the LoadData stage has not completed.
type PipelineRequest struct {
	SessionID   string
	LoadData    *model.LoadDataParams
	WindowSize  int
	AutoConfirm bool
}

// RunPipeline advances the session stage by stage, waiting for the async
// stage to finish. It stops without error at a confirmation gate unless
// AutoConfirm is set, and returns the latest snapshot either way.
func (o *Orchestrator) RunPipeline(ctx context.Context, req PipelineRequest) (*model.Session, error) {
	if o.conf.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.conf.PipelineTimeout)
		defer cancel()
	}

	sid := req.SessionID
	if sid == "" {
		if req.LoadData == nil {
			return nil, model.NewValidationError(model.StageLoadData, "sessionId or load data input is required")
		}
		view, err := o.RunStage(ctx, StageRequest{Stage: model.StageLoadData, Params: req.LoadData})
		if err != nil {
			return nil, err
		}
		sid = view.SessionID
	}

	logger := log.WithContext(ctx)
	for _, stage := range model.Stages() {
		sess, err := o.store.Get(ctx, sid)
		if err != nil {
			return nil, err
		}

		rec := sess.Record(stage)
		switch {
		case rec.Status == model.StatusCompleted:
		case stage.IsAsync() && rec.Status == model.StatusRunning && rec.Accepted:
			if err := o.await(ctx, sid, stage); err != nil {
				return o.snapshot(ctx, sid, err)
			}
		default:
			if err := o.runOne(ctx, sid, stage, req); err != nil {
				return o.snapshot(ctx, sid, err)
			}
		}

		sess, err = o.store.Get(ctx, sid)
		if err != nil {
			return nil, err
		}
		if sess.AwaitingConfirmation != nil && *sess.AwaitingConfirmation == stage {
			if !req.AutoConfirm {
				logger.Infow("pipeline paused for confirmation", "session", sid, "stage", stage)
				return sess, nil
			}
			if _, err := o.Confirm(ctx, sid, stage); err != nil {
				return o.snapshot(ctx, sid, err)
			}
		}
	}
	return o.store.Get(ctx, sid)
}

func (o *Orchestrator) runOne(ctx context.Context, sid string, stage model.StageID, req PipelineRequest) error {
	sr := StageRequest{SessionID: sid, Stage: stage}
	switch stage {
	case model.StageLoadData:
		if req.LoadData == nil {
			return model.NewValidationError(stage, "load data input is required")
		}
		sr.Params = req.LoadData
	case model.StageSchedule:
		if req.WindowSize != 0 {
			sr.Params = &model.ScheduleParams{WindowSize: req.WindowSize}
		}
	}

	view, err := o.RunStage(ctx, sr)
	if err != nil {
		return err
	}
	if view.Status == model.StatusRunning {
		return o.await(ctx, sid, stage)
	}
	return nil
}

// await polls an async stage until it settles.
func (o *Orchestrator) await(ctx context.Context, sid string, stage model.StageID) error {
	l := loop.New(
		loop.WithContext(ctx),
		loop.WithInterval(o.conf.PollInterval),
		loop.WithDeclineRatio(1.5),
		loop.WithDeclineLimit(o.conf.PollMaxInterval),
	)
	err := l.Do(func() (bool, error) {
		view, err := o.PollStage(ctx, sid, stage)
		if err != nil {
			// engine hiccups back off and try again
			return !errors.Is(err, model.ErrTransport), err
		}
		switch view.Status {
		case model.StatusCompleted:
			return true, nil
		case model.StatusFailed:
			return true, model.NewEngineBusinessError(stage, view.ErrorMessage)
		default:
			return false, nil
		}
	})
	if _, typed := model.AsStageError(err); !typed && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return model.NewTimeoutError(stage, err)
	}
	return err
}

// snapshot pairs the latest session state with the error that stopped the run.
func (o *Orchestrator) snapshot(ctx context.Context, sid string, cause error) (*model.Session, error) {
	sess, err := o.store.Get(context.WithoutCancel(ctx), sid)
	if err != nil {
		return nil, cause
	}
	return sess, cause
}
