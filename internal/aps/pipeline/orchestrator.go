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

// Package pipeline drives sessions through the six ordered stages. It owns
// the ordering rules, the confirmation gate and the async poll protocol;
// all state lives in the session store.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/go-arcade/aps/internal/aps/engine"
	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/internal/aps/session"
	"github.com/go-arcade/aps/pkg/event"
	"github.com/go-arcade/aps/pkg/id"
	"github.com/go-arcade/aps/pkg/log"
	"github.com/go-arcade/aps/pkg/safe"
	"github.com/go-arcade/aps/pkg/statemachine"
	"golang.org/x/sync/singleflight"
)

// Conf is the [pipeline] section.
type Conf struct {
	// ConfirmStages are the gated stages.
	ConfirmStages     []string      `mapstructure:"confirm_stages"`
	DefaultWindowSize int           `mapstructure:"default_window_size"`
	LoadDataTimeout   time.Duration `mapstructure:"load_data_timeout"`
	StageTimeout      time.Duration `mapstructure:"stage_timeout"`
	// ScheduleAcceptTimeout bounds the accept call of the async stage only.
	ScheduleAcceptTimeout time.Duration `mapstructure:"schedule_accept_timeout"`
	// PollInterval and PollMaxInterval pace RunPipeline while it waits on the async stage.
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollMaxInterval time.Duration `mapstructure:"poll_max_interval"`
	PipelineTimeout time.Duration `mapstructure:"pipeline_timeout"`
	ReleaseTimeout  time.Duration `mapstructure:"release_timeout"`
}

func DefaultConf() Conf {
	return Conf{
		ConfirmStages:         []string{},
		DefaultWindowSize:     5,
		LoadDataTimeout:       30 * time.Second,
		StageTimeout:          60 * time.Second,
		ScheduleAcceptTimeout: 10 * time.Second,
		PollInterval:          2 * time.Second,
		PollMaxInterval:       15 * time.Second,
		PipelineTimeout:       30 * time.Minute,
		ReleaseTimeout:        10 * time.Second,
	}
}

// StageRequest asks for one stage execution. SessionID may be empty only for
// LoadData, which then creates the session. Timeout overrides the configured
// stage timeout when positive.
type StageRequest struct {
	SessionID string
	Stage     model.StageID
	Params    model.StageParams
	Timeout   time.Duration
}

// StageView is what callers learn about one stage after an operation.
type StageView struct {
	SessionID            string            `json:"sessionId"`
	Stage                model.StageID     `json:"stage"`
	Status               model.StageStatus `json:"status"`
	Payload              model.Payload     `json:"payload,omitempty"`
	ErrorMessage         string            `json:"errorMessage,omitempty"`
	ErrorCode            model.ErrorCode   `json:"errorCode,omitempty"`
	Attempt              int               `json:"attempt"`
	AwaitingConfirmation *model.StageID    `json:"awaitingConfirmation,omitempty"`
}

func viewOf(sess *model.Session, stage model.StageID) StageView {
	rec := sess.Record(stage).Clone()
	v := StageView{
		SessionID:    sess.ID,
		Stage:        stage,
		Status:       rec.Status,
		Payload:      rec.Payload,
		ErrorMessage: rec.ErrorMessage,
		ErrorCode:    rec.ErrorCode,
		Attempt:      rec.Attempt,
	}
	if sess.AwaitingConfirmation != nil {
		a := *sess.AwaitingConfirmation
		v.AwaitingConfirmation = &a
	}
	return v
}

var errSuperseded = errors.New("attempt superseded")

type Orchestrator struct {
	store session.Store
	exec  engine.Executor
	gate  Gate
	conf  Conf
	bus   *event.EventBus
	rules *statemachine.StateMachine[model.StageStatus]
	polls singleflight.Group
	now   func() time.Time
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithEventBus(bus *event.EventBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

func New(store session.Store, exec engine.Executor, gate Gate, conf Conf, opts ...Option) *Orchestrator {
	def := DefaultConf()
	if conf.DefaultWindowSize <= 0 {
		conf.DefaultWindowSize = def.DefaultWindowSize
	}
	if conf.LoadDataTimeout <= 0 {
		conf.LoadDataTimeout = def.LoadDataTimeout
	}
	if conf.StageTimeout <= 0 {
		conf.StageTimeout = def.StageTimeout
	}
	if conf.ScheduleAcceptTimeout <= 0 {
		conf.ScheduleAcceptTimeout = def.ScheduleAcceptTimeout
	}
	if conf.PollInterval <= 0 {
		conf.PollInterval = def.PollInterval
	}
	if conf.PollMaxInterval < conf.PollInterval {
		conf.PollMaxInterval = conf.PollInterval
	}
	if conf.ReleaseTimeout <= 0 {
		conf.ReleaseTimeout = def.ReleaseTimeout
	}
	o := &Orchestrator{
		store: store,
		exec:  exec,
		gate:  gate,
		conf:  conf,
		rules: NewStageStateMachine(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Gate() Gate { return o.gate }

func (o *Orchestrator) publish(e event.Event) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}

// attempt is one in-flight execution of a stage.
type attempt struct {
	sessionID string
	stage     model.StageID
	id        string
	number    int
	started   time.Time
	prev      model.StageRecord
	prior     model.Results
}

func (o *Orchestrator) timeout(stage model.StageID, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	switch stage {
	case model.StageLoadData:
		return o.conf.LoadDataTimeout
	case model.StageSchedule:
		return o.conf.ScheduleAcceptTimeout
	default:
		return o.conf.StageTimeout
	}
}

// params checks caller input before anything is touched.
func (o *Orchestrator) params(stage model.StageID, p model.StageParams) (model.StageParams, error) {
	switch stage {
	case model.StageLoadData:
		lp, ok := p.(*model.LoadDataParams)
		if !ok || lp == nil {
			return nil, model.NewValidationError(stage, "either data or external source is required")
		}
		return lp, lp.Validate()
	case model.StageSchedule:
		sp, ok := p.(*model.ScheduleParams)
		if p != nil && !ok {
			return nil, model.NewValidationError(stage, "unexpected parameters")
		}
		if sp == nil {
			sp = &model.ScheduleParams{WindowSize: o.conf.DefaultWindowSize}
		}
		return sp, sp.Validate()
	default:
		if p != nil {
			if err := p.Validate(); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
}

// RunStage executes one stage. Synchronous stages block until the engine
// answers or the timeout fires; the async stage returns as soon as the engine
// accepted the work, with status running.
func (o *Orchestrator) RunStage(ctx context.Context, req StageRequest) (StageView, error) {
	stage := req.Stage
	if !stage.Valid() {
		return StageView{}, model.NewValidationError(stage, "unknown stage")
	}
	params, err := o.params(stage, req.Params)
	if err != nil {
		return StageView{}, err
	}

	sid := req.SessionID
	created := false
	if sid == "" {
		if stage != model.StageLoadData {
			return StageView{}, model.NewValidationError(stage, "sessionId is required")
		}
		sess, err := o.CreateSession(ctx)
		if err != nil {
			return StageView{}, err
		}
		sid, created = sess.ID, true
	}

	timeout := o.timeout(stage, req.Timeout)
	att, err := o.begin(ctx, sid, stage, timeout)
	if err != nil {
		if created {
			o.discard(ctx, sid)
		}
		return StageView{}, err
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	out, execErr := o.exec.Execute(execCtx, stage, params, att.prior)
	timedOut := execErr != nil && execCtx.Err() != nil
	cancel()

	// the caller may be gone; the record must still be settled
	view, err := o.finish(context.WithoutCancel(ctx), att, out, execErr, timedOut)
	if err != nil && created {
		o.discard(ctx, sid)
	}
	return view, err
}

// begin checks ordering, the gate and the current record, then marks it Running.
func (o *Orchestrator) begin(ctx context.Context, sid string, stage model.StageID, timeout time.Duration) (*attempt, error) {
	now := o.now()
	att := &attempt{sessionID: sid, stage: stage, id: id.GetULID(), started: now}

	_, err := o.store.Update(ctx, sid, func(sess *model.Session) error {
		if missing, unmet := sess.FirstUnmet(stage); unmet {
			return model.NewPreconditionError(stage, missing)
		}
		if blocks(sess.AwaitingConfirmation, stage) {
			return model.NewConfirmationRequiredError(stage, *sess.AwaitingConfirmation)
		}

		rec := sess.Record(stage)
		ev := eventRun
		switch rec.Status {
		case model.StatusCompleted:
			return model.NewCompletedError(stage)
		case model.StatusRunning:
			if !rec.LeaseExpired(now) {
				return model.NewAlreadyRunningError(stage)
			}
			ev = eventTakeover
		}
		if err := o.rules.Check(rec.Status, model.StatusRunning, ev); err != nil {
			return model.NewInvalidStateError(stage, err.Error())
		}

		att.prev = rec.Clone()
		att.prior = sess.Results()
		att.number = rec.Attempt + 1
		started, deadline := now, now.Add(timeout)
		*rec = model.StageRecord{
			Stage:     stage,
			Status:    model.StatusRunning,
			StartedAt: &started,
			Attempt:   att.number,
			AttemptID: att.id,
			Deadline:  &deadline,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.publish(StageTransition{
		SessionID: sid,
		Stage:     stage,
		From:      att.prev.Status,
		To:        model.StatusRunning,
		Attempt:   att.number,
		Outcome:   OutcomeStarted,
	})
	return att, nil
}

// finish records the engine outcome on the attempt's record.
func (o *Orchestrator) finish(ctx context.Context, att *attempt, out engine.Outcome, execErr error, timedOut bool) (StageView, error) {
	stage := att.stage
	now := o.now()

	if execErr == nil {
		if out.Accepted {
			sess, err := o.commit(ctx, att, model.StatusRunning, eventRun, OutcomeAccepted, func(_ *model.Session, rec *model.StageRecord) {
				rec.Accepted = true
				rec.Deadline = nil
				rec.Payload = out.Payload
			})
			if err != nil {
				return StageView{}, err
			}
			return viewOf(sess, stage), nil
		}

		sess, err := o.commit(ctx, att, model.StatusCompleted, eventComplete, OutcomeCompleted, func(s *model.Session, rec *model.StageRecord) {
			rec.Status = model.StatusCompleted
			rec.CompletedAt = &now
			rec.Deadline = nil
			rec.Payload = out.Payload
			if o.gate.Gated(stage) {
				st := stage
				s.AwaitingConfirmation = &st
			}
		})
		if err != nil {
			return StageView{}, err
		}
		return viewOf(sess, stage), nil
	}

	if timedOut {
		// stays Running with an expired lease so a retry can take over
		_, err := o.commit(ctx, att, model.StatusRunning, eventRun, OutcomeTimeout, func(_ *model.Session, rec *model.StageRecord) {
			rec.Deadline = &now
		})
		if err != nil && !errors.Is(err, model.ErrInvalidState) {
			log.Errorw("failed to record stage timeout", "session", att.sessionID, "stage", stage, "error", err)
		}
		return StageView{}, model.NewTimeoutError(stage, execErr)
	}

	if errors.Is(execErr, model.ErrTransport) {
		prev := att.prev
		_, err := o.commit(ctx, att, prev.Status, eventRevert, OutcomeReverted, func(_ *model.Session, rec *model.StageRecord) {
			*rec = prev.Clone()
		})
		if err != nil && !errors.Is(err, model.ErrInvalidState) {
			log.Errorw("failed to revert stage record", "session", att.sessionID, "stage", stage, "error", err)
		}
		return StageView{}, withStage(execErr, stage)
	}

	se, ok := model.AsStageError(execErr)
	if !ok {
		se = model.NewEngineBusinessError(stage, execErr.Error())
	}
	se = withStage(se, stage).(*model.StageError)
	_, err := o.commit(ctx, att, model.StatusFailed, eventFail, OutcomeFailed, func(_ *model.Session, rec *model.StageRecord) {
		rec.Status = model.StatusFailed
		rec.CompletedAt = &now
		rec.Deadline = nil
		rec.Payload = nil
		rec.ErrorMessage = se.Message
		rec.ErrorCode = se.Code
	})
	if err != nil {
		return StageView{}, err
	}
	return StageView{}, se
}

// commit applies fn to the attempt's record if the attempt still owns it.
func (o *Orchestrator) commit(ctx context.Context, att *attempt, to model.StageStatus, ev statemachine.Event, outcome string,
	fn func(*model.Session, *model.StageRecord)) (*model.Session, error) {
	var code model.ErrorCode
	sess, err := o.store.Update(ctx, att.sessionID, func(s *model.Session) error {
		rec := s.Record(att.stage)
		if rec.Status != model.StatusRunning || rec.AttemptID != att.id {
			return errSuperseded
		}
		if err := o.rules.Check(rec.Status, to, ev); err != nil {
			return model.NewInvalidStateError(att.stage, err.Error())
		}
		fn(s, rec)
		code = rec.ErrorCode
		return nil
	})
	if errors.Is(err, errSuperseded) {
		return nil, model.NewInvalidStateError(att.stage, "stage attempt was superseded by a newer attempt")
	}
	if err != nil {
		return nil, err
	}

	o.publish(StageTransition{
		SessionID: att.sessionID,
		Stage:     att.stage,
		From:      model.StatusRunning,
		To:        to,
		Attempt:   att.number,
		Outcome:   outcome,
		Code:      code,
		Duration:  o.now().Sub(att.started),
	})
	return sess, nil
}

func withStage(err error, stage model.StageID) error {
	se, ok := model.AsStageError(err)
	if !ok || se.Stage != "" {
		return err
	}
	c := *se
	c.Stage = stage
	return &c
}

// PollStage reports the state of an async stage. An accepted running attempt,
// or one whose accept call outlived its lease, causes an engine query.
// Concurrent polls of one record share that query; each caller still waits
// under its own ctx.
func (o *Orchestrator) PollStage(ctx context.Context, sid string, stage model.StageID) (StageView, error) {
	if !stage.Valid() {
		return StageView{}, model.NewValidationError(stage, "unknown stage")
	}
	if !stage.IsAsync() {
		return StageView{}, model.NewValidationError(stage, "stage is not asynchronous")
	}
	sess, err := o.store.Get(ctx, sid)
	if err != nil {
		return StageView{}, err
	}
	rec := sess.Record(stage)
	if rec.Status != model.StatusRunning || !(rec.Accepted || rec.LeaseExpired(o.now())) {
		return viewOf(sess, stage), nil
	}

	ch := o.polls.DoChan(sid+"/"+stage.String(), func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.conf.StageTimeout)
		defer cancel()
		return o.poll(pctx, sess, stage)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return StageView{}, r.Err
		}
		return r.Val.(StageView), nil
	case <-ctx.Done():
		return StageView{}, model.NewTimeoutError(stage, ctx.Err())
	}
}

func (o *Orchestrator) poll(ctx context.Context, sess *model.Session, stage model.StageID) (StageView, error) {
	rec := sess.Record(stage).Clone()
	st, err := o.exec.Poll(ctx, stage, sess.Results())
	if err != nil {
		if ctx.Err() != nil {
			return StageView{}, model.NewTimeoutError(stage, err)
		}
		return StageView{}, withStage(err, stage)
	}
	o.publish(StagePolled{SessionID: sess.ID, Stage: stage, Status: st.Status})

	if st.Status != model.StatusCompleted && st.Status != model.StatusFailed {
		return viewOf(sess, stage), nil
	}

	att := &attempt{sessionID: sess.ID, stage: stage, id: rec.AttemptID, number: rec.Attempt, started: o.now()}
	if rec.StartedAt != nil {
		att.started = *rec.StartedAt
	}
	now := o.now()
	cctx := context.WithoutCancel(ctx)

	var updated *model.Session
	if st.Status == model.StatusCompleted {
		payload := mergeSchedulePayload(rec.Payload, st.Payload)
		updated, err = o.commit(cctx, att, model.StatusCompleted, eventComplete, OutcomeCompleted, func(s *model.Session, r *model.StageRecord) {
			r.Status = model.StatusCompleted
			r.CompletedAt = &now
			r.Payload = payload
			r.Deadline = nil
			if o.gate.Gated(stage) {
				g := stage
				s.AwaitingConfirmation = &g
			}
		})
	} else {
		msg := st.Message
		if msg == "" {
			msg = "engine reported the stage as failed"
		}
		updated, err = o.commit(cctx, att, model.StatusFailed, eventFail, OutcomeFailed, func(_ *model.Session, r *model.StageRecord) {
			r.Status = model.StatusFailed
			r.CompletedAt = &now
			r.Payload = nil
			r.Deadline = nil
			r.ErrorMessage = msg
			r.ErrorCode = model.CodeEngineBusiness
		})
	}
	if errors.Is(err, model.ErrInvalidState) {
		// another poll settled it first
		updated, err = o.store.Get(cctx, sess.ID)
	}
	if err != nil {
		return StageView{}, err
	}
	return viewOf(updated, stage), nil
}

// mergeSchedulePayload keeps what the accept call knew, such as the window size.
func mergeSchedulePayload(accepted, final model.Payload) model.Payload {
	res, ok := final.(model.ScheduleResult)
	if !ok {
		return final
	}
	if prev, ok := accepted.(model.ScheduleResult); ok && res.WindowSize == 0 {
		res.WindowSize = prev.WindowSize
	}
	return res
}

// GetSessionStatus returns a snapshot of every stage record.
func (o *Orchestrator) GetSessionStatus(ctx context.Context, sid string) (*model.Session, error) {
	return o.store.Get(ctx, sid)
}

func (o *Orchestrator) CreateSession(ctx context.Context) (*model.Session, error) {
	sess, err := o.store.Create(ctx)
	if err != nil {
		return nil, err
	}
	log.WithContext(ctx).Infow("session created", "session", sess.ID)
	o.sessionChanged(ctx, sess.ID, false)
	return sess, nil
}

// DeleteSession removes the session at once and releases its engine state in
// the background.
func (o *Orchestrator) DeleteSession(ctx context.Context, sid string) error {
	sess, err := o.store.Get(ctx, sid)
	if err != nil {
		return err
	}
	if err := o.store.Delete(ctx, sid); err != nil {
		return err
	}
	log.WithContext(ctx).Infow("session deleted", "session", sid)
	o.sessionChanged(ctx, sid, true)

	if esid := sess.Results().EngineSessionID(); esid != "" {
		safe.Go(func() {
			rctx, cancel := context.WithTimeout(context.Background(), o.conf.ReleaseTimeout)
			defer cancel()
			if err := o.exec.Release(rctx, esid); err != nil {
				log.Warnw("failed to release engine session", "session", sid, "engine_session", esid, "error", err)
			}
		})
	}
	return nil
}

// discard drops a session created by a LoadData call that did not succeed.
func (o *Orchestrator) discard(ctx context.Context, sid string) {
	ctx = context.WithoutCancel(ctx)
	if err := o.store.Delete(ctx, sid); err != nil && !errors.Is(err, model.ErrNotFound) {
		log.Warnw("failed to discard session", "session", sid, "error", err)
		return
	}
	o.sessionChanged(ctx, sid, true)
}

func (o *Orchestrator) sessionChanged(ctx context.Context, sid string, deleted bool) {
	live, err := o.store.Len(ctx)
	if err != nil {
		log.Warnw("failed to count sessions", "error", err)
		return
	}
	o.publish(SessionChanged{SessionID: sid, Deleted: deleted, Live: live})
}

// Confirm clears a pending confirmation. expected may be empty to confirm
// whatever stage is waiting; otherwise it must match.
func (o *Orchestrator) Confirm(ctx context.Context, sid string, expected model.StageID) (model.StageID, error) {
	var confirmed model.StageID
	_, err := o.store.Update(ctx, sid, func(sess *model.Session) error {
		if sess.AwaitingConfirmation == nil {
			return model.NewInvalidStateError(expected, "no stage is awaiting confirmation")
		}
		awaiting := *sess.AwaitingConfirmation
		if expected != "" && expected != awaiting {
			return model.NewInvalidStateError(expected, "stage "+awaiting.String()+" is awaiting confirmation, not "+expected.String())
		}
		sess.AwaitingConfirmation = nil
		confirmed = awaiting
		return nil
	})
	if err != nil {
		return "", err
	}
	log.WithContext(ctx).Infow("stage confirmed", "session", sid, "stage", confirmed)
	return confirmed, nil
}
