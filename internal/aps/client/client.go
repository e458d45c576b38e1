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

// Package client is a Go client of the gateway's HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/pkg/loop"
	"github.com/go-resty/resty/v2"
)

// StageView mirrors the gateway's per-stage response.
type StageView struct {
	SessionID            string            `json:"sessionId"`
	Stage                model.StageID     `json:"stage"`
	Status               model.StageStatus `json:"status"`
	Payload              json.RawMessage   `json:"payload,omitempty"`
	ErrorMessage         string            `json:"errorMessage,omitempty"`
	ErrorCode            model.ErrorCode   `json:"errorCode,omitempty"`
	Attempt              int               `json:"attempt"`
	AwaitingConfirmation *model.StageID    `json:"awaitingConfirmation,omitempty"`
}

// Result decodes the payload into the stage's typed result.
func (v StageView) Result() (model.Payload, error) {
	return model.DecodePayload(v.Stage, v.Payload)
}

type envelope struct {
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	ErrMsg string          `json:"errMsg"`
	Path   string          `json:"path"`
	Detail json.RawMessage `json:"detail"`
}

type failureDetail struct {
	Stage        model.StageID     `json:"stage"`
	Status       model.StageStatus `json:"status"`
	ErrorCode    model.ErrorCode   `json:"errorCode"`
	Message      string            `json:"message"`
	Prerequisite model.StageID     `json:"prerequisite"`
}

// Client talks to one gateway. Failures carrying a taxonomy code come back
// as *model.StageError so callers can use errors.Is with the model sentinels.
type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c}
}

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

func (c *Client) GetSession(ctx context.Context, sid string) (*model.Session, error) {
	var out model.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/{sessionId}", pathSession(sid), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSession(ctx context.Context, sid string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/{sessionId}", pathSession(sid), nil, nil)
}

// Confirm clears the pending confirmation; stage may be empty.
func (c *Client) Confirm(ctx context.Context, sid string, stage model.StageID) (model.StageID, error) {
	var out struct {
		Stage model.StageID `json:"stage"`
	}
	body := map[string]string{}
	if stage != "" {
		body["stage"] = stage.String()
	}
	if err := c.do(ctx, http.MethodPost, "/sessions/{sessionId}/confirm", pathSession(sid), body, &out); err != nil {
		return "", err
	}
	return out.Stage, nil
}

// LoadData runs stage 1; an empty sid lets the gateway create the session.
func (c *Client) LoadData(ctx context.Context, sid string, params model.LoadDataParams) (StageView, error) {
	body := struct {
		SessionID string `json:"sessionId,omitempty"`
		model.LoadDataParams
	}{sid, params}
	var out StageView
	err := c.do(ctx, http.MethodPost, "/stages/load-data", nil, body, &out)
	return out, err
}

var stagePaths = map[model.StageID]string{
	model.StagePreprocess:   "/stages/preprocess",
	model.StagePredictYield: "/stages/predict-yield",
	model.StageBuildDag:     "/stages/build-dag",
	model.StagePostprocess:  "/stages/postprocess",
}

// RunStage runs one synchronous stage other than LoadData.
func (c *Client) RunStage(ctx context.Context, sid string, stage model.StageID) (StageView, error) {
	path, ok := stagePaths[stage]
	if !ok {
		return StageView{}, model.NewValidationError(stage, "stage cannot be run with RunStage")
	}
	var out StageView
	err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"sessionId": sid}, &out)
	return out, err
}

// StartSchedule submits the async stage; windowSize 0 uses the server default.
func (c *Client) StartSchedule(ctx context.Context, sid string, windowSize int) (StageView, error) {
	body := map[string]any{"sessionId": sid}
	if windowSize > 0 {
		body["windowSize"] = windowSize
	}
	var out StageView
	err := c.do(ctx, http.MethodPost, "/stages/schedule", nil, body, &out)
	return out, err
}

func (c *Client) PollSchedule(ctx context.Context, sid string) (StageView, error) {
	var out StageView
	err := c.do(ctx, http.MethodGet, "/stages/schedule/{sessionId}/status", pathSession(sid), nil, &out)
	return out, err
}

// WaitSchedule polls until the async stage leaves running or ctx ends.
func (c *Client) WaitSchedule(ctx context.Context, sid string, interval time.Duration) (StageView, error) {
	var last StageView
	l := loop.New(
		loop.WithContext(ctx),
		loop.WithInterval(interval),
		loop.WithDeclineRatio(1.5),
		loop.WithDeclineLimit(10*interval),
	)
	err := l.Do(func() (bool, error) {
		v, err := c.PollSchedule(ctx, sid)
		if err != nil {
			// taxonomy errors are final, anything else is retried with backoff
			_, final := model.AsStageError(err)
			return final, err
		}
		last = v
		return v.Status != model.StatusRunning, nil
	})
	return last, err
}

// PipelineRequest mirrors the gateway's full-run request.
type PipelineRequest struct {
	SessionID   string                `json:"sessionId,omitempty"`
	Data        *model.ProductionData `json:"data,omitempty"`
	External    *model.ExternalSource `json:"external,omitempty"`
	WindowSize  int                   `json:"windowSize,omitempty"`
	AutoConfirm bool                  `json:"autoConfirm,omitempty"`
}

func (c *Client) RunPipeline(ctx context.Context, req PipelineRequest) (*model.Session, error) {
	var out model.Session
	if err := c.do(ctx, http.MethodPost, "/pipeline/run", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pathSession(sid string) map[string]string {
	return map[string]string{"sessionId": sid}
}

func (c *Client) do(ctx context.Context, method, path string, pathParams map[string]string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if len(pathParams) > 0 {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%s %s: unexpected response (%d): %w", method, path, resp.StatusCode(), err)
	}
	if resp.StatusCode() >= 300 {
		return decodeFailure(resp.StatusCode(), env)
	}
	if out == nil || len(env.Detail) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Detail, out); err != nil {
		return fmt.Errorf("%s %s: decode detail: %w", method, path, err)
	}
	return nil
}

func decodeFailure(status int, env envelope) error {
	var d failureDetail
	if len(env.Detail) > 0 && json.Unmarshal(env.Detail, &d) == nil && d.ErrorCode != "" {
		return &model.StageError{
			Code:         d.ErrorCode,
			Stage:        d.Stage,
			Prerequisite: d.Prerequisite,
			Message:      d.Message,
		}
	}
	msg := env.ErrMsg
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("gateway responded %d: %s", status, msg)
}
