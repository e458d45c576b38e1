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

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/pkg/log"
	"github.com/go-arcade/aps/pkg/metrics"
	"github.com/go-arcade/aps/pkg/retry"
	"github.com/go-arcade/aps/pkg/trace"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"
)

const (
	pathLoadData         = "/api/v1/stage1/load-data"
	pathLoadExternalData = "/api/v1/stage1/load-external-data"
	pathPreprocess       = "/api/v1/stage2/preprocessing"
	pathPredictYield     = "/api/v1/stage3/yield-prediction"
	pathBuildDag         = "/api/v1/stage4/dag-creation"
	pathSchedule         = "/api/v1/stage5/scheduling"
	pathScheduleStatus   = "/api/v1/stage5/status/{sessionId}"
	pathPostprocess      = "/api/v1/stage6/results"
	pathSession          = "/api/v1/session/{sessionId}"
	pathHealth           = "/health"
)

// Conf is the [engine] section.
type Conf struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// QPS limits outgoing requests, 0 disables the limiter.
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
	// StatusRetries is how many times a status query or health probe is tried.
	StatusRetries int `mapstructure:"status_retries"`
	// RetryInterval is the first backoff of StatusRetries.
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

func DefaultConf() Conf {
	return Conf{
		BaseURL:       "http://127.0.0.1:8000",
		Timeout:       5 * time.Minute,
		QPS:           20,
		Burst:         40,
		StatusRetries: 3,
		RetryInterval: 200 * time.Millisecond,
	}
}

// Client is the HTTP Executor.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	conf    Conf
	metrics *metrics.PipelineMetrics
}

var _ Executor = (*Client)(nil)

// NewClient builds the engine client. m may be nil.
func NewClient(conf Conf, m *metrics.PipelineMetrics) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(conf.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if conf.Timeout > 0 {
		c.SetTimeout(conf.Timeout)
	}

	var limiter *rate.Limiter
	if conf.QPS > 0 {
		burst := conf.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(conf.QPS), burst)
	}
	if conf.StatusRetries <= 0 {
		conf.StatusRetries = 1
	}
	if conf.RetryInterval <= 0 {
		conf.RetryInterval = DefaultConf().RetryInterval
	}
	return &Client{http: c, limiter: limiter, conf: conf, metrics: m}
}

func (c *Client) Execute(ctx context.Context, stage model.StageID, params model.StageParams, prior model.Results) (Outcome, error) {
	if stage == model.StageLoadData {
		return c.loadData(ctx, params)
	}

	sid := prior.EngineSessionID()
	if sid == "" {
		return Outcome{}, model.NewPreconditionError(stage, model.StageLoadData)
	}

	switch stage {
	case model.StagePreprocess:
		var out preprocessResponse
		if err := c.do(ctx, stage, http.MethodPost, pathPreprocess, nil, sessionRequest{SessionID: sid}, &out); err != nil {
			return Outcome{}, err
		}
		return Outcome{Payload: out.payload()}, nil
	case model.StagePredictYield:
		var out yieldResponse
		if err := c.do(ctx, stage, http.MethodPost, pathPredictYield, nil, sessionRequest{SessionID: sid}, &out); err != nil {
			return Outcome{}, err
		}
		return Outcome{Payload: out.payload()}, nil
	case model.StageBuildDag:
		var out dagResponse
		if err := c.do(ctx, stage, http.MethodPost, pathBuildDag, nil, sessionRequest{SessionID: sid}, &out); err != nil {
			return Outcome{}, err
		}
		return Outcome{Payload: out.payload()}, nil
	case model.StageSchedule:
		sp, ok := params.(*model.ScheduleParams)
		if !ok {
			return Outcome{}, model.NewValidationError(stage, "schedule parameters are required")
		}
		var out scheduleResponse
		req := scheduleRequest{SessionID: sid, WindowDays: sp.WindowSize}
		if err := c.do(ctx, stage, http.MethodPost, pathSchedule, nil, req, &out); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Payload:  model.ScheduleResult{Message: out.Message, WindowSize: sp.WindowSize},
			Accepted: true,
		}, nil
	case model.StagePostprocess:
		var out postprocessResponse
		if err := c.do(ctx, stage, http.MethodPost, pathPostprocess, nil, sessionRequest{SessionID: sid}, &out); err != nil {
			return Outcome{}, err
		}
		return Outcome{Payload: out.payload()}, nil
	default:
		return Outcome{}, model.NewValidationError(stage, "unknown stage")
	}
}

func (c *Client) loadData(ctx context.Context, params model.StageParams) (Outcome, error) {
	stage := model.StageLoadData
	lp, ok := params.(*model.LoadDataParams)
	if !ok || lp == nil {
		return Outcome{}, model.NewValidationError(stage, "load data parameters are required")
	}

	var out loadDataResponse
	var err error
	if lp.External != nil {
		req := externalRequest{BaseURL: lp.External.BaseURL, APIKey: lp.External.APIKey, UseMock: lp.External.UseMock}
		err = c.do(ctx, stage, http.MethodPost, pathLoadExternalData, nil, req, &out)
	} else {
		err = c.do(ctx, stage, http.MethodPost, pathLoadData, nil, lp.Data, &out)
	}
	if err != nil {
		return Outcome{}, err
	}
	if out.SessionID == "" {
		return Outcome{}, model.NewEngineBusinessError(stage, "engine returned no session id")
	}
	return Outcome{Payload: out.payload()}, nil
}

// Poll asks the engine for the state of a background stage. Transport
// failures are retried; the engine is never asked to do work here.
func (c *Client) Poll(ctx context.Context, stage model.StageID, prior model.Results) (AsyncStatus, error) {
	if !stage.IsAsync() {
		return AsyncStatus{}, model.NewValidationError(stage, "stage is not asynchronous")
	}
	sid := prior.EngineSessionID()
	if sid == "" {
		return AsyncStatus{}, model.NewPreconditionError(stage, model.StageLoadData)
	}

	var out scheduleStatusResponse
	err := c.withRetry(ctx, func(ctx context.Context) error {
		out = scheduleStatusResponse{}
		return c.do(ctx, stage, http.MethodGet, pathScheduleStatus, map[string]string{"sessionId": sid}, nil, &out)
	})
	if err != nil {
		return AsyncStatus{}, err
	}

	st := AsyncStatus{Message: out.Message}
	switch strings.ToLower(out.Status) {
	case "completed":
		st.Status = model.StatusCompleted
		st.Payload = model.ScheduleResult{
			Message:       out.Message,
			ScheduledJobs: out.ScheduledJobs,
			Makespan:      out.Makespan,
			CompletedAt:   out.CompletedAt,
		}
	case "failed":
		st.Status = model.StatusFailed
	case "running", "pending", "":
		st.Status = model.StatusRunning
	default:
		return AsyncStatus{}, model.NewEngineBusinessError(stage, fmt.Sprintf("unknown engine status %q", out.Status))
	}
	return st, nil
}

func (c *Client) Release(ctx context.Context, engineSessionID string) error {
	if engineSessionID == "" {
		return nil
	}
	return c.do(ctx, "", http.MethodDelete, pathSession, map[string]string{"sessionId": engineSessionID}, nil, nil)
}

// Health probes the engine, retrying transport failures.
func (c *Client) Health(ctx context.Context) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		return c.do(ctx, "", http.MethodGet, pathHealth, nil, nil, nil)
	})
}

func (c *Client) withRetry(ctx context.Context, fn retry.Func) error {
	return retry.Do(ctx, fn,
		retry.WithMaxAttempts(c.conf.StatusRetries),
		retry.WithBackoff(retry.Exponential(c.conf.RetryInterval, 5*c.conf.RetryInterval)),
		retry.WithJitter(retry.FullJitter),
		retry.WithRetryIf(func(err error) bool {
			return errors.Is(err, model.ErrTransport) && ctx.Err() == nil
		}),
		retry.OnRetry(func(attempt int, err error) {
			log.WithContext(ctx).Warnw("engine request failed, retrying", "attempt", attempt, "error", err)
		}),
	)
}

// do sends one request. out may be nil when the body is not needed.
func (c *Client) do(ctx context.Context, stage model.StageID, method, path string, pathParams map[string]string, body, out any) error {
	ctx, span := trace.StartSpan(ctx, "engine "+method+" "+path)
	defer span.End()
	trace.AddSpanAttributes(span,
		attribute.String("aps.stage", stage.String()),
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)

	err := c.send(ctx, stage, method, path, pathParams, body, out)
	if err != nil {
		trace.RecordError(span, err)
	}
	c.record(path, err)
	return err
}

func (c *Client) send(ctx context.Context, stage model.StageID, method, path string, pathParams map[string]string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.NewTransportError(stage, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	req := c.http.R().SetContext(ctx)
	trace.Inject(ctx, propagation.HeaderCarrier(req.Header))
	if len(pathParams) > 0 {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return model.NewTransportError(stage, err)
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return model.NewTransportError(stage, fmt.Errorf("engine responded %d: %s", status, errorDetail(resp.Body())))
	case status == http.StatusNotFound && method == http.MethodDelete:
		// already gone
		return nil
	case status >= 300:
		return model.NewEngineBusinessError(stage, errorDetail(resp.Body()))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return model.NewEngineBusinessError(stage, fmt.Sprintf("malformed engine response: %v", err))
	}
	return nil
}

func (c *Client) record(path string, err error) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	if se, ok := model.AsStageError(err); ok {
		result = strings.ToLower(string(se.Code))
	} else if err != nil {
		result = "error"
	}
	c.metrics.RecordEngineRequest(path, result)
}

// errorDetail extracts a human readable message from an engine error body.
func errorDetail(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Detail != nil {
		switch d := er.Detail.(type) {
		case string:
			return d
		default:
			raw, _ := json.Marshal(d)
			return string(raw)
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "engine returned an empty error"
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}
