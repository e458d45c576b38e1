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

package router

import (
	"time"

	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/internal/aps/pipeline"
	"github.com/go-arcade/aps/pkg/http/middleware"
	"github.com/gofiber/fiber/v2"
)

func (rt *Router) routerStage(r fiber.Router) {
	stageGroup := r.Group("/stages")
	{
		stageGroup.Post("/load-data", rt.loadData)                              // stage 1, creates the session when sessionId is empty
		stageGroup.Post("/preprocess", rt.runStage(model.StagePreprocess))      // stage 2
		stageGroup.Post("/predict-yield", rt.runStage(model.StagePredictYield)) // stage 3
		stageGroup.Post("/build-dag", rt.runStage(model.StageBuildDag))         // stage 4
		stageGroup.Post("/schedule", rt.schedule)                               // stage 5, async accept
		stageGroup.Get("/schedule/:sessionId/status", rt.scheduleStatus)        // stage 5 poll
		stageGroup.Post("/postprocess", rt.runStage(model.StagePostprocess))    // stage 6
	}
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type loadDataRequest struct {
	SessionID string `json:"sessionId"`
	model.LoadDataParams
}

type scheduleRequest struct {
	SessionID  string `json:"sessionId"`
	WindowSize *int   `json:"windowSize"`
}

// stageTimeout reads the optional ?timeout=30s override.
func stageTimeout(c *fiber.Ctx, stage model.StageID) (time.Duration, error) {
	raw := c.Query("timeout")
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, badRequest(stage, "timeout must be a positive duration such as 30s")
	}
	return d, nil
}

func (rt *Router) loadData(c *fiber.Ctx) error {
	stage := model.StageLoadData
	var req loadDataRequest
	if err := c.BodyParser(&req); err != nil {
		return rt.fail(c, "", badRequest(stage, "invalid request body"))
	}
	timeout, err := stageTimeout(c, stage)
	if err != nil {
		return rt.fail(c, "", err)
	}

	params := req.LoadDataParams
	view, err := rt.Orch.RunStage(c.UserContext(), pipeline.StageRequest{
		SessionID: req.SessionID,
		Stage:     stage,
		Params:    &params,
		Timeout:   timeout,
	})
	if err != nil {
		return rt.fail(c, req.SessionID, err)
	}
	c.Locals(middleware.DETAIL, view)
	return nil
}

func (rt *Router) runStage(stage model.StageID) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req sessionRequest
		if err := c.BodyParser(&req); err != nil {
			return rt.fail(c, "", badRequest(stage, "invalid request body"))
		}
		if req.SessionID == "" {
			return rt.fail(c, "", badRequest(stage, "sessionId is required"))
		}
		timeout, err := stageTimeout(c, stage)
		if err != nil {
			return rt.fail(c, "", err)
		}

		view, err := rt.Orch.RunStage(c.UserContext(), pipeline.StageRequest{
			SessionID: req.SessionID,
			Stage:     stage,
			Timeout:   timeout,
		})
		if err != nil {
			return rt.fail(c, req.SessionID, err)
		}
		c.Locals(middleware.DETAIL, view)
		return nil
	}
}

func (rt *Router) schedule(c *fiber.Ctx) error {
	stage := model.StageSchedule
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return rt.fail(c, "", badRequest(stage, "invalid request body"))
	}
	if req.SessionID == "" {
		return rt.fail(c, "", badRequest(stage, "sessionId is required"))
	}

	sr := pipeline.StageRequest{SessionID: req.SessionID, Stage: stage}
	if req.WindowSize != nil {
		sr.Params = &model.ScheduleParams{WindowSize: *req.WindowSize}
	}
	view, err := rt.Orch.RunStage(c.UserContext(), sr)
	if err != nil {
		return rt.fail(c, req.SessionID, err)
	}
	c.Locals(middleware.DETAIL, view)
	return nil
}

func (rt *Router) scheduleStatus(c *fiber.Ctx) error {
	sid := c.Params("sessionId")
	view, err := rt.Orch.PollStage(c.UserContext(), sid, model.StageSchedule)
	if err != nil {
		return rt.fail(c, sid, err)
	}
	c.Locals(middleware.DETAIL, view)
	return nil
}
