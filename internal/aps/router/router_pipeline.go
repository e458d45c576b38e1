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
	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/internal/aps/pipeline"
	"github.com/go-arcade/aps/pkg/http/middleware"
	"github.com/gofiber/fiber/v2"
)

func (rt *Router) routerPipeline(r fiber.Router) {
	r.Post("/pipeline/run", rt.runPipeline) // POST /pipeline/run
}

type pipelineRequest struct {
	SessionID   string                `json:"sessionId"`
	Data        *model.ProductionData `json:"data"`
	External    *model.ExternalSource `json:"external"`
	WindowSize  int                   `json:"windowSize"`
	AutoConfirm bool                  `json:"autoConfirm"`
}

func (rt *Router) runPipeline(c *fiber.Ctx) error {
	var req pipelineRequest
	if err := c.BodyParser(&req); err != nil {
		return rt.fail(c, "", badRequest("", "invalid request body"))
	}

	pr := pipeline.PipelineRequest{
		SessionID:   req.SessionID,
		WindowSize:  req.WindowSize,
		AutoConfirm: req.AutoConfirm,
	}
	if req.Data != nil || req.External != nil {
		pr.LoadData = &model.LoadDataParams{Data: req.Data, External: req.External}
	}

	sess, err := rt.Orch.RunPipeline(c.UserContext(), pr)
	if err != nil {
		sid := req.SessionID
		if sess != nil {
			sid = sess.ID
		}
		return rt.fail(c, sid, err)
	}
	c.Locals(middleware.DETAIL, sess)
	return nil
}
