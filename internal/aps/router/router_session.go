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
	"github.com/go-arcade/aps/pkg/http/middleware"
	"github.com/gofiber/fiber/v2"
)

func (rt *Router) routerSession(r fiber.Router) {
	sessionGroup := r.Group("/sessions")
	{
		sessionGroup.Post("/", rt.createSession)                    // POST /sessions
		sessionGroup.Get("/:sessionId", rt.getSession)              // GET /sessions/:sessionId
		sessionGroup.Delete("/:sessionId", rt.deleteSession)        // DELETE /sessions/:sessionId
		sessionGroup.Post("/:sessionId/confirm", rt.confirmSession) // POST /sessions/:sessionId/confirm
	}
}

type confirmRequest struct {
	Stage string `json:"stage"`
}

func (rt *Router) createSession(c *fiber.Ctx) error {
	sess, err := rt.Orch.CreateSession(c.UserContext())
	if err != nil {
		return rt.fail(c, "", err)
	}
	c.Locals(middleware.DETAIL, fiber.Map{"sessionId": sess.ID})
	c.Locals(middleware.OPERATION, "create session")
	return nil
}

func (rt *Router) getSession(c *fiber.Ctx) error {
	sess, err := rt.Orch.GetSessionStatus(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return rt.fail(c, "", err)
	}
	c.Locals(middleware.DETAIL, sess)
	return nil
}

func (rt *Router) deleteSession(c *fiber.Ctx) error {
	if err := rt.Orch.DeleteSession(c.UserContext(), c.Params("sessionId")); err != nil {
		return rt.fail(c, "", err)
	}
	c.Locals(middleware.OPERATION, "delete session")
	return nil
}

func (rt *Router) confirmSession(c *fiber.Ctx) error {
	sid := c.Params("sessionId")

	var req confirmRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return rt.fail(c, "", badRequest("", "invalid request body"))
		}
	}
	var expected model.StageID
	if req.Stage != "" {
		st, err := model.ParseStage(req.Stage)
		if err != nil {
			return rt.fail(c, "", badRequest("", err.Error()))
		}
		expected = st
	}

	confirmed, err := rt.Orch.Confirm(c.UserContext(), sid, expected)
	if err != nil {
		return rt.fail(c, sid, err)
	}
	c.Locals(middleware.DETAIL, fiber.Map{"sessionId": sid, "stage": confirmed, "ok": true})
	return nil
}
