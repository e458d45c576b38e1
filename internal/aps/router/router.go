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
	"strings"

	"github.com/go-arcade/aps/internal/aps/engine"
	"github.com/go-arcade/aps/internal/aps/pipeline"
	"github.com/go-arcade/aps/pkg/http"
	"github.com/go-arcade/aps/pkg/http/middleware"
	"github.com/go-arcade/aps/pkg/metrics"
	"github.com/go-arcade/aps/pkg/shutdown"
	"github.com/go-arcade/aps/pkg/version"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

type Router struct {
	Http     *http.Http
	Orch     *pipeline.Orchestrator
	Engine   engine.Executor
	Metrics  *metrics.Server
	Shutdown *shutdown.Manager
}

func NewRouter(
	httpConf *http.Http,
	orch *pipeline.Orchestrator,
	exec engine.Executor,
	metricsServer *metrics.Server,
	shutdownMgr *shutdown.Manager,
) *Router {
	return &Router{
		Http:     httpConf,
		Orch:     orch,
		Engine:   exec,
		Metrics:  metricsServer,
		Shutdown: shutdownMgr,
	}
}

func (rt *Router) Router() *fiber.App {
	app := http.NewFiberApp("APS Gateway", rt.Http)

	// 中间件
	app.Use(
		middleware.ExceptionMiddleware,
		middleware.CorsMiddleware(),
		middleware.RealIPMiddleware(),
		middleware.RequestMiddleware(),
		middleware.AccessLogMiddleware(rt.Http),
		middleware.TraceMiddleware(),
		middleware.UnifiedResponseMiddleware(),
	)

	// 健康检查
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/health/engine", rt.engineHealth)

	app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(version.GetVersion())
	})

	if rt.Http.ExposeMetrics && rt.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(rt.Metrics.Handler()))
	}

	api := app.Group(contextPath(rt.Http.ContextPath), middleware.ShutdownMiddleware(rt.Shutdown))
	rt.routerSession(api)
	rt.routerStage(api)
	rt.routerPipeline(api)

	// 找不到路径时的处理, 必须在所有路由注册之后
	app.Use(func(c *fiber.Ctx) error {
		return http.WithRepErr(c, fiber.StatusNotFound, "request path not found", c.Path())
	})

	return app
}

func contextPath(p string) string {
	if p == "" {
		return "/api/v1"
	}
	return "/" + strings.Trim(p, "/")
}

func (rt *Router) engineHealth(c *fiber.Ctx) error {
	if err := rt.Engine.Health(c.UserContext()); err != nil {
		return rt.fail(c, "", err)
	}
	c.Locals(middleware.DETAIL, fiber.Map{"engine": "healthy"})
	return nil
}
