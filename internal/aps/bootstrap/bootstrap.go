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

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-arcade/aps/internal/aps/conf"
	"github.com/go-arcade/aps/internal/aps/router"
	"github.com/go-arcade/aps/internal/aps/session"
	"github.com/go-arcade/aps/pkg/log"
	"github.com/go-arcade/aps/pkg/metrics"
	"github.com/go-arcade/aps/pkg/shutdown"
	"github.com/go-arcade/aps/pkg/trace"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type App struct {
	HttpApp  *fiber.App
	Sweeper  *session.Sweeper
	Metrics  *metrics.Server
	Shutdown *shutdown.Manager
	Logger   *zap.Logger
	AppConf  conf.AppConfig
}

// InitAppFunc is the wire injector of cmd/aps.
type InitAppFunc func(appConf conf.AppConfig, logger *zap.Logger) (*App, func(), error)

func NewApp(
	rt *router.Router,
	sweeper *session.Sweeper,
	metricsServer *metrics.Server,
	shutdownMgr *shutdown.Manager,
	logger *zap.Logger,
	appConf conf.AppConfig,
) (*App, func(), error) {
	httpApp := rt.Router()

	cleanup := func() {
		if sweeper != nil {
			logger.Info("Stopping session sweeper...")
			sweeper.Stop()
		}
	}

	app := &App{
		HttpApp:  httpApp,
		Sweeper:  sweeper,
		Metrics:  metricsServer,
		Shutdown: shutdownMgr,
		Logger:   logger,
		AppConf:  appConf,
	}
	return app, cleanup, nil
}

// ProvideSweeper builds the expiry sweeper and keeps the live session gauge
// current after every run.
func ProvideSweeper(store session.Store, sc session.Conf, m *metrics.PipelineMetrics) (*session.Sweeper, error) {
	spec := sc.SweepSpec
	if sc.TTL <= 0 && sc.Backend != "redis" {
		// nothing ever expires
		spec = ""
	}
	sw, err := session.NewSweeper(store, spec)
	if err != nil {
		return nil, err
	}
	if m != nil {
		sw.OnSweep = func(live int) { m.SessionsActive.Set(float64(live)) }
	}
	return sw, nil
}

// Bootstrap loads the configuration, initializes the logger and builds the app.
func Bootstrap(configFile string, initApp InitAppFunc) (*App, func(), conf.AppConfig, error) {
	appConf := conf.NewConf(configFile)

	logger, err := log.NewLog(&appConf.Log)
	if err != nil {
		return nil, nil, appConf, err
	}
	trace.SetupPropagator()

	app, cleanup, err := initApp(appConf, logger)
	if err != nil {
		return nil, nil, appConf, err
	}
	log.Infow("config file loaded",
		"path", configFile,
		"engine", appConf.Engine.BaseURL,
		"session.backend", appConf.Session.Backend,
		"pipeline.confirm_stages", appConf.Pipeline.ConfirmStages,
	)
	return app, cleanup, appConf, nil
}

// Run starts the listeners and blocks until a termination signal, then
// shuts down gracefully.
func Run(app *App, cleanup func()) {
	logger := app.Logger
	appConf := app.AppConf

	if app.Sweeper != nil {
		app.Sweeper.Start()
	}
	if app.Metrics != nil {
		if err := app.Metrics.Start(); err != nil {
			logger.Sugar().Errorw("metrics server failed to start", "error", err)
		}
	}

	// set signal listener (graceful shutdown)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// start HTTP server (async)
	go func() {
		addr := fmt.Sprintf("%s:%d", appConf.Http.Host, appConf.Http.Port)
		logger.Sugar().Infow("HTTP listener started",
			"address", addr,
		)
		if err := app.HttpApp.Listen(addr); err != nil {
			logger.Sugar().Errorw("HTTP listener failed",
				"address", addr,
				"error", err,
			)
		}
	}()

	// wait for exit signal
	sig := <-quit
	logger.Sugar().Infof("Received signal: %v, shutting down gracefully...", sig)

	// stop accepting stage executions, in-flight requests keep running
	app.Shutdown.Shutdown()

	timeout := time.Duration(appConf.Http.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	if err := app.HttpApp.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Sugar().Errorf("HTTP server shutdown error: %v", err)
	} else {
		logger.Info("HTTP server shut down gracefully")
	}

	if app.Metrics != nil {
		if err := app.Metrics.Stop(shutdownCtx); err != nil {
			logger.Sugar().Errorf("metrics server shutdown error: %v", err)
		}
	}

	// stop sweeper, close redis
	cleanup()

	logger.Info("Server shutdown complete")
	_ = log.Sync()
}
