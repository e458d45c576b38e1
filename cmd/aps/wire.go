//go:build wireinject
// +build wireinject

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

package main

import (
	"github.com/go-arcade/aps/internal/aps/bootstrap"
	"github.com/go-arcade/aps/internal/aps/conf"
	"github.com/go-arcade/aps/internal/aps/engine"
	"github.com/go-arcade/aps/internal/aps/pipeline"
	"github.com/go-arcade/aps/internal/aps/router"
	"github.com/go-arcade/aps/internal/aps/session"
	"github.com/go-arcade/aps/pkg/event"
	"github.com/go-arcade/aps/pkg/metrics"
	"github.com/go-arcade/aps/pkg/shutdown"
	"github.com/google/wire"
	"go.uber.org/zap"
)

func initApp(appConf conf.AppConfig, logger *zap.Logger) (*bootstrap.App, func(), error) {
	panic(wire.Build(
		// 配置层
		conf.ProviderSet,
		// 基础设施
		metrics.ProviderSet,
		event.ProviderSet,
		shutdown.ProviderSet,
		// 会话存储
		session.ProviderSet,
		// 计算引擎
		engine.ProviderSet,
		// 编排层
		pipeline.ProviderSet,
		// 路由层
		router.ProviderSet,
		// 应用层
		bootstrap.ProvideSweeper,
		bootstrap.NewApp,
	))
}
