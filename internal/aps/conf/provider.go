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

package conf

import (
	"github.com/go-arcade/aps/internal/aps/engine"
	"github.com/go-arcade/aps/internal/aps/pipeline"
	"github.com/go-arcade/aps/internal/aps/session"
	"github.com/go-arcade/aps/pkg/cache"
	"github.com/go-arcade/aps/pkg/http"
	"github.com/go-arcade/aps/pkg/metrics"
	"github.com/google/wire"
)

// ProviderSet 提供配置及各分段配置
var ProviderSet = wire.NewSet(
	ProvideHttpConf,
	ProvideRedisConf,
	ProvideEngineConf,
	ProvidePipelineConf,
	ProvideSessionConf,
	ProvideMetricsConf,
)

func ProvideHttpConf(c AppConfig) *http.Http { return &c.Http }

func ProvideRedisConf(c AppConfig) cache.Redis { return c.Redis }

func ProvideEngineConf(c AppConfig) engine.Conf { return c.Engine }

func ProvidePipelineConf(c AppConfig) pipeline.Conf { return c.Pipeline }

func ProvideSessionConf(c AppConfig) session.Conf { return c.Session }

func ProvideMetricsConf(c AppConfig) metrics.MetricsConfig { return c.Metrics }
