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

package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Http holds the gateway listener options.
type Http struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ContextPath     string `mapstructure:"context_path"`
	ExposeMetrics   bool   `mapstructure:"expose_metrics"`
	AccessLog       bool   `mapstructure:"access_log"`
	BodyLimit       int    `mapstructure:"body_limit"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	IdleTimeout     int    `mapstructure:"idle_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// NewFiberApp creates the fiber app with the listener limits of cfg.
func NewFiberApp(appName string, cfg *Http) *fiber.App {
	// 默认请求体限制 32MB，生产数据表可能较大
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 32 * 1024 * 1024
	}
	return fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:           time.Duration(cfg.IdleTimeout) * time.Second,
		BodyLimit:             bodyLimit,
	})
}
