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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-arcade/aps/internal/aps/engine"
	"github.com/go-arcade/aps/internal/aps/pipeline"
	"github.com/go-arcade/aps/internal/aps/session"
	"github.com/go-arcade/aps/pkg/cache"
	"github.com/go-arcade/aps/pkg/http"
	"github.com/go-arcade/aps/pkg/log"
	"github.com/go-arcade/aps/pkg/metrics"
	"github.com/spf13/viper"
)

const envPrefix = "APS"

// AppConfig is the whole server configuration.
type AppConfig struct {
	Log      log.Conf              `mapstructure:"log"`
	Http     http.Http             `mapstructure:"http"`
	Redis    cache.Redis           `mapstructure:"redis"`
	Engine   engine.Conf           `mapstructure:"engine"`
	Pipeline pipeline.Conf         `mapstructure:"pipeline"`
	Session  session.Conf          `mapstructure:"session"`
	Metrics  metrics.MetricsConfig `mapstructure:"metrics"`
}

var (
	cfg  AppConfig
	once sync.Once
)

// NewConf loads the configuration once per process.
func NewConf(confFile string) AppConfig {
	once.Do(func() {
		var err error
		cfg, err = LoadConfigFile(confFile)
		if err != nil {
			panic(fmt.Sprintf("load conf file error: %s", err))
		}
	})
	return cfg
}

// LoadConfigFile reads confFile (TOML) on top of the built-in defaults.
// APS_<SECTION>_<KEY> environment variables win over the file. An empty
// confFile yields defaults plus environment.
func LoadConfigFile(confFile string) (AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var out AppConfig
	if confFile != "" {
		v.SetConfigFile(confFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return out, fmt.Errorf("failed to read configuration file: %w", err)
		}

		// 只记录变更，监听端口、会话后端等静态配置需重启生效
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Infow("configuration file changed, restart to apply", "file", e.Name, "op", e.Op.String())
		})
		v.WatchConfig()
	}

	if err := v.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("failed to unmarshal configuration file: %w", err)
	}
	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

// Validate rejects settings the server cannot start with.
func (c *AppConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	if c.Engine.BaseURL == "" {
		return fmt.Errorf("engine.base_url is required")
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session backend %q", c.Session.Backend)
	}
	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("session.max_sessions must not be negative")
	}
	if c.Session.Backend == "redis" && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required for the redis session backend")
	}
	if _, err := pipeline.NewGate(c.Pipeline.ConfirmStages...); err != nil {
		return fmt.Errorf("invalid pipeline.confirm_stages: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	lc := log.SetDefaults()
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.path", lc.Path)
	v.SetDefault("log.filename", lc.Filename)
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.keep_hours", lc.KeepHours)
	v.SetDefault("log.rotate_size", lc.RotateSize)
	v.SetDefault("log.rotate_num", lc.RotateNum)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.context_path", "/api/v1")
	v.SetDefault("http.expose_metrics", true)
	v.SetDefault("http.access_log", true)
	v.SetDefault("http.body_limit", 32*1024*1024)
	v.SetDefault("http.read_timeout", 60)
	v.SetDefault("http.write_timeout", 360)
	v.SetDefault("http.idle_timeout", 120)
	v.SetDefault("http.shutdown_timeout", 30)

	v.SetDefault("redis.mode", "single")
	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.use_tls", false)
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	ec := engine.DefaultConf()
	v.SetDefault("engine.base_url", ec.BaseURL)
	v.SetDefault("engine.timeout", ec.Timeout)
	v.SetDefault("engine.qps", ec.QPS)
	v.SetDefault("engine.burst", ec.Burst)
	v.SetDefault("engine.status_retries", ec.StatusRetries)
	v.SetDefault("engine.retry_interval", ec.RetryInterval)

	pc := pipeline.DefaultConf()
	v.SetDefault("pipeline.confirm_stages", pc.ConfirmStages)
	v.SetDefault("pipeline.default_window_size", pc.DefaultWindowSize)
	v.SetDefault("pipeline.load_data_timeout", pc.LoadDataTimeout)
	v.SetDefault("pipeline.stage_timeout", pc.StageTimeout)
	v.SetDefault("pipeline.schedule_accept_timeout", pc.ScheduleAcceptTimeout)
	v.SetDefault("pipeline.poll_interval", pc.PollInterval)
	v.SetDefault("pipeline.poll_max_interval", pc.PollMaxInterval)
	v.SetDefault("pipeline.pipeline_timeout", pc.PipelineTimeout)
	v.SetDefault("pipeline.release_timeout", pc.ReleaseTimeout)

	sc := session.DefaultConf()
	v.SetDefault("session.backend", sc.Backend)
	v.SetDefault("session.ttl", sc.TTL)
	v.SetDefault("session.max_sessions", sc.MaxSessions)
	v.SetDefault("session.sweep_spec", sc.SweepSpec)
	v.SetDefault("session.key_prefix", sc.KeyPrefix)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.host", "0.0.0.0")
	v.SetDefault("metrics.port", 9100)
}
