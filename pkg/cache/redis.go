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

package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/go-arcade/aps/pkg/log"
	"github.com/redis/go-redis/v9"
)

// Redis holds redis connection options. Mode is single or sentinel.
type Redis struct {
	Mode             string        `mapstructure:"mode"`
	Address          string        `mapstructure:"address"`
	Password         string        `mapstructure:"password"`
	DB               int           `mapstructure:"db"`
	PoolSize         int           `mapstructure:"pool_size"`
	UseTLS           bool          `mapstructure:"use_tls"`
	MasterName       string        `mapstructure:"master_name"`
	SentinelUsername string        `mapstructure:"sentinel_username"`
	SentinelPassword string        `mapstructure:"sentinel_password"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`  // 连接超时
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`  // 读超时
	WriteTimeout     time.Duration `mapstructure:"write_timeout"` // 写超时
}

// NewRedis connects and pings redis. The returned cleanup closes the client.
func NewRedis(ctx context.Context, cfg Redis) (redis.UniversalClient, func(), error) {
	var tlsConfig *tls.Config
	if cfg.UseTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	var client redis.UniversalClient
	switch cfg.Mode {
	case "", "single":
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			TLSConfig:    tlsConfig,
		})
	case "sentinel":
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       cfg.MasterName,
			SentinelAddrs:    strings.Split(cfg.Address, ","),
			Password:         cfg.Password,
			DB:               cfg.DB,
			PoolSize:         cfg.PoolSize,
			SentinelUsername: cfg.SentinelUsername,
			SentinelPassword: cfg.SentinelPassword,
			DialTimeout:      cfg.DialTimeout,
			ReadTimeout:      cfg.ReadTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			TLSConfig:        tlsConfig,
		})
	default:
		return nil, nil, fmt.Errorf("unsupported redis mode %q", cfg.Mode)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	log.Infow("redis connected", "mode", cfg.Mode, "address", cfg.Address)

	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Warnw("failed to close redis", "error", err)
		}
	}
	return client, cleanup, nil
}
