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

package session

import (
	"context"
	"fmt"

	"github.com/go-arcade/aps/pkg/cache"
	"github.com/google/wire"
)

var ProviderSet = wire.NewSet(NewStore)

// NewStore builds the configured backend. The redis backend connects
// eagerly so misconfiguration fails at startup.
func NewStore(conf Conf, redisConf cache.Redis) (Store, func(), error) {
	switch conf.Backend {
	case "", "memory":
		return NewMemoryStore(conf), func() {}, nil
	case "redis":
		client, cleanup, err := cache.NewRedis(context.Background(), redisConf)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(client, conf), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session backend %q", conf.Backend)
	}
}
