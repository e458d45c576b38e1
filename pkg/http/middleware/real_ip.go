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

package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RealIPMiddleware stores the client ip behind proxies in locals "ip".
func RealIPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// XFF: client, proxy1, proxy2
		if xff := c.Get("X-Forwarded-For"); xff != "" {
			if ip, _, _ := strings.Cut(xff, ","); strings.TrimSpace(ip) != "" {
				c.Locals("ip", strings.TrimSpace(ip))
				return c.Next()
			}
		}
		if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
			c.Locals("ip", ip)
		} else {
			c.Locals("ip", c.IP())
		}
		return c.Next()
	}
}
