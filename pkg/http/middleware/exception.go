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
	"fmt"
	"runtime/debug"

	"github.com/go-arcade/aps/pkg/http"
	"github.com/go-arcade/aps/pkg/log"
	"github.com/gofiber/fiber/v2"
)

// ExceptionMiddleware recovers panics into a 500 envelope.
func ExceptionMiddleware(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("panic recovered", "path", c.Path(), "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			// 一律返回服务器错误，避免将堆栈返回给客户端
			err = http.WithRepErrMsg(c, http.InternalError, "")
		}
	}()
	return c.Next()
}
