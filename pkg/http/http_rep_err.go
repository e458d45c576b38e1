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
	"github.com/gofiber/fiber/v2"
)

// ResponseErr is the unified failure envelope.
type ResponseErr struct {
	ErrCode int    `json:"code"`
	ErrMsg  any    `json:"errMsg"`
	Path    string `json:"path,omitempty"`
	Detail  any    `json:"detail,omitempty"`
}

// WithRepErr writes a failure envelope with HTTP status status.
func WithRepErr(c *fiber.Ctx, status int, errMsg string, detail any) error {
	return c.Status(status).JSON(ResponseErr{
		ErrCode: status,
		ErrMsg:  errMsg,
		Path:    c.Path(),
		Detail:  detail,
	})
}

// WithRepErrMsg writes a failure envelope with the status of code.
func WithRepErrMsg(c *fiber.Ctx, code *Response, errMsg string) error {
	if errMsg == "" {
		errMsg = code.Msg
	}
	return WithRepErr(c, code.Code, errMsg, nil)
}
