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

package router

import (
	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/pkg/http"
	"github.com/go-arcade/aps/pkg/log"
	"github.com/gofiber/fiber/v2"
)

// failureDetail tells a client which stage failed, where it stands now and
// whether a retry makes sense.
type failureDetail struct {
	Stage        model.StageID     `json:"stage,omitempty"`
	Status       model.StageStatus `json:"status,omitempty"`
	ErrorCode    model.ErrorCode   `json:"errorCode"`
	Message      string            `json:"message"`
	Prerequisite model.StageID     `json:"prerequisite,omitempty"`
}

func statusOf(code model.ErrorCode) int {
	switch code {
	case model.CodeValidation:
		return fiber.StatusBadRequest
	case model.CodeNotFound:
		return fiber.StatusNotFound
	case model.CodeStagePrecondition, model.CodeStageAlreadyRunning, model.CodeStageCompleted,
		model.CodeConfirmationRequired, model.CodeInvalidState:
		return fiber.StatusConflict
	case model.CodeEngineBusiness:
		return fiber.StatusUnprocessableEntity
	case model.CodeTransport:
		return fiber.StatusBadGateway
	case model.CodeStageTimeout:
		return fiber.StatusGatewayTimeout
	case model.CodeSessionCapacity:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err as a failure envelope. sid, when known, is used to report
// the stage's status after the failed call.
func (rt *Router) fail(c *fiber.Ctx, sid string, err error) error {
	se, ok := model.AsStageError(err)
	if !ok {
		log.WithContext(c.UserContext()).Errorw("request failed", "path", c.Path(), "error", err)
		return http.WithRepErrMsg(c, http.InternalError, "")
	}

	detail := failureDetail{
		Stage:        se.Stage,
		ErrorCode:    se.Code,
		Message:      se.Message,
		Prerequisite: se.Prerequisite,
	}
	if sid != "" && se.Stage.Valid() {
		if sess, err := rt.Orch.GetSessionStatus(c.UserContext(), sid); err == nil {
			detail.Status = sess.Record(se.Stage).Status
		}
	}
	return http.WithRepErr(c, statusOf(se.Code), se.Error(), detail)
}

func badRequest(stage model.StageID, msg string) error {
	return model.NewValidationError(stage, msg)
}
