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

package model

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable machine readable category of a StageError.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeStagePrecondition    ErrorCode = "STAGE_PRECONDITION"
	CodeStageAlreadyRunning  ErrorCode = "STAGE_ALREADY_RUNNING"
	CodeStageCompleted       ErrorCode = "STAGE_ALREADY_COMPLETED"
	CodeConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"
	CodeInvalidState         ErrorCode = "INVALID_STATE"
	CodeTransport            ErrorCode = "TRANSPORT_ERROR"
	CodeEngineBusiness       ErrorCode = "ENGINE_BUSINESS_ERROR"
	CodeStageTimeout         ErrorCode = "STAGE_TIMEOUT"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeSessionCapacity      ErrorCode = "SESSION_CAPACITY_EXCEEDED"
)

// StageError is the single error type surfaced by the orchestrator.
// Two StageErrors match under errors.Is when their codes are equal, so callers
// compare against the sentinels below.
type StageError struct {
	Code         ErrorCode
	Stage        StageID
	Prerequisite StageID
	Message      string
	Err          error
}

func (e *StageError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Stage, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool {
	var t *StageError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation           = &StageError{Code: CodeValidation}
	ErrStagePrecondition    = &StageError{Code: CodeStagePrecondition}
	ErrStageAlreadyRunning  = &StageError{Code: CodeStageAlreadyRunning}
	ErrStageCompleted       = &StageError{Code: CodeStageCompleted}
	ErrConfirmationRequired = &StageError{Code: CodeConfirmationRequired}
	ErrInvalidState         = &StageError{Code: CodeInvalidState}
	ErrTransport            = &StageError{Code: CodeTransport}
	ErrEngineBusiness       = &StageError{Code: CodeEngineBusiness}
	ErrStageTimeout         = &StageError{Code: CodeStageTimeout}
	ErrNotFound             = &StageError{Code: CodeNotFound}
	ErrSessionCapacity      = &StageError{Code: CodeSessionCapacity}
)

func NewValidationError(stage StageID, msg string) *StageError {
	return &StageError{Code: CodeValidation, Stage: stage, Message: msg}
}

func NewPreconditionError(stage, missing StageID) *StageError {
	return &StageError{
		Code:         CodeStagePrecondition,
		Stage:        stage,
		Prerequisite: missing,
		Message:      fmt.Sprintf("stage %s requires %s to be completed", stage, missing),
	}
}

func NewAlreadyRunningError(stage StageID) *StageError {
	return &StageError{Code: CodeStageAlreadyRunning, Stage: stage, Message: fmt.Sprintf("stage %s is already running", stage)}
}

func NewCompletedError(stage StageID) *StageError {
	return &StageError{Code: CodeStageCompleted, Stage: stage, Message: fmt.Sprintf("stage %s is already completed", stage)}
}

func NewConfirmationRequiredError(stage, awaiting StageID) *StageError {
	return &StageError{
		Code:         CodeConfirmationRequired,
		Stage:        stage,
		Prerequisite: awaiting,
		Message:      fmt.Sprintf("stage %s is awaiting confirmation", awaiting),
	}
}

func NewInvalidStateError(stage StageID, msg string) *StageError {
	return &StageError{Code: CodeInvalidState, Stage: stage, Message: msg}
}

func NewTransportError(stage StageID, err error) *StageError {
	return &StageError{Code: CodeTransport, Stage: stage, Message: "engine unreachable: " + errString(err), Err: err}
}

func NewEngineBusinessError(stage StageID, msg string) *StageError {
	return &StageError{Code: CodeEngineBusiness, Stage: stage, Message: msg}
}

func NewTimeoutError(stage StageID, err error) *StageError {
	return &StageError{Code: CodeStageTimeout, Stage: stage, Message: fmt.Sprintf("stage %s timed out", stage), Err: err}
}

func NewNotFoundError(what string) *StageError {
	return &StageError{Code: CodeNotFound, Message: what + " not found"}
}

func NewCapacityError(limit int) *StageError {
	return &StageError{Code: CodeSessionCapacity, Message: fmt.Sprintf("session limit %d reached", limit)}
}

// AsStageError extracts the StageError from err, if any.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
