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

// Package engine talks to the external computation engine that performs the
// actual scheduling work. It turns engine responses into typed payloads and
// classifies failures as transport or business errors.
package engine

import (
	"context"

	"github.com/go-arcade/aps/internal/aps/model"
)

// Outcome is the result of one stage execution. Accepted is set when the
// engine acknowledged background work instead of returning a result.
type Outcome struct {
	Payload  model.Payload
	Accepted bool
}

// AsyncStatus is what the engine reports for a background stage.
type AsyncStatus struct {
	Status  model.StageStatus
	Payload model.Payload
	Message string
}

// Executor runs single stages on the engine. Errors are *model.StageError
// with code TRANSPORT_ERROR or ENGINE_BUSINESS_ERROR.
type Executor interface {
	Execute(ctx context.Context, stage model.StageID, params model.StageParams, prior model.Results) (Outcome, error)
	Poll(ctx context.Context, stage model.StageID, prior model.Results) (AsyncStatus, error)
	// Release drops engine side state kept for engineSessionID.
	Release(ctx context.Context, engineSessionID string) error
	Health(ctx context.Context) error
}
