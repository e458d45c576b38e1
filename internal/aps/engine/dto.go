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

package engine

import (
	"github.com/go-arcade/aps/internal/aps/model"
)

// engine request and response bodies, snake_case on the wire

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type scheduleRequest struct {
	SessionID  string `json:"session_id"`
	WindowDays int    `json:"window_days"`
}

type externalRequest struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	UseMock bool   `json:"use_mock"`
}

type loadDataResponse struct {
	SessionID   string         `json:"session_id"`
	Message     string         `json:"message"`
	DataSummary map[string]any `json:"data_summary"`
}

func (r loadDataResponse) payload() model.Payload {
	return model.LoadDataResult{EngineSessionID: r.SessionID, Message: r.Message, DataSummary: r.DataSummary}
}

type preprocessResponse struct {
	Message            string         `json:"message"`
	ProcessedJobs      int            `json:"processed_jobs"`
	MachineConstraints map[string]any `json:"machine_constraints"`
}

func (r preprocessResponse) payload() model.Payload {
	return model.PreprocessResult{Message: r.Message, ProcessedJobs: r.ProcessedJobs, MachineConstraints: r.MachineConstraints}
}

type yieldResponse struct {
	Message          string `json:"message"`
	YieldPredictions int    `json:"yield_predictions"`
}

func (r yieldResponse) payload() model.Payload {
	return model.YieldResult{Message: r.Message, YieldPredictions: r.YieldPredictions}
}

type dagResponse struct {
	Message  string `json:"message"`
	DagNodes int    `json:"dag_nodes"`
	Machines int    `json:"machines"`
}

func (r dagResponse) payload() model.Payload {
	return model.DagResult{Message: r.Message, DagNodes: r.DagNodes, Machines: r.Machines}
}

type scheduleResponse struct {
	Message       string  `json:"message"`
	ScheduledJobs int     `json:"scheduled_jobs"`
	Makespan      float64 `json:"makespan"`
}

type scheduleStatusResponse struct {
	Status        string  `json:"status"`
	Message       string  `json:"message"`
	ScheduledJobs int     `json:"scheduled_jobs"`
	Makespan      float64 `json:"makespan"`
	CompletedAt   string  `json:"completed_at"`
}

type postprocessResponse struct {
	Message        string         `json:"message"`
	LateOrders     int            `json:"late_orders"`
	ResultsSummary map[string]any `json:"results_summary"`
}

func (r postprocessResponse) payload() model.Payload {
	return model.PostprocessResult{Message: r.Message, LateOrders: r.LateOrders, ResultsSummary: r.ResultsSummary}
}

// errorResponse is the engine's failure body. detail is usually a string but
// validation failures carry a list.
type errorResponse struct {
	Detail any    `json:"detail"`
	Code   string `json:"code,omitempty"`
}
