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
	"encoding/json"
	"fmt"
	"maps"
)

// Payload is the result of one stage. Each stage has its own variant; the
// orchestrator stores it without looking inside.
type Payload interface {
	Stage() StageID
}

// LoadDataResult is returned by the engine after ingesting production data.
// EngineSessionID is the engine's own handle that every later stage needs.
type LoadDataResult struct {
	EngineSessionID string         `json:"engineSessionId"`
	Message         string         `json:"message"`
	DataSummary     map[string]any `json:"dataSummary,omitempty"`
}

func (LoadDataResult) Stage() StageID { return StageLoadData }

type PreprocessResult struct {
	Message            string         `json:"message"`
	ProcessedJobs      int            `json:"processedJobs"`
	MachineConstraints map[string]any `json:"machineConstraints,omitempty"`
}

func (PreprocessResult) Stage() StageID { return StagePreprocess }

type YieldResult struct {
	Message          string `json:"message"`
	YieldPredictions int    `json:"yieldPredictions"`
}

func (YieldResult) Stage() StageID { return StagePredictYield }

type DagResult struct {
	Message  string `json:"message"`
	DagNodes int    `json:"dagNodes"`
	Machines int    `json:"machines"`
}

func (DagResult) Stage() StageID { return StageBuildDag }

// ScheduleResult is only known once a poll observes completion.
type ScheduleResult struct {
	Message       string  `json:"message"`
	WindowSize    int     `json:"windowSize"`
	ScheduledJobs int     `json:"scheduledJobs"`
	Makespan      float64 `json:"makespan"`
	CompletedAt   string  `json:"completedAt,omitempty"`
}

func (ScheduleResult) Stage() StageID { return StageSchedule }

type PostprocessResult struct {
	Message        string         `json:"message"`
	LateOrders     int            `json:"lateOrders"`
	ResultsSummary map[string]any `json:"resultsSummary,omitempty"`
}

func (PostprocessResult) Stage() StageID { return StagePostprocess }

// DecodePayload unmarshals raw into the variant that belongs to stage.
func DecodePayload(stage StageID, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		p   Payload
		err error
	)
	switch stage {
	case StageLoadData:
		var v LoadDataResult
		err = json.Unmarshal(raw, &v)
		p = v
	case StagePreprocess:
		var v PreprocessResult
		err = json.Unmarshal(raw, &v)
		p = v
	case StagePredictYield:
		var v YieldResult
		err = json.Unmarshal(raw, &v)
		p = v
	case StageBuildDag:
		var v DagResult
		err = json.Unmarshal(raw, &v)
		p = v
	case StageSchedule:
		var v ScheduleResult
		err = json.Unmarshal(raw, &v)
		p = v
	case StagePostprocess:
		var v PostprocessResult
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", stage, err)
	}
	return p, nil
}

// clonePayload copies the map-valued fields so snapshots never alias stored state.
func clonePayload(p Payload) Payload {
	switch v := p.(type) {
	case LoadDataResult:
		v.DataSummary = maps.Clone(v.DataSummary)
		return v
	case PreprocessResult:
		v.MachineConstraints = maps.Clone(v.MachineConstraints)
		return v
	case PostprocessResult:
		v.ResultsSummary = maps.Clone(v.ResultsSummary)
		return v
	default:
		return p
	}
}

// Results are the payloads of completed stages, handed to the executor so it can
// pick whatever a later stage needs (for example the engine session id).
type Results map[StageID]Payload

// EngineSessionID returns the engine handle produced by LoadData, if any.
func (r Results) EngineSessionID() string {
	if ld, ok := r[StageLoadData].(LoadDataResult); ok {
		return ld.EngineSessionID
	}
	return ""
}

// StageParams are the caller supplied inputs of a stage.
type StageParams interface {
	Validate() error
}

// ProductionData is the inline LoadData input: one list of rows per source table.
type ProductionData struct {
	Linespeed         []map[string]any `json:"linespeed"`
	OperationSequence []map[string]any `json:"operation_sequence"`
	MachineMasterInfo []map[string]any `json:"machine_master_info"`
	YieldData         []map[string]any `json:"yield_data"`
	GitemOperation    []map[string]any `json:"gitem_operation"`
	OperationTypes    []map[string]any `json:"operation_types"`
	OperationDelay    []map[string]any `json:"operation_delay"`
	WidthChange       []map[string]any `json:"width_change"`
	MachineRest       []map[string]any `json:"machine_rest"`
	MachineAllocate   []map[string]any `json:"machine_allocate"`
	MachineLimit      []map[string]any `json:"machine_limit"`
	OrderData         []map[string]any `json:"order_data"`
}

func (d *ProductionData) tables() map[string][]map[string]any {
	return map[string][]map[string]any{
		"linespeed":           d.Linespeed,
		"operation_sequence":  d.OperationSequence,
		"machine_master_info": d.MachineMasterInfo,
		"yield_data":          d.YieldData,
		"gitem_operation":     d.GitemOperation,
		"operation_types":     d.OperationTypes,
		"operation_delay":     d.OperationDelay,
		"width_change":        d.WidthChange,
		"machine_rest":        d.MachineRest,
		"machine_allocate":    d.MachineAllocate,
		"machine_limit":       d.MachineLimit,
		"order_data":          d.OrderData,
	}
}

// Validate requires every table to be present and at least one order.
func (d *ProductionData) Validate() error {
	for name, rows := range d.tables() {
		if rows == nil {
			return NewValidationError(StageLoadData, fmt.Sprintf("table %q is required", name))
		}
	}
	if len(d.OrderData) == 0 {
		return NewValidationError(StageLoadData, "order_data must contain at least one order")
	}
	return nil
}

// Summary counts rows per table, the same shape the engine reports back.
func (d *ProductionData) Summary() map[string]any {
	out := make(map[string]any, 12)
	for name, rows := range d.tables() {
		out[name] = len(rows)
	}
	return out
}

// ExternalSource tells the engine to pull production data from another API.
type ExternalSource struct {
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey,omitempty"`
	UseMock bool   `json:"useMock,omitempty"`
}

// LoadDataParams carries exactly one of Data or External.
type LoadDataParams struct {
	Data     *ProductionData `json:"data,omitempty"`
	External *ExternalSource `json:"external,omitempty"`
}

func (p *LoadDataParams) Validate() error {
	if p == nil || (p.Data == nil && p.External == nil) {
		return NewValidationError(StageLoadData, "either data or external source is required")
	}
	if p.Data != nil && p.External != nil {
		return NewValidationError(StageLoadData, "data and external source are mutually exclusive")
	}
	if p.External != nil {
		if p.External.BaseURL == "" && !p.External.UseMock {
			return NewValidationError(StageLoadData, "external baseUrl is required")
		}
		return nil
	}
	return p.Data.Validate()
}

// MaxWindowSize bounds the scheduling horizon in days.
const MaxWindowSize = 365

type ScheduleParams struct {
	WindowSize int `json:"windowSize"`
}

func (p *ScheduleParams) Validate() error {
	if p == nil {
		return NewValidationError(StageSchedule, "window size is required")
	}
	if p.WindowSize <= 0 || p.WindowSize > MaxWindowSize {
		return NewValidationError(StageSchedule, fmt.Sprintf("window size must be between 1 and %d", MaxWindowSize))
	}
	return nil
}
