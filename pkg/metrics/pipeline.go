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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics groups the collectors of the stage orchestrator.
type PipelineMetrics struct {
	// StageRunsTotal counts finished RunStage/PollStage outcomes per stage
	StageRunsTotal *prometheus.CounterVec
	// StageDurationSeconds measures engine time per stage attempt
	StageDurationSeconds *prometheus.HistogramVec
	// StagePollsTotal counts polls per observed status
	StagePollsTotal *prometheus.CounterVec
	// SessionsActive is the number of sessions currently held by the store
	SessionsActive prometheus.Gauge
	// EngineRequestsTotal counts calls to the computation engine
	EngineRequestsTotal *prometheus.CounterVec
}

// NewPipelineMetrics creates the collectors and registers them on registry.
func NewPipelineMetrics(registry prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		StageRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aps_stage_runs_total",
				Help: "Total number of stage runs by outcome",
			},
			[]string{"stage", "outcome"},
		),
		StageDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aps_stage_duration_seconds",
				Help:    "Duration of stage executions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"stage"},
		),
		StagePollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aps_stage_polls_total",
				Help: "Total number of async stage polls by observed status",
			},
			[]string{"stage", "status"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aps_sessions_active",
				Help: "Number of sessions held by the session store",
			},
		),
		EngineRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aps_engine_requests_total",
				Help: "Total number of requests sent to the computation engine",
			},
			[]string{"endpoint", "result"},
		),
	}
	if registry != nil {
		registry.MustRegister(
			m.StageRunsTotal,
			m.StageDurationSeconds,
			m.StagePollsTotal,
			m.SessionsActive,
			m.EngineRequestsTotal,
		)
	}
	return m
}

// RecordStage records a finished stage attempt.
func (m *PipelineMetrics) RecordStage(stage, outcome string, d time.Duration) {
	m.StageRunsTotal.WithLabelValues(stage, outcome).Inc()
	if d > 0 {
		m.StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// RecordPoll records a poll that observed status.
func (m *PipelineMetrics) RecordPoll(stage, status string) {
	m.StagePollsTotal.WithLabelValues(stage, status).Inc()
}

// RecordEngineRequest records one engine call.
func (m *PipelineMetrics) RecordEngineRequest(endpoint, result string) {
	m.EngineRequestsTotal.WithLabelValues(endpoint, result).Inc()
}
