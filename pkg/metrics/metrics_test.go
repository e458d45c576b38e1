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
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineMetrics_Record(t *testing.T) {
	server := NewServer(MetricsConfig{})
	m := ProvidePipelineMetrics(server)

	m.RecordStage("preprocess", "completed", 120*time.Millisecond)
	m.RecordStage("preprocess", "completed", 80*time.Millisecond)
	m.RecordPoll("schedule", "running")
	m.RecordEngineRequest("stage2/preprocessing", "ok")
	m.SessionsActive.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StageRunsTotal.WithLabelValues("preprocess", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StagePollsTotal.WithLabelValues("schedule", "running")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsActive))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "aps_stage_runs_total")
	assert.Contains(t, string(body), "aps_engine_requests_total")
}

func TestServer_StartDisabled(t *testing.T) {
	s := NewServer(MetricsConfig{Enable: false})
	require.NoError(t, s.Start())
	assert.NoError(t, s.Stop(t.Context()))
}
