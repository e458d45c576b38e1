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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/go-arcade/aps/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *metrics.PipelineMetrics) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	m := metrics.NewPipelineMetrics(nil)
	conf := DefaultConf()
	conf.BaseURL = srv.URL
	conf.RetryInterval = time.Millisecond
	return NewClient(conf, m), m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func prior() model.Results {
	return model.Results{model.StageLoadData: model.LoadDataResult{EngineSessionID: "eng-1"}}
}

func TestClient_LoadData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+pathLoadData, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "order_data")
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":   "eng-1",
			"message":      "loaded",
			"data_summary": map[string]any{"order_data": 1},
		})
	})
	c, _ := newTestClient(t, mux)

	params := &model.LoadDataParams{Data: &model.ProductionData{OrderData: []map[string]any{{"po_no": "P1"}}}}
	out, err := c.Execute(context.Background(), model.StageLoadData, params, nil)
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	ld, ok := out.Payload.(model.LoadDataResult)
	require.True(t, ok)
	assert.Equal(t, "eng-1", ld.EngineSessionID)
	assert.Equal(t, "loaded", ld.Message)
}

func TestClient_LoadExternalData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+pathLoadExternalData, func(w http.ResponseWriter, r *http.Request) {
		var body externalRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.UseMock)
		writeJSON(w, http.StatusOK, map[string]any{"session_id": "eng-2", "message": "ok"})
	})
	c, _ := newTestClient(t, mux)

	out, err := c.Execute(context.Background(), model.StageLoadData,
		&model.LoadDataParams{External: &model.ExternalSource{UseMock: true}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "eng-2", out.Payload.(model.LoadDataResult).EngineSessionID)
}

func TestClient_SyncStages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+pathPreprocess, func(w http.ResponseWriter, r *http.Request) {
		var body sessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "eng-1", body.SessionID)
		writeJSON(w, http.StatusOK, map[string]any{"message": "pre", "processed_jobs": 12})
	})
	mux.HandleFunc("POST "+pathPredictYield, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "yield", "yield_predictions": 7})
	})
	mux.HandleFunc("POST "+pathBuildDag, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "dag", "dag_nodes": 30, "machines": 4})
	})
	mux.HandleFunc("POST "+pathPostprocess, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "done", "late_orders": 2})
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	tests := []struct {
		stage model.StageID
		want  model.Payload
	}{
		{model.StagePreprocess, model.PreprocessResult{Message: "pre", ProcessedJobs: 12}},
		{model.StagePredictYield, model.YieldResult{Message: "yield", YieldPredictions: 7}},
		{model.StageBuildDag, model.DagResult{Message: "dag", DagNodes: 30, Machines: 4}},
		{model.StagePostprocess, model.PostprocessResult{Message: "done", LateOrders: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			out, err := c.Execute(ctx, tt.stage, nil, prior())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Payload)
		})
	}
}

func TestClient_ScheduleAcceptAndPoll(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+pathSchedule, func(w http.ResponseWriter, r *http.Request) {
		var body scheduleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 5, body.WindowDays)
		writeJSON(w, http.StatusOK, map[string]any{"message": "started", "scheduled_jobs": 0, "makespan": 0})
	})
	mux.HandleFunc("GET /api/v1/stage5/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eng-1", r.PathValue("id"))
		if polls.Add(1) == 1 {
			writeJSON(w, http.StatusOK, map[string]any{"status": "running"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "completed", "message": "ok", "scheduled_jobs": 40, "makespan": 96.5, "completed_at": "2025-01-01T00:00:00",
		})
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	out, err := c.Execute(ctx, model.StageSchedule, &model.ScheduleParams{WindowSize: 5}, prior())
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, 5, out.Payload.(model.ScheduleResult).WindowSize)

	st, err := c.Poll(ctx, model.StageSchedule, prior())
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, st.Status)

	st, err = c.Poll(ctx, model.StageSchedule, prior())
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, st.Status)
	res := st.Payload.(model.ScheduleResult)
	assert.Equal(t, 40, res.ScheduledJobs)
	assert.InDelta(t, 96.5, res.Makespan, 1e-9)
}

func TestClient_PollRetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/stage5/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"detail": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "failed", "message": "infeasible"})
	})
	c, _ := newTestClient(t, mux)

	st, err := c.Poll(context.Background(), model.StageSchedule, prior())
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, st.Status)
	assert.Equal(t, "infeasible", st.Message)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ErrorClassification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+pathPreprocess, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "constraint infeasible"})
	})
	mux.HandleFunc("POST "+pathPredictYield, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]any{"detail": "upstream down"})
	})
	mux.HandleFunc("POST "+pathBuildDag, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]any{{"msg": "field required"}}})
	})
	c, m := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.Execute(ctx, model.StagePreprocess, nil, prior())
	assert.ErrorIs(t, err, model.ErrEngineBusiness)
	se, _ := model.AsStageError(err)
	assert.Equal(t, "constraint infeasible", se.Message)

	_, err = c.Execute(ctx, model.StagePredictYield, nil, prior())
	assert.ErrorIs(t, err, model.ErrTransport)

	_, err = c.Execute(ctx, model.StageBuildDag, nil, prior())
	assert.ErrorIs(t, err, model.ErrEngineBusiness)
	assert.Contains(t, err.Error(), "field required")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineRequestsTotal.WithLabelValues(pathPredictYield, "transport_error")))
}

func TestClient_Unreachable(t *testing.T) {
	conf := DefaultConf()
	conf.BaseURL = "http://127.0.0.1:1"
	conf.Timeout = time.Second
	c := NewClient(conf, nil)

	_, err := c.Execute(context.Background(), model.StagePreprocess, nil, prior())
	assert.ErrorIs(t, err, model.ErrTransport)
}

func TestClient_DeadlineIsDetectable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+pathPreprocess, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c, _ := newTestClient(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Execute(ctx, model.StagePreprocess, nil, prior())
	assert.ErrorIs(t, err, model.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_MissingEngineSession(t *testing.T) {
	c := NewClient(DefaultConf(), nil)
	_, err := c.Execute(context.Background(), model.StagePreprocess, nil, model.Results{})
	assert.ErrorIs(t, err, model.ErrStagePrecondition)
}

func TestClient_ReleaseAndHealth(t *testing.T) {
	var deleted atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/v1/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted.Store(r.PathValue("id") == "eng-1")
		writeJSON(w, http.StatusOK, map[string]any{"message": "cleared"})
	})
	mux.HandleFunc("DELETE /api/v1/session/gone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "not found"})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	require.NoError(t, c.Release(ctx, "eng-1"))
	assert.True(t, deleted.Load())
	assert.NoError(t, c.Release(ctx, "gone"))
	assert.NoError(t, c.Release(ctx, ""))
	assert.NoError(t, c.Health(ctx))
}
