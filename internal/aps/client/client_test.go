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

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, detail any) {
	writeJSON(w, http.StatusOK, map[string]any{"code": 200, "msg": "success", "detail": detail})
}

func TestClient_LoadDataAndSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /stages/load-data", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.NotContains(t, body, "sessionId")
		assert.Contains(t, body, "external")
		ok(w, map[string]any{
			"sessionId": "s1",
			"stage":     "load_data",
			"status":    "completed",
			"attempt":   1,
			"payload":   map[string]any{"engineSessionId": "e1", "message": "loaded"},
		})
	})
	mux.HandleFunc("GET /sessions/s1", func(w http.ResponseWriter, r *http.Request) {
		sess := model.NewSession("s1", time.Now())
		sess.Record(model.StageLoadData).Status = model.StatusCompleted
		ok(w, sess)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, time.Second)
	ctx := context.Background()

	v, err := c.LoadData(ctx, "", model.LoadDataParams{External: &model.ExternalSource{UseMock: true}})
	require.NoError(t, err)
	assert.Equal(t, "s1", v.SessionID)
	assert.Equal(t, model.StatusCompleted, v.Status)
	p, err := v.Result()
	require.NoError(t, err)
	assert.Equal(t, "e1", p.(model.LoadDataResult).EngineSessionID)

	sess, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, sess.Stages[model.StageLoadData].Status)
	assert.Equal(t, model.StatusPending, sess.Stages[model.StagePostprocess].Status)
}

func TestClient_TypedFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /stages/preprocess", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"code":   409,
			"errMsg": "STAGE_PRECONDITION [preprocess]: stage preprocess requires load_data to be completed",
			"path":   r.URL.Path,
			"detail": map[string]any{
				"stage":        "preprocess",
				"status":       "pending",
				"errorCode":    "STAGE_PRECONDITION",
				"message":      "stage preprocess requires load_data to be completed",
				"prerequisite": "load_data",
			},
		})
	})
	mux.HandleFunc("DELETE /sessions/gone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"code":   404,
			"errMsg": "NOT_FOUND: session not found",
			"detail": map[string]any{"errorCode": "NOT_FOUND", "message": "session not found"},
		})
	})
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"code": 500, "errMsg": "boom"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	_, err := c.RunStage(ctx, "s1", model.StagePreprocess)
	require.ErrorIs(t, err, model.ErrStagePrecondition)
	se, _ := model.AsStageError(err)
	assert.Equal(t, model.StageLoadData, se.Prerequisite)

	assert.ErrorIs(t, c.DeleteSession(ctx, "gone"), model.ErrNotFound)

	_, err = c.CreateSession(ctx)
	require.Error(t, err)
	_, typed := model.AsStageError(err)
	assert.False(t, typed)
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_RunStageRejectsAsyncAndLoadData(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	for _, st := range []model.StageID{model.StageLoadData, model.StageSchedule} {
		_, err := c.RunStage(context.Background(), "s1", st)
		assert.ErrorIs(t, err, model.ErrValidation)
	}
}

func TestClient_ScheduleAndWait(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /stages/schedule", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 5, body["windowSize"])
		ok(w, map[string]any{"sessionId": "s1", "stage": "schedule", "status": "running", "attempt": 1})
	})
	mux.HandleFunc("GET /stages/schedule/s1/status", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			ok(w, map[string]any{"sessionId": "s1", "stage": "schedule", "status": "running", "attempt": 1})
			return
		}
		ok(w, map[string]any{
			"sessionId": "s1", "stage": "schedule", "status": "completed", "attempt": 1,
			"payload": map[string]any{"windowSize": 5, "scheduledJobs": 12, "makespan": 48.5},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := New(srv.URL, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := c.StartSchedule(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, v.Status)

	v, err = c.WaitSchedule(ctx, "s1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, v.Status)
	assert.EqualValues(t, 3, polls.Load())
	p, err := v.Result()
	require.NoError(t, err)
	assert.Equal(t, 12, p.(model.ScheduleResult).ScheduledJobs)
}

func TestClient_Confirm(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/s1/confirm", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "preprocess", body["stage"])
		ok(w, map[string]any{"sessionId": "s1", "stage": "preprocess", "ok": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st, err := New(srv.URL, time.Second).Confirm(context.Background(), "s1", model.StagePreprocess)
	require.NoError(t, err)
	assert.Equal(t, model.StagePreprocess, st)
}
