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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-arcade/aps/internal/aps/client"
	"github.com/go-arcade/aps/internal/aps/model"
	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an empty session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, err := newClient().CreateSession(cmd.Context())
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), map[string]string{"sessionId": sid})
		},
	}

	get := &cobra.Command{
		Use:   "get <sessionId>",
		Short: "Show every stage record of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newClient().GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), sess)
		},
	}

	del := &cobra.Command{
		Use:   "delete <sessionId>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), map[string]any{"sessionId": args[0], "ok": true})
		},
	}

	confirm := &cobra.Command{
		Use:   "confirm <sessionId> [stage]",
		Short: "Confirm the checkpoint a session is waiting on",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expected model.StageID
			if len(args) == 2 {
				st, err := model.ParseStage(args[1])
				if err != nil {
					return err
				}
				expected = st
			}
			st, err := newClient().Confirm(cmd.Context(), args[0], expected)
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), map[string]any{"sessionId": args[0], "stage": st, "ok": true})
		},
	}

	cmd.AddCommand(create, get, del, confirm)
	return cmd
}

// loadParams builds LoadData parameters from --file or --external-url.
func loadParams(cmd *cobra.Command) (*model.LoadDataParams, error) {
	file, _ := cmd.Flags().GetString("file")
	extURL, _ := cmd.Flags().GetString("external-url")
	apiKey, _ := cmd.Flags().GetString("api-key")
	mock, _ := cmd.Flags().GetBool("mock")

	switch {
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		var data model.ProductionData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parse data file: %w", err)
		}
		return &model.LoadDataParams{Data: &data}, nil
	case extURL != "" || mock:
		return &model.LoadDataParams{External: &model.ExternalSource{BaseURL: extURL, APIKey: apiKey, UseMock: mock}}, nil
	default:
		return nil, nil
	}
}

func addLoadFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "JSON file with the production data tables")
	cmd.Flags().String("external-url", "", "load data from an external source instead")
	cmd.Flags().String("api-key", "", "api key of the external source")
	cmd.Flags().Bool("mock", false, "let the engine use mock external data")
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run the load data stage, creating a session unless --session is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := loadParams(cmd)
			if err != nil {
				return err
			}
			if params == nil {
				return fmt.Errorf("one of --file, --external-url or --mock is required")
			}
			sid, _ := cmd.Flags().GetString("session")
			v, err := newClient().LoadData(cmd.Context(), sid, *params)
			if err != nil {
				return err
			}
			return printView(cmd, v)
		},
	}
	addLoadFlags(cmd)
	cmd.Flags().String("session", "", "existing session id")
	return cmd
}

func stageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage <stage> <sessionId>",
		Short: "Run a synchronous stage: preprocess, predict_yield, build_dag or postprocess",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := model.ParseStage(args[0])
			if err != nil {
				return err
			}
			v, err := newClient().RunStage(cmd.Context(), args[1], st)
			if err != nil {
				return err
			}
			return printView(cmd, v)
		},
	}
	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <sessionId>",
		Short: "Start the schedule stage, optionally waiting for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			window, _ := cmd.Flags().GetInt("window")
			wait, _ := cmd.Flags().GetBool("wait")
			interval, _ := cmd.Flags().GetDuration("interval")

			c := newClient()
			v, err := c.StartSchedule(cmd.Context(), args[0], window)
			if err != nil {
				return err
			}
			if wait {
				if v, err = c.WaitSchedule(cmd.Context(), args[0], interval); err != nil {
					return err
				}
			}
			return printView(cmd, v)
		},
	}
	cmd.Flags().IntP("window", "w", 0, "scheduling window in days, 0 uses the server default")
	cmd.Flags().Bool("wait", false, "poll until the schedule completes or fails")
	cmd.Flags().Duration("interval", 2*time.Second, "poll interval with --wait")

	poll := &cobra.Command{
		Use:   "status <sessionId>",
		Short: "Poll the schedule stage once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newClient().PollSchedule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printView(cmd, v)
		},
	}
	cmd.AddCommand(poll)
	return cmd
}

func pipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every remaining stage of a session, or a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := loadParams(cmd)
			if err != nil {
				return err
			}
			req := client.PipelineRequest{}
			req.SessionID, _ = cmd.Flags().GetString("session")
			req.WindowSize, _ = cmd.Flags().GetInt("window")
			req.AutoConfirm, _ = cmd.Flags().GetBool("auto-confirm")
			if params != nil {
				req.Data, req.External = params.Data, params.External
			}
			sess, err := newClient().RunPipeline(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), sess)
		},
	}
	addLoadFlags(cmd)
	cmd.Flags().String("session", "", "continue an existing session")
	cmd.Flags().IntP("window", "w", 0, "scheduling window in days")
	cmd.Flags().Bool("auto-confirm", false, "confirm checkpoints automatically")
	return cmd
}

// printView prints a stage view with its payload decoded.
func printView(cmd *cobra.Command, v client.StageView) error {
	out := map[string]any{
		"sessionId": v.SessionID,
		"stage":     v.Stage,
		"status":    v.Status,
		"attempt":   v.Attempt,
	}
	if p, err := v.Result(); err == nil && p != nil {
		out["payload"] = p
	}
	if v.ErrorMessage != "" {
		out["errorCode"] = v.ErrorCode
		out["errorMessage"] = v.ErrorMessage
	}
	if v.AwaitingConfirmation != nil {
		out["awaitingConfirmation"] = *v.AwaitingConfirmation
	}
	return printOut(cmd.OutOrStdout(), out)
}
