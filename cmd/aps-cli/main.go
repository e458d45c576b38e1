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
	"fmt"
	"os"
	"time"

	"github.com/go-arcade/aps/internal/aps/client"
	"github.com/go-arcade/aps/pkg/version"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
	output    string
)

var rootCmd = &cobra.Command{
	Use:           "aps-cli",
	Short:         "aps-cli drives scheduling sessions on an aps gateway",
	Long:          "aps-cli drives scheduling sessions on an aps gateway: load data, run stages, poll the schedule and confirm checkpoints",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("APS_SERVER", "http://127.0.0.1:8080/api/v1"), "gateway base url")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")

	rootCmd.AddCommand(
		version.VersionCmd,
		sessionCmd(),
		loadCmd(),
		stageCmd(),
		scheduleCmd(),
		pipelineCmd(),
	)
}

func newClient() *client.Client {
	return client.New(serverURL, timeout)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
