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

package pipeline

import (
	"github.com/go-arcade/aps/internal/aps/engine"
	"github.com/go-arcade/aps/internal/aps/session"
	"github.com/go-arcade/aps/pkg/event"
	"github.com/go-arcade/aps/pkg/metrics"
	"github.com/google/wire"
)

var ProviderSet = wire.NewSet(ProvideOrchestrator)

// ProvideOrchestrator builds the gate from configuration and subscribes the
// transition logger and metrics to bus.
func ProvideOrchestrator(store session.Store, exec engine.Executor, conf Conf, bus *event.EventBus, m *metrics.PipelineMetrics) (*Orchestrator, error) {
	gate, err := NewGate(conf.ConfirmStages...)
	if err != nil {
		return nil, err
	}
	Subscribe(bus, m)
	return New(store, exec, gate, conf, WithEventBus(bus)), nil
}
