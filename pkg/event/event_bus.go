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

package event

import (
	"sync"

	"github.com/go-arcade/aps/pkg/log"
	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for the event package.
var ProviderSet = wire.NewSet(NewEventBus)

type Event interface {
	// EventName is the topic handlers subscribe to
	EventName() string
}

type EventHandler interface {
	Handle(event Event)
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(event Event)

func (f HandlerFunc) Handle(event Event) { f(event) }

// EventBus dispatches events synchronously, in registration order.
// A panicking handler is logged and does not stop the others.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	all      []EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string][]EventHandler),
	}
}

// RegisterHandler subscribes handler to one event name.
func (eb *EventBus) RegisterHandler(eventName string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventName] = append(eb.handlers[eventName], handler)
}

// RegisterAll subscribes handler to every event.
func (eb *EventBus) RegisterAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.all = append(eb.all, handler)
}

func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	targets := make([]EventHandler, 0, len(eb.all)+len(eb.handlers[event.EventName()]))
	targets = append(targets, eb.handlers[event.EventName()]...)
	targets = append(targets, eb.all...)
	eb.mu.RUnlock()

	for _, h := range targets {
		eb.dispatch(h, event)
	}
}

func (eb *EventBus) dispatch(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("event handler panicked", "event", event.EventName(), "panic", r)
		}
	}()
	h.Handle(event)
}
