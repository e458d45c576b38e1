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

package statemachine

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Event names what caused a transition.
type Event string

// TransitionHook is triggered when a state transition occurs.
type TransitionHook[T comparable] func(from, to T, event Event) error

// StateHook is triggered when entering a state.
type StateHook[T comparable] func(state T) error

// TransitionValidator validates whether a state transition is allowed.
type TransitionValidator[T comparable] func(from, to T, event Event) error

// TransitionRecord records a state transition in the machine history.
type TransitionRecord[T comparable] struct {
	From      T
	To        T
	Event     Event
	Timestamp time.Time
	Error     error
}

// ErrInvalidTransition is returned for a transition that is not in the table.
type ErrInvalidTransition[T comparable] struct {
	From T
	To   T
}

func (e *ErrInvalidTransition[T]) Error() string {
	return fmt.Sprintf("invalid transition: %v → %v", e.From, e.To)
}

// StateMachine is a generic finite state machine.
//
// It can be used two ways: as a single stateful machine (Current/TransitionTo),
// or as a shared transition table consulted with Check for many records that
// each keep their own state. The latter never touches Current.
//
// StateMachine is safe for concurrent use.
type StateMachine[T comparable] struct {
	mu sync.RWMutex

	currentState T
	initialState T

	// from state -> list of valid next states
	validTransitions map[T][]T

	history        []TransitionRecord[T]
	maxHistorySize int

	onTransition []TransitionHook[T]
	onEnter      map[T][]StateHook[T]
	validators   []TransitionValidator[T]
}

// New creates a new StateMachine instance.
func New[T comparable]() *StateMachine[T] {
	return &StateMachine[T]{
		validTransitions: make(map[T][]T),
		onEnter:          make(map[T][]StateHook[T]),
		maxHistorySize:   100,
	}
}

// NewWithState creates a new StateMachine with an initial state.
func NewWithState[T comparable](initialState T) *StateMachine[T] {
	sm := New[T]()
	sm.currentState = initialState
	sm.initialState = initialState
	return sm
}

// Allow registers valid transitions from a source state.
func (sm *StateMachine[T]) Allow(from T, to ...T) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, target := range to {
		if !slices.Contains(sm.validTransitions[from], target) {
			sm.validTransitions[from] = append(sm.validTransitions[from], target)
		}
	}
	return sm
}

// CanTransition checks if a transition from one state to another is in the table.
func (sm *StateMachine[T]) CanTransition(from, to T) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Contains(sm.validTransitions[from], to)
}

// Current returns the current state.
func (sm *StateMachine[T]) Current() T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// Initial returns the initial state.
func (sm *StateMachine[T]) Initial() T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.initialState
}

// GetValidNextStates returns all valid next states from the given state.
func (sm *StateMachine[T]) GetValidNextStates(from T) []T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Clone(sm.validTransitions[from])
}

// History returns the transition history.
func (sm *StateMachine[T]) History() []TransitionRecord[T] {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Clone(sm.history)
}

// SetMaxHistorySize sets the maximum number of history records to keep.
func (sm *StateMachine[T]) SetMaxHistorySize(size int) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.maxHistorySize = size
	if len(sm.history) > size {
		sm.history = sm.history[len(sm.history)-size:]
	}
	return sm
}

// OnTransition registers a hook that is called during any transition.
func (sm *StateMachine[T]) OnTransition(h TransitionHook[T]) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onTransition = append(sm.onTransition, h)
	return sm
}

// OnEnter registers a hook that is called when entering a specific state.
func (sm *StateMachine[T]) OnEnter(state T, h StateHook[T]) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onEnter[state] = append(sm.onEnter[state], h)
	return sm
}

// AddValidator adds a validator that checks if a transition is allowed.
func (sm *StateMachine[T]) AddValidator(v TransitionValidator[T]) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.validators = append(sm.validators, v)
	return sm
}

// Check validates from → to against the table and validators without
// touching the current state, the history or the hooks.
func (sm *StateMachine[T]) Check(from, to T, event Event) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.check(from, to, event)
}

func (sm *StateMachine[T]) check(from, to T, event Event) error {
	if !slices.Contains(sm.validTransitions[from], to) {
		return &ErrInvalidTransition[T]{From: from, To: to}
	}
	for _, validator := range sm.validators {
		if err := validator(from, to, event); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// Transition validates, runs hooks, moves the current state and records history.
func (sm *StateMachine[T]) Transition(from, to T, event Event) (err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	start := time.Now()
	defer func() {
		sm.history = append(sm.history, TransitionRecord[T]{From: from, To: to, Event: event, Timestamp: start, Error: err})
		if len(sm.history) > sm.maxHistorySize {
			sm.history = sm.history[len(sm.history)-sm.maxHistorySize:]
		}
	}()

	if err = sm.check(from, to, event); err != nil {
		return err
	}
	for _, h := range sm.onTransition {
		if err = h(from, to, event); err != nil {
			return fmt.Errorf("transition hook failed: %w", err)
		}
	}
	sm.currentState = to
	for _, h := range sm.onEnter[to] {
		if err = h(to); err != nil {
			return fmt.Errorf("enter hook failed for state %v: %w", to, err)
		}
	}
	return nil
}

// TransitionTo performs a transition from the current state to the target state.
func (sm *StateMachine[T]) TransitionTo(to T, event Event) error {
	return sm.Transition(sm.Current(), to, event)
}

// Is checks if the current state matches the given state.
func (sm *StateMachine[T]) Is(state T) bool {
	return sm.Current() == state
}

// ToDot exports the transition table as a Graphviz DOT string.
func (sm *StateMachine[T]) ToDot(name string) string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n  rankdir=LR;\n  node [shape=circle];\n", name)
	if sm.initialState != *new(T) {
		fmt.Fprintf(&b, "  start [shape=point];\n  start -> \"%v\";\n", sm.initialState)
	}
	for from, tos := range sm.validTransitions {
		for _, to := range tos {
			fmt.Fprintf(&b, "  \"%v\" -> \"%v\";\n", from, to)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
