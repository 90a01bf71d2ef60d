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
	"sync"
)

// StateHook is triggered when entering a state.
type StateHook[T comparable] func(from, to T) error

// TransitionRecord records one transition in the history.
type TransitionRecord[T comparable] struct {
	From T
	To   T
}

// StateMachine is a small generic finite state machine.
// It is safe for concurrent use.
type StateMachine[T comparable] struct {
	mu sync.RWMutex

	current T
	initial T

	// from state -> valid next states
	transitions map[T][]T
	onEnter     map[T][]StateHook[T]
	history     []TransitionRecord[T]
}

// ErrInvalidTransition is returned when a transition is not registered.
type ErrInvalidTransition[T comparable] struct {
	From T
	To   T
}

func (e ErrInvalidTransition[T]) Error() string {
	return fmt.Sprintf("invalid state transition: %v -> %v", e.From, e.To)
}

// NewWithState creates a StateMachine positioned at the initial state.
func NewWithState[T comparable](initial T) *StateMachine[T] {
	return &StateMachine[T]{
		current:     initial,
		initial:     initial,
		transitions: make(map[T][]T),
		onEnter:     make(map[T][]StateHook[T]),
	}
}

// Allow registers valid transitions from a source state.
func (sm *StateMachine[T]) Allow(from T, to ...T) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, target := range to {
		if !slices.Contains(sm.transitions[from], target) {
			sm.transitions[from] = append(sm.transitions[from], target)
		}
	}
	return sm
}

// OnEnter registers a hook run before the machine settles in state.
// A hook error aborts the transition.
func (sm *StateMachine[T]) OnEnter(state T, h StateHook[T]) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onEnter[state] = append(sm.onEnter[state], h)
	return sm
}

// Current returns the current state.
func (sm *StateMachine[T]) Current() T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Initial returns the initial state.
func (sm *StateMachine[T]) Initial() T {
	return sm.initial
}

// Is reports whether the machine is in state.
func (sm *StateMachine[T]) Is(state T) bool {
	return sm.Current() == state
}

// CanTransitTo reports whether a transition from the current state to `to` is registered.
func (sm *StateMachine[T]) CanTransitTo(to T) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Contains(sm.transitions[sm.current], to)
}

// IsTerminal reports whether the current state has no outgoing transitions.
func (sm *StateMachine[T]) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.transitions[sm.current]) == 0
}

// TransitTo moves the machine to `to`, running the OnEnter hooks of the target state.
func (sm *StateMachine[T]) TransitTo(to T) error {
	sm.mu.Lock()
	from := sm.current
	if !slices.Contains(sm.transitions[from], to) {
		sm.mu.Unlock()
		return ErrInvalidTransition[T]{From: from, To: to}
	}
	hooks := slices.Clone(sm.onEnter[to])
	sm.mu.Unlock()

	for _, h := range hooks {
		if err := h(from, to); err != nil {
			return err
		}
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.current = to
	sm.history = append(sm.history, TransitionRecord[T]{From: from, To: to})
	return nil
}

// History returns a copy of the transitions taken so far.
func (sm *StateMachine[T]) History() []TransitionRecord[T] {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Clone(sm.history)
}
