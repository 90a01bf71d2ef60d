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

package invariant

import (
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/policy"
	"github.com/go-arcade/guild/pkg/statemachine"
)

// State is the lifecycle of one mutation.
type State string

const (
	StateProposed  State = "proposed"
	StateValidated State = "validated"
	StateCommitted State = "committed"
	StateRejected  State = "rejected"
)

func newLifecycle() *statemachine.StateMachine[State] {
	return statemachine.NewWithState(StateProposed).
		Allow(StateProposed, StateValidated, StateRejected).
		Allow(StateValidated, StateCommitted, StateRejected)
}

// Check names a cross-record check that a cascade may skip because it holds
// by construction.
type Check string

const (
	CheckInvite          Check = "invite"
	CheckOwnerRetention  Check = "owner_retention"
	CheckTeamNotEmpty    Check = "team_not_empty"
	CheckRegistration    Check = "registration"
	CheckRosterNarrowing Check = "roster_narrowing"
)

// Checks is a set of skipped checks.
type Checks map[Check]struct{}

func Skip(checks ...Check) Checks {
	s := make(Checks, len(checks))
	for _, c := range checks {
		s[c] = struct{}{}
	}
	return s
}

func (s Checks) Has(c Check) bool {
	_, ok := s[c]
	return ok
}

// Mutation is one proposed write. Before is the stored record for update and
// delete, After the proposed post-image for create and update.
type Mutation struct {
	Op     policy.Op
	Before model.Record
	After  model.Record
	// Actor is the caller the mutation is performed for.
	Actor model.Caller
	// Cause is the id of the record whose mutation scheduled this one; empty
	// for a directly requested mutation.
	Cause string
	Skip  Checks

	lifecycle *statemachine.StateMachine[State]
}

func Create(actor model.Caller, rec model.Record) *Mutation {
	return &Mutation{Op: policy.OpCreate, After: rec, Actor: actor}
}

func Update(actor model.Caller, before, after model.Record) *Mutation {
	return &Mutation{Op: policy.OpUpdate, Before: before, After: after, Actor: actor}
}

func Delete(actor model.Caller, rec model.Record) *Mutation {
	return &Mutation{Op: policy.OpDelete, Before: rec, Actor: actor}
}

// Subject is the post-image, or the deleted record.
func (m *Mutation) Subject() model.Record {
	if m.After != nil {
		return m.After
	}
	return m.Before
}

func (m *Mutation) Kind() model.Kind { return m.Subject().Kind() }
func (m *Mutation) Id() string       { return m.Subject().GetId() }

// Cascaded reports whether the mutation was scheduled by another one.
func (m *Mutation) Cascaded() bool { return m.Cause != "" }

func (m *Mutation) State() State {
	if m.lifecycle == nil {
		return StateProposed
	}
	return m.lifecycle.Current()
}

func (m *Mutation) skips(c Check) bool {
	return m.Skip.Has(c)
}

func (m *Mutation) cascade(op policy.Op, before, after model.Record, skip ...Check) *Mutation {
	return &Mutation{Op: op, Before: before, After: after, Actor: m.Actor, Cause: m.Id(), Skip: Skip(skip...)}
}
