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

// Package invariant validates proposed writes against field and cross-record
// rules, applies them through a store transaction and schedules the cascades
// that keep the graph consistent.
package invariant

import (
	"context"
	"errors"
	"time"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/policy"
	"github.com/go-arcade/guild/internal/engine/registration"
	"github.com/go-arcade/guild/internal/engine/repo"
	"github.com/go-arcade/guild/pkg/id"
	"github.com/go-arcade/guild/pkg/log"
	"github.com/go-playground/validator/v10"
)

// Hook runs after each applied mutation, inside the same transaction.
type Hook func(ctx context.Context, tx repo.ITx, m *Mutation) error

type Enforcer struct {
	fields       *validator.Validate
	registration *registration.Validator
	now          func() time.Time
	newId        id.Generator
	hooks        []Hook
}

type Option func(*Enforcer)

func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) {
		if now != nil {
			e.now = now
		}
	}
}

func WithIdGenerator(gen id.Generator) Option {
	return func(e *Enforcer) {
		if gen != nil {
			e.newId = gen
		}
	}
}

// WithHook appends h to the hooks run after every applied mutation.
func WithHook(h Hook) Option {
	return func(e *Enforcer) {
		e.hooks = append(e.hooks, h)
	}
}

func NewEnforcer(reg *registration.Validator, opts ...Option) *Enforcer {
	if reg == nil {
		reg = registration.NewValidator()
	}
	e := &Enforcer{
		fields:       newFieldValidator(),
		registration: reg,
		now:          time.Now,
		newId:        id.GetUUID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply validates m, writes it through tx and applies its cascades, depth
// first. It returns the applied mutations in order, m first. On error the
// caller must roll tx back; nothing written so far is consistent.
//
// g must read through tx. Its memo is reset after every write.
func (e *Enforcer) Apply(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation) ([]*Mutation, error) {
	var applied []*Mutation
	if err := e.apply(ctx, tx, g, m, &applied); err != nil {
		return applied, err
	}
	return applied, nil
}

func (e *Enforcer) apply(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation, applied *[]*Mutation) error {
	if m.Op == policy.OpDelete && m.Cascaded() {
		// already removed through another cascade path
		if _, err := tx.Get(ctx, m.Kind(), m.Id()); errors.Is(err, errs.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
	}

	m.lifecycle = newLifecycle()
	m.lifecycle.OnEnter(StateValidated, func(_, _ State) error {
		return e.validate(ctx, tx, g, m)
	})
	if err := m.lifecycle.TransitTo(StateValidated); err != nil {
		_ = m.lifecycle.TransitTo(StateRejected)
		log.Infow("mutation rejected", "op", m.Op, "kind", m.Kind(), "id", m.Id(), "cause", m.Cause, "code", errs.CodeOf(err), "error", err)
		return err
	}

	if err := e.write(ctx, tx, m); err != nil {
		return err
	}
	g.Reset()
	*applied = append(*applied, m)

	for _, h := range e.hooks {
		if err := h(ctx, tx, m); err != nil {
			return err
		}
	}

	next, err := e.cascades(ctx, tx, g, m)
	if err != nil {
		return err
	}
	for _, c := range next {
		if err := e.apply(ctx, tx, g, c, applied); err != nil {
			return err
		}
	}

	if err := m.lifecycle.TransitTo(StateCommitted); err != nil {
		return err
	}
	log.Debugw("mutation applied", "op", m.Op, "kind", m.Kind(), "id", m.Id(), "cause", m.Cause, "cascades", len(next))
	return nil
}

func (e *Enforcer) validate(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation) error {
	if err := e.prepare(ctx, tx, m); err != nil {
		return err
	}
	if m.Op != policy.OpDelete {
		if err := e.checkFields(m); err != nil {
			return err
		}
	}
	if err := e.checkRecord(ctx, tx, g, m); err != nil {
		return err
	}
	if a, ok := m.After.(*model.Attends); ok && !m.skips(CheckRegistration) {
		return e.registration.Prepare(ctx, g, a, m.Op == policy.OpCreate)
	}
	return nil
}

// prepare assigns ids and timestamps.
func (e *Enforcer) prepare(ctx context.Context, tx repo.ITx, m *Mutation) error {
	now := e.now()
	switch m.Op {
	case policy.OpCreate:
		rec := m.After
		if rec.GetId() == "" {
			rec.SetId(e.newId())
		} else if _, err := tx.Get(ctx, rec.Kind(), rec.GetId()); err == nil {
			return errs.Validation(rec.Kind(), rec.GetId(), "id", "record already exists")
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		rec.Base().CreatedAt = now
		rec.Base().UpdatedAt = now
	case policy.OpUpdate:
		m.After.SetId(m.Before.GetId())
		m.After.Base().CreatedAt = m.Before.Base().CreatedAt
		m.After.Base().UpdatedAt = now
	}
	return nil
}

func (e *Enforcer) write(ctx context.Context, tx repo.ITx, m *Mutation) error {
	if m.Op == policy.OpDelete {
		return tx.Delete(ctx, m.Kind(), m.Id())
	}
	return tx.Put(ctx, m.After)
}
