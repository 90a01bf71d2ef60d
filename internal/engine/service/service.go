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

// Package service is the engine facade: every read and write goes through
// authorization, derived-field resolution, invariant enforcement and audit
// in one place.
package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/go-arcade/guild/internal/engine/audit"
	"github.com/go-arcade/guild/internal/engine/config"
	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/invariant"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/notify"
	"github.com/go-arcade/guild/internal/engine/policy"
	"github.com/go-arcade/guild/internal/engine/registration"
	"github.com/go-arcade/guild/internal/engine/repo"
	"github.com/go-arcade/guild/pkg/log"
	"github.com/go-arcade/guild/pkg/metrics"
	"github.com/go-arcade/guild/pkg/trace"
)

// View is the caller's view of a record: the direct and computed fields the
// caller may see.
type View map[string]any

type Engine struct {
	store        repo.IStore
	conf         config.Engine
	policy       *policy.Evaluator
	enforcer     *invariant.Enforcer
	registration *registration.Validator
	publisher    notify.Publisher
	metrics      *metrics.EngineMetrics
	now          func() time.Time
	table        *policy.Table
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPolicyTable replaces the default rule table.
func WithPolicyTable(t *policy.Table) Option {
	return func(e *Engine) {
		e.table = t
	}
}

func NewEngine(store repo.IStore, conf config.Engine, m *metrics.EngineMetrics, pub notify.Publisher, opts ...Option) *Engine {
	conf.SetDefaults()
	e := &Engine{
		store:     store,
		conf:      conf,
		publisher: pub,
		metrics:   m,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	recorder := audit.NewRecorder(audit.DefaultWatchList().Merge(conf.Watch), audit.WithClock(e.now))
	e.registration = registration.NewValidator()
	e.policy = policy.NewEvaluator(e.table, m)
	e.enforcer = invariant.NewEnforcer(e.registration,
		invariant.WithClock(e.now),
		invariant.WithHook(recorder.Apply),
	)
	return e
}

func (e *Engine) resolver(r repo.IReader) *graph.Resolver {
	return graph.NewResolver(r, graph.WithMaxDepth(e.conf.MaxDepth), graph.WithClock(e.now))
}

// Get returns the caller's view of one record. fields narrows the view; nil
// means every field the caller may see. A record the caller may not select
// is reported exactly like a missing one.
func (e *Engine) Get(ctx context.Context, caller model.Caller, kind model.Kind, id string, fields []string) (view View, err error) {
	ctx, span := trace.Start(ctx, "guild.Get", attribute.String("kind", string(kind)), attribute.String("id", id))
	defer func() { trace.End(span, err) }()

	g := e.resolver(e.store)
	rec, err := e.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return e.view(ctx, g, caller, rec, fields)
}

// List returns the views of the records matching where that the caller may
// select, in storage order. Records the caller cannot see are left out.
func (e *Engine) List(ctx context.Context, caller model.Caller, kind model.Kind, where repo.Where, fields []string) (views []View, err error) {
	ctx, span := trace.Start(ctx, "guild.List", attribute.String("kind", string(kind)))
	defer func() { trace.End(span, err) }()

	recs, err := e.store.Find(ctx, kind, where)
	if err != nil {
		return nil, err
	}
	g := e.resolver(e.store)
	out := make([]View, len(recs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.conf.ListConcurrency)
	for i, rec := range recs {
		eg.Go(func() error {
			v, err := e.view(egCtx, g, caller, rec, fields)
			if errors.Is(err, errs.ErrNotVisible) {
				return nil
			}
			out[i] = v
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return slices.DeleteFunc(out, func(v View) bool { return v == nil }), nil
}

func (e *Engine) view(ctx context.Context, g *graph.Resolver, caller model.Caller, rec model.Record, fields []string) (View, error) {
	env := &policy.Env{Graph: g}
	visible, err := e.policy.Authorize(ctx, env, &policy.Request{Caller: caller, Op: policy.OpSelect, Record: rec, Fields: fields})
	if err != nil {
		return nil, err
	}

	direct := rec.Fields()
	view := make(View, len(visible))
	for _, f := range visible {
		if v, ok := direct[f]; ok {
			view[f] = v
			continue
		}
		v, err := g.Resolve(ctx, f, rec)
		if err != nil {
			return nil, err
		}
		view[f] = v
	}

	if org, ok := rec.(*model.Organisation); ok {
		if err := e.hidePrivateManagers(ctx, env, caller, org, view); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// hidePrivateManagers drops non-public entries from the manager lists unless
// the caller manages the organisation.
func (e *Engine) hidePrivateManagers(ctx context.Context, env *policy.Env, caller model.Caller, org *model.Organisation, view View) error {
	_, hasManagers := view["managers"]
	_, hasRoles := view["manager_roles"]
	if !hasManagers && !hasRoles {
		return nil
	}
	ok, err := policy.CanSeePrivateManagers(ctx, env, caller, org)
	if err != nil || ok {
		return err
	}
	for _, f := range []string{"managers", "manager_roles"} {
		if list, ok := view[f].([]model.Manager); ok {
			view[f] = slices.DeleteFunc(slices.Clone(list), func(m model.Manager) bool { return !m.Public })
		}
	}
	return nil
}

// Create authorizes and applies rec, returning the committed record.
func (e *Engine) Create(ctx context.Context, caller model.Caller, rec model.Record) (model.Record, error) {
	applied, err := e.mutate(ctx, caller, policy.OpCreate, rec.Kind(), func(ctx context.Context, tx repo.ITx, g *graph.Resolver) (*invariant.Mutation, error) {
		if _, err := e.policy.Authorize(ctx, &policy.Env{Graph: g}, &policy.Request{Caller: caller, Op: policy.OpCreate, Record: rec}); err != nil {
			return nil, err
		}
		return invariant.Create(caller, rec), nil
	})
	if err != nil {
		return nil, err
	}
	return applied[0].After.Clone(), nil
}

// Update replaces the stored record with rec, returning the committed record.
func (e *Engine) Update(ctx context.Context, caller model.Caller, rec model.Record) (model.Record, error) {
	applied, err := e.mutate(ctx, caller, policy.OpUpdate, rec.Kind(), func(ctx context.Context, tx repo.ITx, g *graph.Resolver) (*invariant.Mutation, error) {
		before, err := tx.Get(ctx, rec.Kind(), rec.GetId())
		if err != nil {
			return nil, err
		}
		after := rec.Clone()
		if _, err := e.policy.Authorize(ctx, &policy.Env{Graph: g}, &policy.Request{Caller: caller, Op: policy.OpUpdate, Record: after, Before: before}); err != nil {
			return nil, err
		}
		return invariant.Update(caller, before, after), nil
	})
	if err != nil {
		return nil, err
	}
	return applied[0].After.Clone(), nil
}

// Delete removes the record and everything that cascades from it.
func (e *Engine) Delete(ctx context.Context, caller model.Caller, kind model.Kind, id string) error {
	_, err := e.mutate(ctx, caller, policy.OpDelete, kind, func(ctx context.Context, tx repo.ITx, g *graph.Resolver) (*invariant.Mutation, error) {
		before, err := tx.Get(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		if _, err := e.policy.Authorize(ctx, &policy.Env{Graph: g}, &policy.Request{Caller: caller, Op: policy.OpDelete, Record: before}); err != nil {
			return nil, err
		}
		return invariant.Delete(caller, before), nil
	})
	return err
}

// AcceptInvite creates the Manages or PlaysIn edge the invite offers to the
// caller. Accepting consumes every pending invite to the same target.
func (e *Engine) AcceptInvite(ctx context.Context, caller model.Caller, inviteId string) (model.Record, error) {
	var kind model.Kind
	applied, err := e.mutate(ctx, caller, policy.OpCreate, model.KindInvite, func(ctx context.Context, tx repo.ITx, g *graph.Resolver) (*invariant.Mutation, error) {
		rec, err := tx.Get(ctx, model.KindInvite, inviteId)
		if err != nil {
			return nil, err
		}
		env := &policy.Env{Graph: g}
		if _, err := e.policy.Authorize(ctx, env, &policy.Request{Caller: caller, Op: policy.OpSelect, Record: rec}); err != nil {
			return nil, err
		}
		if !caller.IsUser() {
			return nil, errs.Forbidden(model.KindInvite, inviteId, "accept", "")
		}

		inv := rec.(*model.Invite)
		var edge model.Record
		switch inv.TargetKind {
		case model.KindOrganisation:
			edge = &model.Manages{In: caller.Id, Out: inv.Target, Role: inv.Role}
		case model.KindTeam:
			edge = &model.PlaysIn{In: caller.Id, Out: inv.Target}
		default:
			return nil, errs.Validation(model.KindInvite, inviteId, "target_kind", "unsupported invite target")
		}
		kind = edge.Kind()
		if _, err := e.policy.Authorize(ctx, env, &policy.Request{Caller: caller, Op: policy.OpCreate, Record: edge}); err != nil {
			return nil, err
		}
		return invariant.Create(caller, edge), nil
	})
	if err != nil {
		return nil, err
	}
	log.Infow("invite accepted", "invite", inviteId, "caller", caller.String(), "kind", kind, "edge", applied[0].Id())
	return applied[0].After.Clone(), nil
}

// Logs returns the audit entries about subject the caller may read, oldest first.
func (e *Engine) Logs(ctx context.Context, caller model.Caller, subject string) (logs []*model.Log, err error) {
	ctx, span := trace.Start(ctx, "guild.Logs", attribute.String("subject", subject))
	defer func() { trace.End(span, err) }()

	recs, err := e.store.Find(ctx, model.KindLog, repo.Where{"record": subject})
	if err != nil {
		return nil, err
	}
	env := &policy.Env{Graph: e.resolver(e.store)}
	for _, rec := range recs {
		ok, err := e.policy.Allowed(ctx, env, &policy.Request{Caller: caller, Op: policy.OpSelect, Record: rec})
		if err != nil {
			return nil, err
		}
		if ok {
			logs = append(logs, rec.(*model.Log))
		}
	}
	return logs, nil
}

// EligibilityReport tells whether the actor can register for the event and
// explains which bounds its roster misses.
func (e *Engine) EligibilityReport(ctx context.Context, caller model.Caller, actorKind model.Kind, actorId, eventId string) (report *registration.Report, err error) {
	ctx, span := trace.Start(ctx, "guild.EligibilityReport", attribute.String("actor", actorId), attribute.String("event", eventId))
	defer func() { trace.End(span, err) }()

	if actorKind != model.KindUser && actorKind != model.KindTeam {
		return nil, errs.Validation(model.KindAttends, "", "in_kind", "actor must be a user or a team")
	}
	g := e.resolver(e.store)
	ev, err := g.Event(ctx, eventId)
	if err != nil {
		return nil, err
	}
	if _, err := e.policy.Authorize(ctx, &policy.Env{Graph: g}, &policy.Request{Caller: caller, Op: policy.OpSelect, Record: ev, Fields: []string{}}); err != nil {
		return nil, err
	}
	if _, err := e.store.Get(ctx, actorKind, actorId); err != nil {
		return nil, err
	}
	return e.registration.Report(ctx, g, actorKind, actorId, ev)
}

type buildFunc func(ctx context.Context, tx repo.ITx, g *graph.Resolver) (*invariant.Mutation, error)

// mutate runs build and the enforcer in one store transaction, then
// publishes invite events for what committed.
func (e *Engine) mutate(ctx context.Context, caller model.Caller, op policy.Op, kind model.Kind, build buildFunc) (applied []*invariant.Mutation, err error) {
	ctx, span := trace.Start(ctx, "guild."+string(op),
		attribute.String("kind", string(kind)),
		attribute.String("caller", caller.String()),
	)
	start := time.Now()
	defer func() {
		e.metrics.ObserveMutation(string(kind), string(op), errs.CodeOf(err), time.Since(start))
		trace.End(span, err)
	}()

	err = e.store.Transaction(ctx, func(tx repo.ITx) error {
		g := e.resolver(tx)
		m, err := build(ctx, tx, g)
		if err != nil {
			return err
		}
		applied, err = e.enforcer.Apply(ctx, tx, g, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := notify.PublishAll(ctx, e.publisher, notify.InviteEvents(applied, e.now())); err != nil {
		log.Warnw("failed to publish invite events", "error", err)
	}
	return applied, nil
}
