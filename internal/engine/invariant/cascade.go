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
	"context"
	"reflect"
	"slices"

	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/policy"
	"github.com/go-arcade/guild/internal/engine/repo"
)

// cascades returns the mutations m schedules once it is written.
func (e *Enforcer) cascades(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation) ([]*Mutation, error) {
	switch m.Kind() {
	case model.KindUser:
		return cascadeUser(ctx, tx, m)
	case model.KindOrganisation:
		return cascadeOrganisation(ctx, tx, m)
	case model.KindTeam:
		return cascadeTeam(ctx, tx, m)
	case model.KindEvent:
		return cascadeEvent(ctx, tx, m)
	case model.KindManages, model.KindPlaysIn:
		return cascadeEdge(ctx, tx, g, m)
	}
	return nil, nil
}

type plan struct {
	m   *Mutation
	out []*Mutation
}

func (p *plan) add(op policy.Op, before, after model.Record, skip ...Check) {
	p.out = append(p.out, p.m.cascade(op, before, after, skip...))
}

// deleteAll schedules the deletion of every record of kind matching where.
func (p *plan) deleteAll(ctx context.Context, r repo.IReader, kind model.Kind, where repo.Where, skip ...Check) error {
	recs, err := r.Find(ctx, kind, where)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		p.add(policy.OpDelete, rec, nil, skip...)
	}
	return nil
}

// revalidate schedules a no-op update per registration so the registration
// bounds are checked again against the new state.
func (p *plan) revalidate(recs []model.Record, keep func(*model.Attends) bool) {
	for _, rec := range recs {
		a := rec.(*model.Attends)
		if keep == nil || keep(a) {
			p.add(policy.OpUpdate, a, a.Clone())
		}
	}
}

func cascadeUser(ctx context.Context, tx repo.ITx, m *Mutation) ([]*Mutation, error) {
	p := &plan{m: m}
	switch m.Op {
	case policy.OpUpdate:
		before, after := m.Before.(*model.User), m.After.(*model.User)
		if reflect.DeepEqual(before.Birthdate, after.Birthdate) {
			return nil, nil
		}
		actors := []string{after.Id}
		teams, err := tx.Find(ctx, model.KindPlaysIn, repo.Where{"in": after.Id})
		if err != nil {
			return nil, err
		}
		for _, t := range teams {
			actors = append(actors, t.(*model.PlaysIn).Out)
		}
		regs, err := tx.Find(ctx, model.KindAttends, repo.Where{"in": actors})
		if err != nil {
			return nil, err
		}
		p.revalidate(regs, func(a *model.Attends) bool { return slices.Contains(a.Players, after.Id) })
	case policy.OpDelete:
		u := m.Before.(*model.User)
		if err := p.deleteAll(ctx, tx, model.KindManages, repo.Where{"in": u.Id}); err != nil {
			return nil, err
		}
		if err := p.deleteAll(ctx, tx, model.KindPlaysIn, repo.Where{"in": u.Id}); err != nil {
			return nil, err
		}
		if err := p.deleteAll(ctx, tx, model.KindAttends, repo.Where{"in": u.Id, "in_kind": string(model.KindUser)}, CheckRegistration); err != nil {
			return nil, err
		}
		origins := []string{u.Id}
		if u.Email != "" {
			origins = append(origins, u.Email)
		}
		if err := p.deleteAll(ctx, tx, model.KindInvite, repo.Where{"origin": origins}); err != nil {
			return nil, err
		}
	}
	return p.out, nil
}

func cascadeOrganisation(ctx context.Context, tx repo.ITx, m *Mutation) ([]*Mutation, error) {
	p := &plan{m: m}
	switch m.Op {
	case policy.OpCreate:
		if m.Actor.IsUser() {
			p.add(policy.OpCreate, nil, &model.Manages{In: m.Actor.Id, Out: m.Id(), Role: model.RoleOwner, Public: true}, CheckInvite)
		}
	case policy.OpDelete:
		if err := p.deleteAll(ctx, tx, model.KindManages, repo.Where{"out": m.Id()}, CheckOwnerRetention); err != nil {
			return nil, err
		}
		if err := p.deleteAll(ctx, tx, model.KindInvite, repo.Where{"target": m.Id(), "target_kind": string(model.KindOrganisation)}); err != nil {
			return nil, err
		}
	}
	return p.out, nil
}

func cascadeTeam(ctx context.Context, tx repo.ITx, m *Mutation) ([]*Mutation, error) {
	p := &plan{m: m}
	switch m.Op {
	case policy.OpCreate:
		if m.Actor.IsUser() {
			p.add(policy.OpCreate, nil, &model.PlaysIn{In: m.Actor.Id, Out: m.Id()}, CheckInvite)
		}
	case policy.OpDelete:
		if err := p.deleteAll(ctx, tx, model.KindPlaysIn, repo.Where{"out": m.Id()}, CheckTeamNotEmpty, CheckRosterNarrowing); err != nil {
			return nil, err
		}
		if err := p.deleteAll(ctx, tx, model.KindAttends, repo.Where{"in": m.Id(), "in_kind": string(model.KindTeam)}, CheckRegistration); err != nil {
			return nil, err
		}
		if err := p.deleteAll(ctx, tx, model.KindInvite, repo.Where{"target": m.Id(), "target_kind": string(model.KindTeam)}); err != nil {
			return nil, err
		}
	}
	return p.out, nil
}

func cascadeEvent(ctx context.Context, tx repo.ITx, m *Mutation) ([]*Mutation, error) {
	p := &plan{m: m}
	switch m.Op {
	case policy.OpUpdate:
		before, after := m.Before.(*model.Event), m.After.(*model.Event)
		if reflect.DeepEqual(before.Options.Fields(), after.Options.Fields()) && reflect.DeepEqual(before.Start, after.Start) {
			return nil, nil
		}
		regs, err := tx.Find(ctx, model.KindAttends, repo.Where{"out": after.Id})
		if err != nil {
			return nil, err
		}
		p.revalidate(regs, nil)
	case policy.OpDelete:
		if err := p.deleteAll(ctx, tx, model.KindAttends, repo.Where{"out": m.Id()}, CheckRegistration); err != nil {
			return nil, err
		}
		if err := p.deleteAll(ctx, tx, model.KindEvent, repo.Where{"tournament": m.Id()}); err != nil {
			return nil, err
		}
	}
	return p.out, nil
}

func cascadeEdge(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation) ([]*Mutation, error) {
	p := &plan{m: m}
	switch m.Op {
	case policy.OpCreate:
		if m.skips(CheckInvite) {
			return nil, nil
		}
		// accepting consumes every invite to the target, whatever its role
		edge := m.After.(model.Edge)
		targetKind := model.KindOrganisation
		if m.Kind() == model.KindPlaysIn {
			targetKind = model.KindTeam
		}
		invites, err := g.PendingInvites(ctx, edge.From(), targetKind, edge.To())
		if err != nil {
			return nil, err
		}
		for _, inv := range invites {
			p.add(policy.OpDelete, inv, nil)
		}
	case policy.OpDelete:
		edge, ok := m.Before.(*model.PlaysIn)
		if !ok || m.skips(CheckRosterNarrowing) {
			return nil, nil
		}
		regs, err := tx.Find(ctx, model.KindAttends, repo.Where{"in": edge.Out, "in_kind": string(model.KindTeam)})
		if err != nil {
			return nil, err
		}
		for _, rec := range regs {
			a := rec.(*model.Attends)
			if !slices.Contains(a.Players, edge.In) {
				continue
			}
			narrowed := a.Clone().(*model.Attends)
			narrowed.Players = slices.DeleteFunc(narrowed.Players, func(id string) bool { return id == edge.In })
			if len(narrowed.Players) == 0 {
				p.add(policy.OpDelete, a, nil, CheckRegistration)
				continue
			}
			p.add(policy.OpUpdate, a, narrowed)
		}
	}
	return p.out, nil
}
