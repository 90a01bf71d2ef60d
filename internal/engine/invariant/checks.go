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
	"errors"
	"fmt"
	"slices"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/policy"
	"github.com/go-arcade/guild/internal/engine/repo"
)

func (e *Enforcer) checkRecord(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation) error {
	switch m.Kind() {
	case model.KindUser:
		return checkUser(ctx, tx, m)
	case model.KindOrganisation:
		return checkOrganisation(ctx, tx, g, m)
	case model.KindEvent:
		return checkEvent(ctx, tx, g, m)
	case model.KindManages:
		return checkManages(ctx, tx, g, m)
	case model.KindPlaysIn:
		return checkPlaysIn(ctx, tx, g, m)
	case model.KindAttends:
		return checkAttends(ctx, tx, m)
	case model.KindInvite:
		return checkInvite(ctx, tx, m)
	}
	return nil
}

func checkUser(ctx context.Context, tx repo.ITx, m *Mutation) error {
	if m.Op == policy.OpDelete {
		return nil
	}
	u := m.After.(*model.User)
	users, err := tx.Find(ctx, model.KindUser, repo.Where{"email": u.Email})
	if err != nil {
		return err
	}
	for _, other := range users {
		if other.GetId() != u.Id {
			return errs.Invariant(model.KindUser, u.Id, errs.InvariantUniqueEmail, fmt.Sprintf("email %s is already in use", u.Email))
		}
	}
	return nil
}

func checkOrganisation(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation) error {
	if m.Op == policy.OpDelete {
		id := m.Id()
		children, err := tx.Find(ctx, model.KindOrganisation, repo.Where{"part_of": id})
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return errs.Invariant(model.KindOrganisation, id, errs.InvariantHasChildren, fmt.Sprintf("%d child organisations remain", len(children)))
		}
		events, err := tx.Find(ctx, model.KindEvent, repo.Where{"organiser": id})
		if err != nil {
			return err
		}
		if len(events) > 0 {
			return errs.Invariant(model.KindOrganisation, id, errs.InvariantHasEvents, fmt.Sprintf("%d organised events remain", len(events)))
		}
		return nil
	}

	org := m.After.(*model.Organisation)
	if org.PartOf == "" || (m.Op == policy.OpUpdate && m.Before.(*model.Organisation).PartOf == org.PartOf) {
		return nil
	}
	parent, err := g.Organisation(ctx, org.PartOf)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.Invariant(model.KindOrganisation, org.Id, errs.InvariantParentExists, fmt.Sprintf("part_of %s does not exist", org.PartOf))
	} else if err != nil {
		return err
	}
	chain, err := g.Ancestors(ctx, parent)
	if errors.Is(err, errs.ErrRecursionLimit) {
		return errs.RecursionLimit(model.KindOrganisation, org.Id, "part_of", g.MaxDepth())
	} else if err != nil {
		return err
	}
	lineage := []string{parent.Id}
	for _, o := range chain {
		lineage = append(lineage, o.Id)
	}
	return checkLineage(ctx, g, m, model.KindOrganisation, "part_of", lineage, errs.InvariantParentAcyclic)
}

func checkEvent(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation) error {
	if m.Op == policy.OpDelete {
		return nil
	}
	ev := m.After.(*model.Event)
	if ok, err := exists(ctx, tx, model.KindOrganisation, ev.Organiser); err != nil {
		return err
	} else if !ok {
		return errs.Invariant(model.KindEvent, ev.Id, errs.InvariantOrganiserExists, fmt.Sprintf("organiser %s does not exist", ev.Organiser))
	}

	if ev.Tournament == "" || (m.Op == policy.OpUpdate && m.Before.(*model.Event).Tournament == ev.Tournament) {
		return nil
	}
	parent, err := g.Event(ctx, ev.Tournament)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.Invariant(model.KindEvent, ev.Id, errs.InvariantTournamentExists, fmt.Sprintf("tournament %s does not exist", ev.Tournament))
	} else if err != nil {
		return err
	}
	chain, err := g.TournamentLineage(ctx, parent)
	if errors.Is(err, errs.ErrRecursionLimit) {
		return errs.RecursionLimit(model.KindEvent, ev.Id, "tournament", g.MaxDepth())
	} else if err != nil {
		return err
	}
	lineage := []string{parent.Id}
	for _, e := range chain {
		lineage = append(lineage, e.Id)
	}
	return checkLineage(ctx, g, m, model.KindEvent, "tournament", lineage, errs.InvariantTournamentAcyclic)
}

// checkLineage checks the record's new ancestors, nearest first. The record
// must not be among them, and every record below it must stay within
// MaxDepth ancestors once it moves.
func checkLineage(ctx context.Context, g *graph.Resolver, m *Mutation, kind model.Kind, field string, lineage []string, acyclicInv string) error {
	self := m.Id()
	if slices.Contains(lineage, self) {
		return errs.Invariant(kind, self, acyclicInv, fmt.Sprintf("%s chain returns to %s", field, self))
	}
	room := g.MaxDepth() - len(lineage)
	if room < 0 {
		return errs.RecursionLimit(kind, self, field, g.MaxDepth())
	}
	if m.Op != policy.OpUpdate {
		return nil
	}
	height, err := g.SubtreeHeight(ctx, kind, field, self, room)
	if err != nil {
		return err
	}
	if height > room {
		return errs.RecursionLimit(kind, self, field, g.MaxDepth())
	}
	return nil
}

func checkManages(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation) error {
	switch m.Op {
	case policy.OpCreate:
		edge := m.After.(*model.Manages)
		if err := checkEdge(ctx, tx, edge, model.KindUser, model.KindOrganisation); err != nil {
			return err
		}
		if m.skips(CheckInvite) {
			return nil
		}
		return checkInvited(ctx, g, edge.In, edge)
	case policy.OpUpdate:
		before, after := m.Before.(*model.Manages), m.After.(*model.Manages)
		if before.Role == model.RoleOwner && after.Role != model.RoleOwner && !m.skips(CheckOwnerRetention) {
			return checkOwnerRetention(ctx, tx, before)
		}
	case policy.OpDelete:
		before := m.Before.(*model.Manages)
		if before.Role == model.RoleOwner && !m.skips(CheckOwnerRetention) {
			return checkOwnerRetention(ctx, tx, before)
		}
	}
	return nil
}

// checkOwnerRetention fails when edge is the organisation's last local owner.
func checkOwnerRetention(ctx context.Context, tx repo.ITx, edge *model.Manages) error {
	owners, err := tx.Find(ctx, model.KindManages, repo.Where{"out": edge.Out, "role": string(model.RoleOwner)})
	if err != nil {
		return err
	}
	for _, o := range owners {
		if o.GetId() != edge.Id {
			return nil
		}
	}
	return errs.Invariant(model.KindManages, edge.Id, errs.InvariantOwnerRetention, fmt.Sprintf("organisation %s would be left without an owner", edge.Out))
}

func checkPlaysIn(ctx context.Context, tx repo.ITx, g *graph.Resolver, m *Mutation) error {
	switch m.Op {
	case policy.OpCreate:
		edge := m.After.(*model.PlaysIn)
		if err := checkEdge(ctx, tx, edge, model.KindUser, model.KindTeam); err != nil {
			return err
		}
		if m.skips(CheckInvite) {
			return nil
		}
		return checkInvited(ctx, g, edge.In, edge)
	case policy.OpDelete:
		if m.skips(CheckTeamNotEmpty) {
			return nil
		}
		edge := m.Before.(*model.PlaysIn)
		players, err := tx.Find(ctx, model.KindPlaysIn, repo.Where{"out": edge.Out})
		if err != nil {
			return err
		}
		for _, p := range players {
			if p.GetId() != edge.Id {
				return nil
			}
		}
		return errs.Invariant(model.KindPlaysIn, edge.Id, errs.InvariantTeamNotEmpty, fmt.Sprintf("team %s would be left without players", edge.Out))
	}
	return nil
}

func checkAttends(ctx context.Context, tx repo.ITx, m *Mutation) error {
	if m.Op == policy.OpDelete {
		return nil
	}
	a := m.After.(*model.Attends)
	for _, end := range []struct {
		kind model.Kind
		id   string
	}{{a.InKind, a.In}, {model.KindEvent, a.Out}} {
		ok, err := exists(ctx, tx, end.kind, end.id)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Invariant(model.KindAttends, a.Id, errs.InvariantEndpointExists, fmt.Sprintf("%s %s does not exist", end.kind, end.id))
		}
	}
	return nil
}

func checkInvite(ctx context.Context, tx repo.ITx, m *Mutation) error {
	if m.Op == policy.OpDelete {
		return nil
	}
	inv := m.After.(*model.Invite)
	switch inv.TargetKind {
	case model.KindOrganisation:
		if inv.Role == "" {
			return errs.Validation(model.KindInvite, inv.Id, "role", "organisation invites carry a role")
		}
	case model.KindTeam:
		if inv.Role != "" {
			return errs.Validation(model.KindInvite, inv.Id, "role", "team invites carry no role")
		}
	}
	ok, err := exists(ctx, tx, inv.TargetKind, inv.Target)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Invariant(model.KindInvite, inv.Id, errs.InvariantEndpointExists, fmt.Sprintf("%s %s does not exist", inv.TargetKind, inv.Target))
	}
	return nil
}

// checkEdge asserts both endpoints exist and no other edge joins them.
func checkEdge(ctx context.Context, tx repo.ITx, edge model.Edge, from, to model.Kind) error {
	for _, end := range []struct {
		kind model.Kind
		id   string
	}{{from, edge.From()}, {to, edge.To()}} {
		ok, err := exists(ctx, tx, end.kind, end.id)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Invariant(edge.Kind(), edge.GetId(), errs.InvariantEndpointExists, fmt.Sprintf("%s %s does not exist", end.kind, end.id))
		}
	}
	dup, err := tx.Find(ctx, edge.Kind(), repo.Where{"in": edge.From(), "out": edge.To()})
	if err != nil {
		return err
	}
	for _, d := range dup {
		if d.GetId() != edge.GetId() {
			return errs.Invariant(edge.Kind(), edge.GetId(), errs.InvariantDuplicateEdge, fmt.Sprintf("%s already joins %s and %s", d.GetId(), edge.From(), edge.To()))
		}
	}
	return nil
}

func checkInvited(ctx context.Context, g *graph.Resolver, user string, edge model.Record) error {
	invites, err := policy.MatchingInvites(ctx, g, user, edge)
	if err != nil {
		return err
	}
	if len(invites) == 0 {
		return errs.Invariant(edge.Kind(), edge.GetId(), errs.InvariantInviteRequired, fmt.Sprintf("no pending invite for %s", user))
	}
	return nil
}

func exists(ctx context.Context, r repo.IReader, kind model.Kind, id string) (bool, error) {
	_, err := r.Get(ctx, kind, id)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
