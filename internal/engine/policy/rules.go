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

package policy

import (
	"context"
	"errors"
	"slices"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/repo"
)

var (
	governing  = []model.Role{model.RoleOwner, model.RoleAdministrator}
	organising = []model.Role{model.RoleOwner, model.RoleAdministrator, model.RoleEventManager}
)

// DefaultTable is the rule set of the engine. Admin callers bypass it for
// everything except writes to Log.
func DefaultTable() *Table {
	t := NewTable()

	// users
	t.Allow(model.KindUser, "world-readable", Always, OpSelect)
	t.Allow(model.KindUser, "self", selfRecord, OpCreate, OpUpdate, OpDelete)
	t.GuardRead(model.KindUser, "email", userContact)
	t.GuardRead(model.KindUser, "birthdate", userContact)

	// organisations
	t.Allow(model.KindOrganisation, "world-readable", Always, OpSelect)
	t.Allow(model.KindOrganisation, "create-root", All(isUser, noParent), OpCreate)
	t.Allow(model.KindOrganisation, "create-under-parent", parentGovernor, OpCreate)
	t.Allow(model.KindOrganisation, "local-governor", All(localGovernor, reparentAllowed), OpUpdate)
	t.Allow(model.KindOrganisation, "governor", Any(All(noParent, localGovernor), rootGovernor), OpDelete)

	// teams
	t.Allow(model.KindTeam, "world-readable", Always, OpSelect)
	t.Allow(model.KindTeam, "any-user", isUser, OpCreate)
	t.Allow(model.KindTeam, "player", teamPlayer, OpUpdate, OpDelete)

	// events
	t.Allow(model.KindEvent, "published", Expr("record.discoverable && record.published"), OpSelect)
	t.Allow(model.KindEvent, "organiser-manager", organiserManager(), OpSelect)
	t.Allow(model.KindEvent, "organiser", All(organiserManager(organising...), tournamentOrganiser), OpCreate, OpUpdate)
	t.Allow(model.KindEvent, "organiser", organiserManager(organising...), OpDelete)

	// manages
	t.Allow(model.KindManages, "public", Expr("record.public"), OpSelect)
	t.Allow(model.KindManages, "subject", edgeSubject, OpSelect, OpDelete)
	t.Allow(model.KindManages, "organisation-manager", edgeOrgManager(), OpSelect)
	t.Allow(model.KindManages, "invited", All(edgeSubject, invited), OpCreate)
	t.Allow(model.KindManages, "subject-same-role", All(edgeSubject, Expr("record.role == before.role")), OpUpdate)
	t.Allow(model.KindManages, "organisation-governor", edgeOrgManager(governing...), OpUpdate, OpDelete)

	// plays_in
	t.Allow(model.KindPlaysIn, "world-readable", Always, OpSelect)
	t.Allow(model.KindPlaysIn, "invited", All(edgeSubject, invited), OpCreate)
	t.Allow(model.KindPlaysIn, "subject", edgeSubject, OpUpdate, OpDelete)
	t.Allow(model.KindPlaysIn, "team-player", edgeTeamPlayer, OpUpdate, OpDelete)

	// attends
	t.Allow(model.KindAttends, "actor", attendsActor, OpSelect, OpCreate, OpUpdate, OpDelete)
	t.Allow(model.KindAttends, "organiser-manager", attendsOrganiser(), OpSelect)
	t.Allow(model.KindAttends, "organiser", attendsOrganiser(organising...), OpCreate, OpUpdate, OpDelete)
	t.GuardWrite(model.KindAttends, "confirmed", attendsOrganiser(organising...))
	t.RequireVisible(model.KindAttends, model.KindEvent, func(r model.Record) string { return r.(*model.Attends).Out })

	// invites
	t.Allow(model.KindInvite, "origin", inviteOrigin, OpSelect, OpDelete)
	t.Allow(model.KindInvite, "inviter", Expr(`caller.scope == "user" && record.invited_by == caller.id`), OpSelect, OpDelete)
	t.Allow(model.KindInvite, "target-manager", inviteTarget(), OpSelect)
	t.Allow(model.KindInvite, "target-governor", inviteTarget(governing...), OpDelete)
	t.Allow(model.KindInvite, "target-governor", All(
		Expr(`caller.scope == "user" && record.invited_by == caller.id`),
		inviteTarget(governing...),
	), OpCreate)

	// logs
	t.Allow(model.KindLog, "self-subject", Expr(`caller.scope == "user" && record.record_kind == "user" && record.record == caller.id`), OpSelect)

	return t
}

// Always allows every request.
func Always(context.Context, *Env, *Request) (bool, error) { return true, nil }

// All holds when every predicate holds.
func All(preds ...Predicate) Predicate {
	return func(ctx context.Context, env *Env, req *Request) (bool, error) {
		for _, p := range preds {
			ok, err := p(ctx, env, req)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Any holds when one of the predicates holds.
func Any(preds ...Predicate) Predicate {
	return func(ctx context.Context, env *Env, req *Request) (bool, error) {
		for _, p := range preds {
			ok, err := p(ctx, env, req)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

func isUser(_ context.Context, _ *Env, req *Request) (bool, error) {
	return req.Caller.IsUser(), nil
}

func selfRecord(_ context.Context, _ *Env, req *Request) (bool, error) {
	return req.Caller.IsUserId(req.Record.GetId()), nil
}

// userContact: the user, a co-manager of some organisation, or a co-player of some team.
func userContact(ctx context.Context, env *Env, req *Request) (bool, error) {
	subject := req.Record.GetId()
	if !req.Caller.IsUser() {
		return false, nil
	}
	if req.Caller.Id == subject {
		return true, nil
	}
	for _, kind := range []model.Kind{model.KindManages, model.KindPlaysIn} {
		shared, err := sharesTarget(ctx, env.Graph.Reader(), kind, req.Caller.Id, subject)
		if err != nil || shared {
			return shared, err
		}
	}
	return false, nil
}

func sharesTarget(ctx context.Context, reader repo.IReader, kind model.Kind, a, b string) (bool, error) {
	mine, err := reader.Find(ctx, kind, repo.Where{"in": a})
	if err != nil || len(mine) == 0 {
		return false, err
	}
	targets := make([]string, 0, len(mine))
	for _, rec := range mine {
		targets = append(targets, rec.(model.Edge).To())
	}
	theirs, err := reader.Find(ctx, kind, repo.Where{"in": b, "out": targets})
	if err != nil {
		return false, err
	}
	return len(theirs) > 0, nil
}

func noParent(_ context.Context, _ *Env, req *Request) (bool, error) {
	return req.Record.(*model.Organisation).PartOf == "", nil
}

// managerOf reports whether the caller holds one of roles in the organisation's
// computed managers; with no roles any role counts.
func managerOf(ctx context.Context, env *Env, caller model.Caller, orgId string, roles ...model.Role) (bool, error) {
	if !caller.IsUser() || orgId == "" {
		return false, nil
	}
	managers, err := env.Graph.ManagersOf(ctx, orgId)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return graph.HasRole(managers, caller.Id, roles...), nil
}

func localManagerOf(ctx context.Context, env *Env, caller model.Caller, orgId string, roles ...model.Role) (bool, error) {
	if !caller.IsUser() {
		return false, nil
	}
	local, err := env.Graph.LocalManagers(ctx, orgId)
	if err != nil {
		return false, err
	}
	return graph.HasRole(local, caller.Id, roles...), nil
}

func parentGovernor(ctx context.Context, env *Env, req *Request) (bool, error) {
	parent := req.Record.(*model.Organisation).PartOf
	if parent == "" {
		return false, nil
	}
	return managerOf(ctx, env, req.Caller, parent, governing...)
}

func localGovernor(ctx context.Context, env *Env, req *Request) (bool, error) {
	return localManagerOf(ctx, env, req.Caller, req.Record.GetId(), governing...)
}

// reparentAllowed requires governing rights at the new parent when part_of changes.
func reparentAllowed(ctx context.Context, env *Env, req *Request) (bool, error) {
	after := req.Record.(*model.Organisation)
	if req.Before == nil || req.Before.(*model.Organisation).PartOf == after.PartOf || after.PartOf == "" {
		return true, nil
	}
	return managerOf(ctx, env, req.Caller, after.PartOf, governing...)
}

func rootGovernor(ctx context.Context, env *Env, req *Request) (bool, error) {
	org := req.Record.(*model.Organisation)
	if org.PartOf == "" {
		return false, nil
	}
	root, err := env.Graph.Root(ctx, org)
	if err != nil {
		return false, err
	}
	return localManagerOf(ctx, env, req.Caller, root.Id, governing...)
}

func teamPlayer(ctx context.Context, env *Env, req *Request) (bool, error) {
	if !req.Caller.IsUser() {
		return false, nil
	}
	return env.Graph.IsPlayer(ctx, req.Record.GetId(), req.Caller.Id)
}

// organiserManager checks the event's organiser, and on update the previous organiser too.
func organiserManager(roles ...model.Role) Predicate {
	return func(ctx context.Context, env *Env, req *Request) (bool, error) {
		ev := req.Record.(*model.Event)
		ok, err := managerOf(ctx, env, req.Caller, ev.Organiser, roles...)
		if err != nil || !ok {
			return false, err
		}
		if before, isEvent := req.Before.(*model.Event); isEvent && before.Organiser != ev.Organiser {
			return managerOf(ctx, env, req.Caller, before.Organiser, roles...)
		}
		return true, nil
	}
}

// tournamentOrganiser requires organising rights on the tournament's organiser
// when the event is placed under a tournament.
func tournamentOrganiser(ctx context.Context, env *Env, req *Request) (bool, error) {
	ev := req.Record.(*model.Event)
	if ev.Tournament == "" {
		return true, nil
	}
	if before, ok := req.Before.(*model.Event); ok && before.Tournament == ev.Tournament {
		return true, nil
	}
	parent, err := env.Graph.Event(ctx, ev.Tournament)
	if errors.Is(err, errs.ErrNotFound) {
		// existence is an invariant, reported by the enforcer
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return managerOf(ctx, env, req.Caller, parent.Organiser, organising...)
}

// bound is the record whose endpoints a predicate checks: the stored
// pre-image on update, since edge endpoints cannot move.
func bound(req *Request) model.Record {
	if req.Op == OpUpdate && req.Before != nil {
		return req.Before
	}
	return req.Record
}

func edgeSubject(_ context.Context, _ *Env, req *Request) (bool, error) {
	return req.Caller.IsUserId(bound(req).(model.Edge).From()), nil
}

func edgeOrgManager(roles ...model.Role) Predicate {
	return func(ctx context.Context, env *Env, req *Request) (bool, error) {
		return managerOf(ctx, env, req.Caller, bound(req).(model.Edge).To(), roles...)
	}
}

func edgeTeamPlayer(ctx context.Context, env *Env, req *Request) (bool, error) {
	if !req.Caller.IsUser() {
		return false, nil
	}
	return env.Graph.IsPlayer(ctx, bound(req).(model.Edge).To(), req.Caller.Id)
}

// invited holds when a pending invite exists for the caller and the edge's
// target, with the same role for Manages.
func invited(ctx context.Context, env *Env, req *Request) (bool, error) {
	invites, err := MatchingInvites(ctx, env.Graph, req.Caller.Id, req.Record)
	if err != nil {
		return false, err
	}
	return len(invites) > 0, nil
}

// MatchingInvites returns the invites that authorise creating edge for user.
func MatchingInvites(ctx context.Context, g *graph.Resolver, user string, edge model.Record) ([]*model.Invite, error) {
	switch e := edge.(type) {
	case *model.Manages:
		invites, err := g.PendingInvites(ctx, user, model.KindOrganisation, e.Out)
		if err != nil {
			return nil, err
		}
		return slices.DeleteFunc(invites, func(i *model.Invite) bool { return i.Role != e.Role }), nil
	case *model.PlaysIn:
		return g.PendingInvites(ctx, user, model.KindTeam, e.Out)
	}
	return nil, nil
}

func attendsActor(ctx context.Context, env *Env, req *Request) (bool, error) {
	a := bound(req).(*model.Attends)
	if !req.Caller.IsUser() {
		return false, nil
	}
	switch a.InKind {
	case model.KindUser:
		return a.In == req.Caller.Id, nil
	case model.KindTeam:
		return env.Graph.IsPlayer(ctx, a.In, req.Caller.Id)
	}
	return false, nil
}

func attendsOrganiser(roles ...model.Role) Predicate {
	return func(ctx context.Context, env *Env, req *Request) (bool, error) {
		a := bound(req).(*model.Attends)
		ev, err := env.Graph.Event(ctx, a.Out)
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return managerOf(ctx, env, req.Caller, ev.Organiser, roles...)
	}
}

func inviteOrigin(ctx context.Context, env *Env, req *Request) (bool, error) {
	inv := req.Record.(*model.Invite)
	if !req.Caller.IsUser() {
		return false, nil
	}
	if inv.Origin == req.Caller.Id {
		return true, nil
	}
	if !inv.OriginIsEmail() {
		return false, nil
	}
	u, err := env.Graph.User(ctx, req.Caller.Id)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Email == inv.Origin, nil
}

// inviteTarget: managers (with roles) of a target organisation, or players of a target team.
func inviteTarget(roles ...model.Role) Predicate {
	return func(ctx context.Context, env *Env, req *Request) (bool, error) {
		inv := req.Record.(*model.Invite)
		switch inv.TargetKind {
		case model.KindOrganisation:
			return managerOf(ctx, env, req.Caller, inv.Target, roles...)
		case model.KindTeam:
			if !req.Caller.IsUser() {
				return false, nil
			}
			return env.Graph.IsPlayer(ctx, inv.Target, req.Caller.Id)
		}
		return false, nil
	}
}

// CanSeePrivateManagers reports whether the caller may see non-public
// entries of the organisation's manager lists.
func CanSeePrivateManagers(ctx context.Context, env *Env, caller model.Caller, org *model.Organisation) (bool, error) {
	if caller.IsAdmin() {
		return true, nil
	}
	if !caller.IsUser() {
		return false, nil
	}
	managers, err := env.Graph.Managers(ctx, org)
	if err != nil {
		return false, err
	}
	return graph.HasRole(managers, caller.Id), nil
}
