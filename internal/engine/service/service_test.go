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

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arcade/guild/internal/engine/config"
	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/notify"
	"github.com/go-arcade/guild/internal/engine/registration"
	"github.com/go-arcade/guild/internal/engine/repo"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type capture struct {
	mu     sync.Mutex
	events []notify.InviteEvent
}

func (c *capture) Publish(_ context.Context, ev notify.InviteEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capture) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Topic)
	}
	return out
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *repo.MemoryStore
	pub   *capture
	e     *Engine
}

func newFixture(t *testing.T, conf config.Engine) *fixture {
	store := repo.NewMemoryStore()
	pub := &capture{}
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store,
		pub:   pub,
		e:     NewEngine(store, conf, nil, pub, WithClock(func() time.Time { return now })),
	}
}

func (f *fixture) user(id string) {
	f.t.Helper()
	name := fmt.Sprintf("User %s", id)
	_, err := f.e.Create(f.ctx, model.UserCaller(id), &model.User{BaseModel: model.BaseModel{Id: id}, Name: name, Email: id + "@example.com"})
	require.NoError(f.t, err)
}

func (f *fixture) org(owner, name, parent string) string {
	f.t.Helper()
	rec, err := f.e.Create(f.ctx, model.UserCaller(owner), &model.Organisation{Name: name, Email: "hello@acme.example", Tier: model.TierFree, PartOf: parent})
	require.NoError(f.t, err)
	return rec.GetId()
}

func (f *fixture) invite(by, origin, target string, kind model.Kind, role model.Role) string {
	f.t.Helper()
	rec, err := f.e.Create(f.ctx, model.UserCaller(by), &model.Invite{Origin: origin, Target: target, TargetKind: kind, Role: role, InvitedBy: by})
	require.NoError(f.t, err)
	return rec.GetId()
}

func (f *fixture) manages(user, org string) *model.Manages {
	f.t.Helper()
	recs, err := f.store.Find(f.ctx, model.KindManages, repo.Where{"in": user, "out": org})
	require.NoError(f.t, err)
	require.Len(f.t, recs, 1)
	return recs[0].(*model.Manages)
}

// seed writes records directly, skipping every check.
func (f *fixture) seed(recs ...model.Record) {
	f.t.Helper()
	require.NoError(f.t, f.store.Transaction(f.ctx, func(tx repo.ITx) error {
		for i, r := range recs {
			r.Base().CreatedAt = now.Add(-time.Hour + time.Duration(i)*time.Second)
			if err := tx.Put(f.ctx, r); err != nil {
				return err
			}
		}
		return nil
	}))
}

func managerUsers(t *testing.T, v View, field string) map[string]string {
	t.Helper()
	list, ok := v[field].([]model.Manager)
	require.True(t, ok, "%s is a manager list", field)
	out := make(map[string]string, len(list))
	for _, m := range list {
		out[m.User+"@"+m.Org] = string(m.Role)
	}
	return out
}

func invariantOf(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Invariant
	}
	return ""
}

func fieldOf(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

func TestManagersAreInherited(t *testing.T) {
	f := newFixture(t, config.Engine{})
	f.user("olive")
	f.user("sam")
	acme := f.org("olive", "Acme", "")
	eu := f.org("olive", "Acme EU", acme)

	v, err := f.e.Get(f.ctx, model.Anonymous(), model.KindOrganisation, eu, []string{"name", "managers", "manager_roles"})
	require.NoError(t, err)
	assert.Equal(t, "Acme EU", v["name"])
	assert.Equal(t, map[string]string{"olive@" + acme: "owner", "olive@" + eu: "owner"}, managerUsers(t, v, "managers"))
	assert.Equal(t, map[string]string{"olive@" + eu: "owner"}, managerUsers(t, v, "manager_roles"))
	assert.NotContains(t, v, "email", "fields outside the request are left out")
}

func TestPrivateManagersAreFiltered(t *testing.T) {
	f := newFixture(t, config.Engine{})
	f.user("olive")
	f.user("sam")
	f.user("eve")
	acme := f.org("olive", "Acme", "")
	inv := f.invite("olive", "sam@example.com", acme, model.KindOrganisation, model.RoleAdministrator)

	_, err := f.e.AcceptInvite(f.ctx, model.UserCaller("sam"), inv)
	require.NoError(t, err)
	assert.False(t, f.manages("sam", acme).Public, "accepted memberships start private")

	for caller, want := range map[string][]string{
		"":    {"olive"},
		"eve": {"olive"},
		"sam": {"olive", "sam"},
	} {
		c := model.Anonymous()
		if caller != "" {
			c = model.UserCaller(caller)
		}
		v, err := f.e.Get(f.ctx, c, model.KindOrganisation, acme, []string{"managers"})
		require.NoError(t, err)
		var users []string
		for _, m := range v["managers"].([]model.Manager) {
			users = append(users, m.User)
		}
		assert.ElementsMatch(t, want, users, "caller %q", caller)
	}
}

func TestInviteConsumption(t *testing.T) {
	f := newFixture(t, config.Engine{})
	f.user("olive")
	f.user("sam")
	acme := f.org("olive", "Acme", "")

	_, err := f.e.Create(f.ctx, model.UserCaller("sam"), &model.Manages{In: "sam", Out: acme, Role: model.RoleOwner})
	assert.ErrorIs(t, err, errs.ErrForbidden, "no invite, no membership")

	byEmail := f.invite("olive", "sam@example.com", acme, model.KindOrganisation, model.RoleEventViewer)
	byId := f.invite("olive", "sam", acme, model.KindOrganisation, model.RoleEventViewer)

	edge, err := f.e.AcceptInvite(f.ctx, model.UserCaller("sam"), byEmail)
	require.NoError(t, err)
	assert.Equal(t, model.RoleEventViewer, edge.(*model.Manages).Role)
	assert.Equal(t, 0, f.store.Len(model.KindInvite), "every pending invite to the target is consumed")

	assert.Equal(t, []string{notify.TopicInviteCreated, notify.TopicInviteCreated, notify.TopicInviteDeleted, notify.TopicInviteDeleted}, f.pub.topics())
	for _, ev := range f.pub.events[2:] {
		assert.Equal(t, edge.GetId(), ev.Cause)
	}

	_, err = f.e.AcceptInvite(f.ctx, model.UserCaller("sam"), byId)
	assert.ErrorIs(t, err, errs.ErrNotFound, "an invite cannot be reused")
}

func TestOwnerRetention(t *testing.T) {
	f := newFixture(t, config.Engine{})
	f.user("olive")
	f.user("sam")
	acme := f.org("olive", "Acme", "")

	err := f.e.Delete(f.ctx, model.UserCaller("olive"), model.KindManages, f.manages("olive", acme).Id)
	assert.ErrorIs(t, err, errs.ErrInvariant)
	assert.Equal(t, errs.InvariantOwnerRetention, invariantOf(err))

	inv := f.invite("olive", "sam", acme, model.KindOrganisation, model.RoleOwner)
	_, err = f.e.AcceptInvite(f.ctx, model.UserCaller("sam"), inv)
	require.NoError(t, err)
	require.NoError(t, f.e.Delete(f.ctx, model.UserCaller("olive"), model.KindManages, f.manages("olive", acme).Id))

	err = f.e.Delete(f.ctx, model.UserCaller("sam"), model.KindManages, f.manages("sam", acme).Id)
	assert.Equal(t, errs.InvariantOwnerRetention, invariantOf(err))
}

// registrationFixture seeds team t1 with players p1..p5 and a published
// event of acme that takes 2 to 4 players.
func registrationFixture(t *testing.T) (*fixture, string) {
	f := newFixture(t, config.Engine{})
	recs := []model.Record{
		&model.Organisation{BaseModel: model.BaseModel{Id: "acme"}, Name: "Acme", Email: "hello@acme.example", Tier: model.TierFree},
		&model.Team{BaseModel: model.BaseModel{Id: "t1"}, Name: "Team One"},
		&model.Event{BaseModel: model.BaseModel{Id: "cup"}, Name: "Cup", Organiser: "acme", Discoverable: true, Published: true,
			Options: model.EventOptions{MinPoolSize: model.Int(2), MaxPoolSize: model.Int(4)}},
	}
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("p%d", i)
		recs = append(recs,
			&model.User{BaseModel: model.BaseModel{Id: id}, Name: "Player " + id, Email: id + "@example.com"},
			&model.PlaysIn{BaseModel: model.BaseModel{Id: id + "@t1"}, In: id, Out: "t1"},
		)
	}
	f.seed(recs...)
	return f, "cup"
}

func TestRegistrationPoolBoundary(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("%d players", n), func(t *testing.T) {
			f, cup := registrationFixture(t)
			var players []string
			for i := 1; i <= n; i++ {
				players = append(players, fmt.Sprintf("p%d", i))
			}
			rec, err := f.e.Create(f.ctx, model.UserCaller("p1"), &model.Attends{In: "t1", InKind: model.KindTeam, Out: cup, Players: players})
			switch {
			case n < 2:
				assert.ErrorIs(t, err, errs.ErrRegistration)
				assert.Equal(t, "min_pool_size", fieldOf(err))
			case n > 4:
				assert.ErrorIs(t, err, errs.ErrRegistration)
				assert.Equal(t, "max_pool_size", fieldOf(err))
			default:
				require.NoError(t, err)
				assert.Equal(t, players, rec.(*model.Attends).Players)
				assert.True(t, rec.(*model.Attends).Confirmed)
			}
		})
	}
}

func TestRegistrationRosterIsNormalised(t *testing.T) {
	f, cup := registrationFixture(t)
	p1 := model.UserCaller("p1")

	rec, err := f.e.Create(f.ctx, p1, &model.Attends{In: "t1", InKind: model.KindTeam, Out: cup, Players: []string{"p2", "p1", "p2", "stranger"}})
	require.NoError(t, err)
	a := rec.(*model.Attends)
	assert.Equal(t, []string{"p2", "p1"}, a.Players)

	again, err := f.e.Update(f.ctx, p1, a)
	require.NoError(t, err)
	assert.Equal(t, a.Players, again.(*model.Attends).Players)

	a.Confirmed = false
	_, err = f.e.Update(f.ctx, p1, a)
	assert.ErrorIs(t, err, errs.ErrForbidden, "players cannot approve themselves")
}

func TestEligibilityReport(t *testing.T) {
	f, cup := registrationFixture(t)

	report, err := f.e.EligibilityReport(f.ctx, model.Anonymous(), model.KindUser, "p1", cup)
	require.NoError(t, err)
	assert.False(t, report.Eligible)
	require.Len(t, report.Reasons, 1)
	assert.Equal(t, registration.ReasonTooFewPlayers, report.Reasons[0].Code)

	report, err = f.e.EligibilityReport(f.ctx, model.Anonymous(), model.KindTeam, "t1", cup)
	require.NoError(t, err)
	assert.True(t, report.Eligible, "a roster over the pool bound can be narrowed")
	require.Len(t, report.Reasons, 1)
	assert.Equal(t, registration.ReasonTooManyPlayers, report.Reasons[0].Code)

	_, err = f.e.EligibilityReport(f.ctx, model.Anonymous(), model.KindTeam, "ghost", cup)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.e.EligibilityReport(f.ctx, model.Anonymous(), model.KindOrganisation, "acme", cup)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestHiddenEventsLookMissing(t *testing.T) {
	f := newFixture(t, config.Engine{})
	f.user("olive")
	f.user("sam")
	acme := f.org("olive", "Acme", "")

	public, err := f.e.Create(f.ctx, model.UserCaller("olive"), &model.Event{Name: "Open", Organiser: acme, Discoverable: true, Published: true})
	require.NoError(t, err)
	draft, err := f.e.Create(f.ctx, model.UserCaller("olive"), &model.Event{Name: "Draft", Organiser: acme})
	require.NoError(t, err)

	_, hidden := f.e.Get(f.ctx, model.UserCaller("sam"), model.KindEvent, draft.GetId(), nil)
	_, missing := f.e.Get(f.ctx, model.UserCaller("sam"), model.KindEvent, "nope", nil)
	assert.ErrorIs(t, hidden, errs.ErrNotFound)
	assert.ErrorIs(t, missing, errs.ErrNotFound)

	views, err := f.e.List(f.ctx, model.Anonymous(), model.KindEvent, nil, []string{"name"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, View{"name": "Open"}, views[0])

	views, err = f.e.List(f.ctx, model.UserCaller("olive"), model.KindEvent, repo.Where{"organiser": acme}, []string{"id"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []View{{"id": public.GetId()}, {"id": draft.GetId()}}, views)
}

func TestRegistrationForHiddenEventLooksMissing(t *testing.T) {
	f := newFixture(t, config.Engine{})
	f.user("olive")
	f.user("sam")
	acme := f.org("olive", "Acme", "")
	sam := model.UserCaller("sam")

	public, err := f.e.Create(f.ctx, model.UserCaller("olive"), &model.Event{Name: "Open", Organiser: acme, Discoverable: true, Published: true})
	require.NoError(t, err)
	draft, err := f.e.Create(f.ctx, model.UserCaller("olive"), &model.Event{Name: "Draft", Organiser: acme})
	require.NoError(t, err)

	_, hidden := f.e.Create(f.ctx, sam, &model.Attends{In: "sam", InKind: model.KindUser, Out: draft.GetId()})
	_, missing := f.e.Create(f.ctx, sam, &model.Attends{In: "sam", InKind: model.KindUser, Out: "nope"})
	assert.ErrorIs(t, hidden, errs.ErrNotFound)
	assert.ErrorIs(t, missing, errs.ErrNotFound)
	assert.Equal(t, errs.CodeOf(missing), errs.CodeOf(hidden), "a hidden event answers like a missing one")

	stored, err := f.store.Find(f.ctx, model.KindAttends, repo.Where{"out": draft.GetId()})
	require.NoError(t, err)
	assert.Empty(t, stored)

	rec, err := f.e.Create(f.ctx, sam, &model.Attends{In: "sam", InKind: model.KindUser, Out: public.GetId()})
	require.NoError(t, err)
	assert.Equal(t, []string{"sam"}, rec.(*model.Attends).Players)
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t, config.Engine{Watch: map[string][]string{"organisation": {"name"}}})
	f.user("olive")
	acme := f.org("olive", "Acme", "")

	rec, err := f.store.Get(f.ctx, model.KindOrganisation, acme)
	require.NoError(t, err)
	org := rec.(*model.Organisation)
	org.Description = "unwatched"
	_, err = f.e.Update(f.ctx, model.UserCaller("olive"), org)
	require.NoError(t, err)
	org.Name = "Acme Corp"
	_, err = f.e.Update(f.ctx, model.UserCaller("olive"), org)
	require.NoError(t, err)

	logs, err := f.e.Logs(f.ctx, model.AdminCaller("root"), acme)
	require.NoError(t, err)
	var events []model.LogEvent
	for _, l := range logs {
		events = append(events, l.Event)
		switch l.Event {
		case model.LogCreate:
			assert.Nil(t, l.Change)
		case model.LogUpdate:
			require.NotNil(t, l.Change)
			assert.Equal(t, "name", l.Change.Field)
			assert.Equal(t, model.LogValue{Before: "Acme", After: "Acme Corp"}, l.Change.Value)
		}
	}
	assert.ElementsMatch(t, []model.LogEvent{model.LogCreate, model.LogUpdate}, events)

	logs, err = f.e.Logs(f.ctx, model.UserCaller("olive"), acme)
	require.NoError(t, err)
	assert.Empty(t, logs, "only admins read organisation history")

	logs, err = f.e.Logs(f.ctx, model.UserCaller("olive"), "olive")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.LogCreate, logs[0].Event)
}

func TestEventDeleteCascades(t *testing.T) {
	f := newFixture(t, config.Engine{})
	f.user("olive")
	acme := f.org("olive", "Acme", "")
	olive := model.UserCaller("olive")

	cup, err := f.e.Create(f.ctx, olive, &model.Event{Name: "Cup", Organiser: acme, Discoverable: true, Published: true})
	require.NoError(t, err)
	round, err := f.e.Create(f.ctx, olive, &model.Event{Name: "Round 1", Organiser: acme, Tournament: cup.GetId()})
	require.NoError(t, err)
	_, err = f.e.Create(f.ctx, olive, &model.Attends{In: "olive", InKind: model.KindUser, Out: cup.GetId()})
	require.NoError(t, err)

	require.NoError(t, f.e.Delete(f.ctx, olive, model.KindEvent, cup.GetId()))
	assert.Equal(t, 0, f.store.Len(model.KindEvent))
	assert.Equal(t, 0, f.store.Len(model.KindAttends))

	logs, err := f.e.Logs(f.ctx, model.AdminCaller("root"), round.GetId())
	require.NoError(t, err)
	require.Len(t, logs, 2)
	deleted := logs[0]
	if deleted.Event != model.LogDelete {
		deleted = logs[1]
	}
	assert.Equal(t, model.LogDelete, deleted.Event)
	assert.Equal(t, true, deleted.Details["cascade"])
	assert.Equal(t, cup.GetId(), deleted.Details["cause"])
}

func TestFailedMutationLeavesNoTrace(t *testing.T) {
	f := newFixture(t, config.Engine{})
	f.user("olive")
	before := f.store.Len(model.KindLog)

	_, err := f.e.Create(f.ctx, model.UserCaller("olive"), &model.Organisation{Name: "Acme", Email: "not-an-email", Tier: model.TierFree})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "email", fieldOf(err))
	assert.Equal(t, 0, f.store.Len(model.KindOrganisation))
	assert.Equal(t, 0, f.store.Len(model.KindManages))
	assert.Equal(t, before, f.store.Len(model.KindLog))
}
