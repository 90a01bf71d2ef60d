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
	"testing"
	"time"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/repo"
	"github.com/go-arcade/guild/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture:
//
//	acme (root)     olive owner
//	acme-eu         adam administrator, eve event_manager (private)
//	team reds       pat, quinn
//	event e1        organised by acme-eu, unpublished
//	event e2        organised by acme-eu, published
type fixture struct {
	store *repo.MemoryStore
	eval  *Evaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := repo.NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []model.Record{
		&model.User{BaseModel: model.BaseModel{Id: "olive"}, Name: "Olive Owner", Email: "olive@example.com"},
		&model.User{BaseModel: model.BaseModel{Id: "adam"}, Name: "Adam Admin", Email: "adam@example.com"},
		&model.User{BaseModel: model.BaseModel{Id: "eve"}, Name: "Eve Events", Email: "eve@example.com"},
		&model.User{BaseModel: model.BaseModel{Id: "pat"}, Name: "Pat Player", Email: "pat@example.com"},
		&model.User{BaseModel: model.BaseModel{Id: "quinn"}, Name: "Quinn Player", Email: "quinn@example.com"},
		&model.User{BaseModel: model.BaseModel{Id: "sam"}, Name: "Sam Stranger", Email: "sam@example.com"},
		&model.Organisation{BaseModel: model.BaseModel{Id: "acme"}, Name: "Acme", Tier: model.TierFree},
		&model.Organisation{BaseModel: model.BaseModel{Id: "acme-eu"}, Name: "Acme EU", Tier: model.TierFree, PartOf: "acme"},
		&model.Manages{BaseModel: model.BaseModel{Id: "m-olive"}, In: "olive", Out: "acme", Role: model.RoleOwner, Public: true},
		&model.Manages{BaseModel: model.BaseModel{Id: "m-adam"}, In: "adam", Out: "acme-eu", Role: model.RoleAdministrator, Public: true},
		&model.Manages{BaseModel: model.BaseModel{Id: "m-eve"}, In: "eve", Out: "acme-eu", Role: model.RoleEventManager},
		&model.Team{BaseModel: model.BaseModel{Id: "reds"}, Name: "Reds"},
		&model.PlaysIn{BaseModel: model.BaseModel{Id: "p-pat"}, In: "pat", Out: "reds"},
		&model.PlaysIn{BaseModel: model.BaseModel{Id: "p-quinn"}, In: "quinn", Out: "reds"},
		&model.Event{BaseModel: model.BaseModel{Id: "e1"}, Name: "Qualifier", Organiser: "acme-eu"},
		&model.Event{BaseModel: model.BaseModel{Id: "e2"}, Name: "Final", Organiser: "acme-eu", Discoverable: true, Published: true},
		&model.Attends{BaseModel: model.BaseModel{Id: "a1"}, In: "reds", InKind: model.KindTeam, Out: "e2", Players: []string{"pat", "quinn"}},
		&model.Log{BaseModel: model.BaseModel{Id: "l1"}, Record: "pat", RecordKind: model.KindUser, Event: model.LogCreate},
	}
	ctx := context.Background()
	require.NoError(t, s.Transaction(ctx, func(tx repo.ITx) error {
		for i, r := range recs {
			r.Base().CreatedAt = base.Add(time.Duration(i) * time.Second)
			if err := tx.Put(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}))
	return &fixture{store: s, eval: NewEvaluator(DefaultTable(), nil)}
}

func (f *fixture) get(t *testing.T, kind model.Kind, id string) model.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), kind, id)
	require.NoError(t, err)
	return rec
}

func (f *fixture) authorize(req *Request) ([]string, error) {
	env := &Env{Graph: graph.NewResolver(f.store)}
	return f.eval.Authorize(context.Background(), env, req)
}

func TestOrganisationUpdateNeedsLocalGovernor(t *testing.T) {
	f := newFixture(t)
	eu := f.get(t, model.KindOrganisation, "acme-eu")
	renamed := eu.Clone().(*model.Organisation)
	renamed.Name = "Acme Europe"

	_, err := f.authorize(&Request{Caller: model.UserCaller("adam"), Op: OpUpdate, Record: renamed, Before: eu})
	assert.NoError(t, err)

	_, err = f.authorize(&Request{Caller: model.UserCaller("olive"), Op: OpUpdate, Record: renamed, Before: eu})
	assert.ErrorIs(t, err, errs.ErrForbidden, "inherited owner is not a local governor")

	_, err = f.authorize(&Request{Caller: model.UserCaller("eve"), Op: OpUpdate, Record: renamed, Before: eu})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.authorize(&Request{Caller: model.AdminCaller("root"), Op: OpUpdate, Record: renamed, Before: eu})
	assert.NoError(t, err)
}

func TestOrganisationDelete(t *testing.T) {
	f := newFixture(t)
	eu := f.get(t, model.KindOrganisation, "acme-eu")
	acme := f.get(t, model.KindOrganisation, "acme")

	_, err := f.authorize(&Request{Caller: model.UserCaller("adam"), Op: OpDelete, Record: eu})
	assert.ErrorIs(t, err, errs.ErrForbidden, "child organisation needs a governor at the root")

	_, err = f.authorize(&Request{Caller: model.UserCaller("olive"), Op: OpDelete, Record: eu})
	assert.NoError(t, err)

	_, err = f.authorize(&Request{Caller: model.UserCaller("olive"), Op: OpDelete, Record: acme})
	assert.NoError(t, err)
}

func TestOrganisationCreate(t *testing.T) {
	f := newFixture(t)
	root := &model.Organisation{BaseModel: model.BaseModel{Id: "new"}, Name: "New", Tier: model.TierFree}
	child := &model.Organisation{BaseModel: model.BaseModel{Id: "new-eu"}, Name: "New EU", Tier: model.TierFree, PartOf: "acme-eu"}

	_, err := f.authorize(&Request{Caller: model.UserCaller("sam"), Op: OpCreate, Record: root})
	assert.NoError(t, err)
	_, err = f.authorize(&Request{Caller: model.Anonymous(), Op: OpCreate, Record: root})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.authorize(&Request{Caller: model.UserCaller("olive"), Op: OpCreate, Record: child})
	assert.NoError(t, err, "inherited owner may create below")
	_, err = f.authorize(&Request{Caller: model.UserCaller("eve"), Op: OpCreate, Record: child})
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestEventVisibility(t *testing.T) {
	f := newFixture(t)
	hidden := f.get(t, model.KindEvent, "e1")
	public := f.get(t, model.KindEvent, "e2")

	_, err := f.authorize(&Request{Caller: model.UserCaller("sam"), Op: OpSelect, Record: hidden})
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.ErrorIs(t, err, errs.ErrNotVisible)

	_, err = f.authorize(&Request{Caller: model.UserCaller("eve"), Op: OpSelect, Record: hidden})
	assert.NoError(t, err)
	_, err = f.authorize(&Request{Caller: model.UserCaller("olive"), Op: OpSelect, Record: hidden})
	assert.NoError(t, err, "inherited managers see unpublished events")

	_, err = f.authorize(&Request{Caller: model.Anonymous(), Op: OpSelect, Record: public})
	assert.NoError(t, err)

	moved := hidden.Clone().(*model.Event)
	moved.Name = "Renamed"
	_, err = f.authorize(&Request{Caller: model.UserCaller("sam"), Op: OpUpdate, Record: moved, Before: hidden})
	assert.ErrorIs(t, err, errs.ErrNotVisible, "write to an invisible record looks like not found")

	renamed := public.Clone().(*model.Event)
	renamed.Name = "Grand Final"
	_, err = f.authorize(&Request{Caller: model.UserCaller("sam"), Op: OpUpdate, Record: renamed, Before: public})
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.authorize(&Request{Caller: model.UserCaller("eve"), Op: OpUpdate, Record: renamed, Before: public})
	assert.NoError(t, err)
}

func TestUserContactFields(t *testing.T) {
	f := newFixture(t)
	quinn := f.get(t, model.KindUser, "quinn")
	adam := f.get(t, model.KindUser, "adam")

	tests := []struct {
		name      string
		caller    model.Caller
		record    model.Record
		wantEmail bool
	}{
		{"self", model.UserCaller("quinn"), quinn, true},
		{"co-player", model.UserCaller("pat"), quinn, true},
		{"stranger", model.UserCaller("sam"), quinn, false},
		{"anonymous", model.Anonymous(), quinn, false},
		{"co-manager", model.UserCaller("eve"), adam, true},
		{"manager of another organisation", model.UserCaller("olive"), adam, false},
		{"admin", model.AdminCaller("root"), quinn, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := f.authorize(&Request{Caller: tt.caller, Op: OpSelect, Record: tt.record})
			require.NoError(t, err)
			assert.Contains(t, fields, "name")
			assert.Equal(t, tt.wantEmail, contains(fields, "email"))
			assert.Equal(t, tt.wantEmail, contains(fields, "birthdate"))
		})
	}
}

func TestRequestedFieldsAreIntersected(t *testing.T) {
	f := newFixture(t)
	fields, err := f.authorize(&Request{
		Caller: model.UserCaller("sam"), Op: OpSelect,
		Record: f.get(t, model.KindUser, "quinn"),
		Fields: []string{"name", "email", "nonexistent"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, fields)

	fields, err = f.authorize(&Request{Caller: model.Anonymous(), Op: OpSelect, Record: f.get(t, model.KindTeam, "reds")})
	require.NoError(t, err)
	assert.Contains(t, fields, "players", "computed fields are listed")
}

func TestManagesCreateNeedsInvite(t *testing.T) {
	f := newFixture(t)
	edge := &model.Manages{BaseModel: model.BaseModel{Id: "m-new"}, In: "sam", Out: "acme", Role: model.RoleAdministrator}
	req := &Request{Caller: model.UserCaller("sam"), Op: OpCreate, Record: edge}

	_, err := f.authorize(req)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	ctx := context.Background()
	require.NoError(t, f.store.Transaction(ctx, func(tx repo.ITx) error {
		return tx.Put(ctx, &model.Invite{BaseModel: model.BaseModel{Id: "i1"}, Origin: "sam@example.com",
			Target: "acme", TargetKind: model.KindOrganisation, Role: model.RoleEventViewer, InvitedBy: "olive"})
	}))
	_, err = f.authorize(req)
	assert.ErrorIs(t, err, errs.ErrForbidden, "invite for another role")

	require.NoError(t, f.store.Transaction(ctx, func(tx repo.ITx) error {
		return tx.Put(ctx, &model.Invite{BaseModel: model.BaseModel{Id: "i2"}, Origin: "sam@example.com",
			Target: "acme", TargetKind: model.KindOrganisation, Role: model.RoleAdministrator, InvitedBy: "olive"})
	}))
	_, err = f.authorize(req)
	assert.NoError(t, err, "invite matched through the user's email")

	_, err = f.authorize(&Request{Caller: model.UserCaller("pat"), Op: OpCreate, Record: edge})
	assert.ErrorIs(t, err, errs.ErrForbidden, "only the invited user may accept")
}

func TestManagesUpdate(t *testing.T) {
	f := newFixture(t)
	before := f.get(t, model.KindManages, "m-eve")

	public := before.Clone().(*model.Manages)
	public.Public = true
	_, err := f.authorize(&Request{Caller: model.UserCaller("eve"), Op: OpUpdate, Record: public, Before: before})
	assert.NoError(t, err)

	promoted := before.Clone().(*model.Manages)
	promoted.Role = model.RoleOwner
	_, err = f.authorize(&Request{Caller: model.UserCaller("eve"), Op: OpUpdate, Record: promoted, Before: before})
	assert.ErrorIs(t, err, errs.ErrForbidden, "subjects may not change their own role")

	_, err = f.authorize(&Request{Caller: model.UserCaller("olive"), Op: OpUpdate, Record: promoted, Before: before})
	assert.NoError(t, err, "governor above the organisation")

	_, err = f.authorize(&Request{Caller: model.UserCaller("sam"), Op: OpDelete, Record: before})
	assert.ErrorIs(t, err, errs.ErrNotVisible, "private edge")
}

func TestEdgeEndpointsComeFromStoredRecord(t *testing.T) {
	f := newFixture(t)
	before := f.get(t, model.KindManages, "m-eve")
	hijacked := before.Clone().(*model.Manages)
	hijacked.In = "sam"

	_, err := f.authorize(&Request{Caller: model.UserCaller("sam"), Op: OpUpdate, Record: hijacked, Before: before})
	assert.ErrorIs(t, err, errs.ErrNotVisible, "rewriting the subject does not make the edge the caller's")

	attends := f.get(t, model.KindAttends, "a1")
	solo := attends.Clone().(*model.Attends)
	solo.In, solo.InKind = "sam", model.KindUser
	_, err = f.authorize(&Request{Caller: model.UserCaller("sam"), Op: OpUpdate, Record: solo, Before: attends})
	assert.ErrorIs(t, err, errs.ErrNotVisible)
}

func TestAttendsNeedVisibleEvent(t *testing.T) {
	f := newFixture(t)
	draft := &model.Attends{BaseModel: model.BaseModel{Id: "a2"}, In: "reds", InKind: model.KindTeam, Out: "e1", Players: []string{"pat"}}

	_, err := f.authorize(&Request{Caller: model.UserCaller("pat"), Op: OpCreate, Record: draft})
	require.ErrorIs(t, err, errs.ErrNotVisible, "the unpublished event stays hidden from players")
	e, _ := errs.As(err)
	assert.Equal(t, model.KindEvent, e.Kind)

	_, err = f.authorize(&Request{Caller: model.UserCaller("eve"), Op: OpCreate, Record: draft})
	assert.NoError(t, err, "organisers see their own drafts")

	ghost := &model.Attends{BaseModel: model.BaseModel{Id: "a3"}, In: "pat", InKind: model.KindUser, Out: "ghost", Players: []string{"pat"}}
	_, err = f.authorize(&Request{Caller: model.UserCaller("pat"), Op: OpCreate, Record: ghost})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	open := &model.Attends{BaseModel: model.BaseModel{Id: "a4"}, In: "pat", InKind: model.KindUser, Out: "e2", Players: []string{"pat"}}
	_, err = f.authorize(&Request{Caller: model.UserCaller("pat"), Op: OpCreate, Record: open})
	assert.NoError(t, err)
}

func TestAttendsConfirmedGuard(t *testing.T) {
	f := newFixture(t)
	before := f.get(t, model.KindAttends, "a1")
	confirmed := before.Clone().(*model.Attends)
	confirmed.Confirmed = true

	_, err := f.authorize(&Request{Caller: model.UserCaller("pat"), Op: OpUpdate, Record: confirmed, Before: before})
	require.ErrorIs(t, err, errs.ErrForbidden)
	e, _ := errs.As(err)
	assert.Equal(t, "confirmed", e.Field)

	_, err = f.authorize(&Request{Caller: model.UserCaller("eve"), Op: OpUpdate, Record: confirmed, Before: before})
	assert.NoError(t, err)

	narrowed := before.Clone().(*model.Attends)
	narrowed.Players = []string{"pat"}
	_, err = f.authorize(&Request{Caller: model.UserCaller("pat"), Op: OpUpdate, Record: narrowed, Before: before})
	assert.NoError(t, err)
}

func TestLogVisibility(t *testing.T) {
	f := newFixture(t)
	entry := f.get(t, model.KindLog, "l1")

	_, err := f.authorize(&Request{Caller: model.UserCaller("pat"), Op: OpSelect, Record: entry})
	assert.NoError(t, err)
	_, err = f.authorize(&Request{Caller: model.UserCaller("quinn"), Op: OpSelect, Record: entry})
	assert.ErrorIs(t, err, errs.ErrNotVisible)
	_, err = f.authorize(&Request{Caller: model.AdminCaller("root"), Op: OpSelect, Record: entry})
	assert.NoError(t, err)

	_, err = f.authorize(&Request{Caller: model.AdminCaller("root"), Op: OpDelete, Record: entry})
	assert.ErrorIs(t, err, errs.ErrForbidden, "logs are append-only even for admins")
	_, err = f.authorize(&Request{Caller: model.UserCaller("pat"), Op: OpDelete, Record: entry})
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestAdminRecordsOnlyForAdmins(t *testing.T) {
	f := newFixture(t)
	admin := &model.Admin{BaseModel: model.BaseModel{Id: "root"}, Name: "Root Admin", Email: "root@example.com"}

	_, err := f.authorize(&Request{Caller: model.UserCaller("olive"), Op: OpSelect, Record: admin})
	assert.ErrorIs(t, err, errs.ErrNotVisible)
	_, err = f.authorize(&Request{Caller: model.AdminCaller("other"), Op: OpUpdate, Record: admin, Before: admin})
	assert.NoError(t, err)
}

func TestCanSeePrivateManagers(t *testing.T) {
	f := newFixture(t)
	eu := f.get(t, model.KindOrganisation, "acme-eu").(*model.Organisation)
	env := &Env{Graph: graph.NewResolver(f.store)}
	ctx := context.Background()

	for caller, want := range map[model.Caller]bool{
		model.UserCaller("olive"): true,
		model.UserCaller("eve"):   true,
		model.UserCaller("sam"):   false,
		model.Anonymous():         false,
		model.AdminCaller("root"): true,
	} {
		got, err := CanSeePrivateManagers(ctx, env, caller, eu)
		require.NoError(t, err)
		assert.Equal(t, want, got, caller.String())
	}
}

func TestDecisionMetrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	f.eval = NewEvaluator(DefaultTable(), metrics.NewEngineMetrics("test", reg))

	_, _ = f.authorize(&Request{Caller: model.UserCaller("sam"), Op: OpSelect, Record: f.get(t, model.KindEvent, "e1")})
	_, _ = f.authorize(&Request{Caller: model.UserCaller("sam"), Op: OpSelect, Record: f.get(t, model.KindEvent, "e2")})

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "test_policy_decisions_total"))
}

func TestCompileExpr(t *testing.T) {
	_, err := CompileExpr("record.")
	assert.Error(t, err)

	pred, err := CompileExpr(`record.tier == "free" && caller.scope == "user"`)
	require.NoError(t, err)
	ok, err := pred(context.Background(), nil, &Request{
		Caller: model.UserCaller("u1"),
		Record: &model.Organisation{Tier: model.TierFree},
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func contains(fields []string, f string) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}
