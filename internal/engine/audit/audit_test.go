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

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/invariant"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/repo"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sink struct {
	recs []model.Record
	err  error
}

func (s *sink) Put(_ context.Context, rec model.Record) error {
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func olive() *model.User {
	return &model.User{BaseModel: model.BaseModel{Id: "olive"}, Name: "Olive Owner", Email: "olive@example.com"}
}

func TestRecordUpdateLogsWatchedFields(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(nil, WithClock(func() time.Time { return now }))
	before := olive()
	after := before.Clone().(*model.User)
	after.Name = "Olive Renamed"
	after.UpdatedAt = now

	w := &sink{}
	entries, err := r.RecordChange(ctx, w, model.LogUpdate, before, after, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, w.recs, 1)

	e := entries[0]
	assert.Equal(t, "olive", e.Record)
	assert.Equal(t, model.KindUser, e.RecordKind)
	assert.Equal(t, model.LogUpdate, e.Event)
	assert.Equal(t, now, e.CreatedAt)
	assert.Len(t, e.Id, 26, "log ids are ULIDs")
	require.NotNil(t, e.Change)
	assert.Equal(t, "name", e.Change.Field)
	assert.Equal(t, "Olive Owner", e.Change.Value.Before)
	assert.Equal(t, "Olive Renamed", e.Change.Value.After)
	assert.Nil(t, e.Details)
}

func TestRecordUpdateIgnoresUnwatchedFields(t *testing.T) {
	r := NewRecorder(DefaultWatchList().Merge(map[string][]string{"user": {"email"}}))
	before := olive()
	after := before.Clone().(*model.User)
	after.Name = "Olive Renamed"

	entries, err := r.RecordChange(context.Background(), &sink{}, model.LogUpdate, before, after, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordUpdateComparesNestedValues(t *testing.T) {
	r := NewRecorder(nil)
	before := &model.Event{BaseModel: model.BaseModel{Id: "e1"}, Name: "Cup", Organiser: "acme", Options: model.EventOptions{MinAge: model.Int(16)}}

	same := before.Clone().(*model.Event)
	entries, err := r.RecordChange(context.Background(), &sink{}, model.LogUpdate, before, same, nil)
	require.NoError(t, err)
	assert.Empty(t, entries, "equal option pointers are not a change")

	changed := before.Clone().(*model.Event)
	changed.Options.MinAge = model.Int(18)
	changed.Published = true
	entries, err = r.RecordChange(context.Background(), &sink{}, model.LogUpdate, before, changed, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "options", entries[0].Change.Field)
	assert.Equal(t, "published", entries[1].Change.Field)
}

func TestRecordCreateAndDelete(t *testing.T) {
	r := NewRecorder(nil)
	for _, ev := range []model.LogEvent{model.LogCreate, model.LogDelete} {
		var before, after model.Record
		if ev == model.LogCreate {
			after = olive()
		} else {
			before = olive()
		}
		entries, err := r.RecordChange(context.Background(), &sink{}, ev, before, after, map[string]any{"cascade": true})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].Change)
		assert.Equal(t, true, entries[0].Details["cascade"])
	}

	entries, err := r.RecordChange(context.Background(), &sink{}, model.LogCreate, nil, &model.Log{}, nil)
	require.NoError(t, err)
	assert.Empty(t, entries, "log entries are not logged")
}

func TestRecordFailsWithWriter(t *testing.T) {
	_, err := NewRecorder(nil).RecordChange(context.Background(), &sink{err: errors.New("disk full")}, model.LogCreate, nil, olive(), nil)
	assert.ErrorContains(t, err, "disk full")
}

func TestWatchList(t *testing.T) {
	w := DefaultWatchList().Merge(map[string][]string{"team": {}, "plays_in": {"out", "in", "out"}})
	assert.Empty(t, w.Fields(model.KindTeam))
	assert.Equal(t, []string{"in", "out"}, w.Fields(model.KindPlaysIn))
	assert.NotContains(t, w.Kinds(), model.KindTeam)
	assert.Contains(t, DefaultWatchList().Fields(model.KindAttends), "players")
}

func TestRecorderAsEnforcerHook(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	require.NoError(t, s.Transaction(ctx, func(tx repo.ITx) error {
		return tx.Put(ctx, olive())
	}))

	e := invariant.NewEnforcer(nil, invariant.WithHook(NewRecorder(nil).Apply))
	acme := &model.Organisation{BaseModel: model.BaseModel{Id: "acme"}, Name: "Acme", Email: "hi@acme.test", Tier: model.TierFree}
	require.NoError(t, s.Transaction(ctx, func(tx repo.ITx) error {
		_, err := e.Apply(ctx, tx, graph.NewResolver(tx), invariant.Create(model.UserCaller("olive"), acme))
		return err
	}))

	logs, err := s.Find(ctx, model.KindLog, repo.Where{})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	byKind := map[model.Kind]*model.Log{}
	for _, rec := range logs {
		l := rec.(*model.Log)
		byKind[l.RecordKind] = l
	}
	assert.Equal(t, "acme", byKind[model.KindOrganisation].Record)
	assert.Nil(t, byKind[model.KindOrganisation].Details)
	edge := byKind[model.KindManages]
	require.NotNil(t, edge)
	assert.Equal(t, model.LogCreate, edge.Event)
	assert.Equal(t, "acme", edge.Details["cause"])
}
