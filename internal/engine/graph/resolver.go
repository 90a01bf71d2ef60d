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

// Package graph derives the fields that are not stored but computed by walking
// relations: inherited managers, team rosters, tournament lineage and the
// eligible player sets used by registration.
package graph

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/repo"
)

// DefaultMaxDepth bounds part_of and tournament chains.
const DefaultMaxDepth = 16

// Resolver computes derived fields against one consistent view of the graph.
// Results are memoized for the lifetime of the resolver, so a resolver must
// not outlive the request or transaction it was created for. Reset drops the
// memo after a write.
type Resolver struct {
	reader   repo.IReader
	maxDepth int
	now      func() time.Time

	mu   sync.Mutex
	memo map[string]any
}

type Option func(*Resolver)

func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func NewResolver(reader repo.IReader, opts ...Option) *Resolver {
	r := &Resolver{
		reader:   reader,
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
		memo:     make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxDepth is the cap applied to part_of and tournament walks.
func (r *Resolver) MaxDepth() int {
	return r.maxDepth
}

// Reader returns the view the resolver reads from.
func (r *Resolver) Reader() repo.IReader {
	return r.reader
}

// Now returns the resolver's clock reading.
func (r *Resolver) Now() time.Time {
	return r.now()
}

// Reset forgets every memoized value.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.memo)
}

func memo[T any](r *Resolver, key string, fn func() (T, error)) (T, error) {
	r.mu.Lock()
	if v, ok := r.memo[key]; ok {
		r.mu.Unlock()
		return v.(T), nil
	}
	r.mu.Unlock()

	v, err := fn()
	if err != nil {
		return v, err
	}
	r.mu.Lock()
	r.memo[key] = v
	r.mu.Unlock()
	return v, nil
}

// Organisation loads an organisation through the memo.
func (r *Resolver) Organisation(ctx context.Context, id string) (*model.Organisation, error) {
	return memo(r, "org:"+id, func() (*model.Organisation, error) {
		rec, err := r.reader.Get(ctx, model.KindOrganisation, id)
		if err != nil {
			return nil, err
		}
		return rec.(*model.Organisation), nil
	})
}

// Event loads an event through the memo.
func (r *Resolver) Event(ctx context.Context, id string) (*model.Event, error) {
	return memo(r, "event:"+id, func() (*model.Event, error) {
		rec, err := r.reader.Get(ctx, model.KindEvent, id)
		if err != nil {
			return nil, err
		}
		return rec.(*model.Event), nil
	})
}

// User loads a user through the memo.
func (r *Resolver) User(ctx context.Context, id string) (*model.User, error) {
	return memo(r, "user:"+id, func() (*model.User, error) {
		rec, err := r.reader.Get(ctx, model.KindUser, id)
		if err != nil {
			return nil, err
		}
		return rec.(*model.User), nil
	})
}

// LocalManagers returns the Manages edges held directly on the organisation.
func (r *Resolver) LocalManagers(ctx context.Context, orgId string) ([]model.Manager, error) {
	out, err := memo(r, "local:"+orgId, func() ([]model.Manager, error) {
		recs, err := r.reader.Find(ctx, model.KindManages, repo.Where{"out": orgId})
		if err != nil {
			return nil, err
		}
		managers := make([]model.Manager, 0, len(recs))
		for _, rec := range recs {
			m := rec.(*model.Manages)
			managers = append(managers, model.Manager{User: m.In, Role: m.Role, Public: m.Public, Org: orgId})
		}
		return managers, nil
	})
	return slices.Clone(out), err
}

// Ancestors walks part_of from org's parent up to the root. A chain longer
// than the depth cap, or one that revisits an organisation, is an error.
func (r *Resolver) Ancestors(ctx context.Context, org *model.Organisation) ([]*model.Organisation, error) {
	out, err := memo(r, "ancestors:"+org.Id+"/"+org.PartOf, func() ([]*model.Organisation, error) {
		var chain []*model.Organisation
		seen := map[string]bool{org.Id: true}
		parent := org.PartOf
		for parent != "" {
			if len(chain) >= r.maxDepth || seen[parent] {
				return nil, errs.RecursionLimit(model.KindOrganisation, org.Id, "part_of", r.maxDepth)
			}
			seen[parent] = true
			p, err := r.Organisation(ctx, parent)
			if err != nil {
				return nil, err
			}
			chain = append(chain, p)
			parent = p.PartOf
		}
		return chain, nil
	})
	return slices.Clone(out), err
}

// Root returns the top of org's part_of chain, org itself when it has no parent.
func (r *Resolver) Root(ctx context.Context, org *model.Organisation) (*model.Organisation, error) {
	chain, err := r.Ancestors(ctx, org)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return org, nil
	}
	return chain[len(chain)-1], nil
}

// Managers is the organisation's local managers plus every ancestor's, root
// first. Each entry's Org is the organisation the assignment is held at.
func (r *Resolver) Managers(ctx context.Context, org *model.Organisation) ([]model.Manager, error) {
	chain, err := r.Ancestors(ctx, org)
	if err != nil {
		return nil, err
	}
	var out []model.Manager
	for i := len(chain) - 1; i >= 0; i-- {
		inherited, err := r.LocalManagers(ctx, chain[i].Id)
		if err != nil {
			return nil, err
		}
		out = append(out, inherited...)
	}
	local, err := r.LocalManagers(ctx, org.Id)
	if err != nil {
		return nil, err
	}
	return append(out, local...), nil
}

// ManagersOf resolves the computed managers of the organisation with the given id.
func (r *Resolver) ManagersOf(ctx context.Context, orgId string) ([]model.Manager, error) {
	org, err := r.Organisation(ctx, orgId)
	if err != nil {
		return nil, err
	}
	return r.Managers(ctx, org)
}

// HasRole reports whether user holds one of roles in managers.
func HasRole(managers []model.Manager, user string, roles ...model.Role) bool {
	for _, m := range managers {
		if m.User == user && (len(roles) == 0 || slices.Contains(roles, m.Role)) {
			return true
		}
	}
	return false
}

// Slug resolves the public slug: the stored one on paid tiers, otherwise the id.
func Slug(org *model.Organisation) string {
	if org.Tier.Paid() && org.Slug != "" {
		return org.Slug
	}
	return org.Id
}

// Players returns the users holding a PlaysIn edge into the team.
func (r *Resolver) Players(ctx context.Context, teamId string) ([]string, error) {
	out, err := memo(r, "players:"+teamId, func() ([]string, error) {
		recs, err := r.reader.Find(ctx, model.KindPlaysIn, repo.Where{"out": teamId})
		if err != nil {
			return nil, err
		}
		players := make([]string, 0, len(recs))
		for _, rec := range recs {
			players = append(players, rec.(*model.PlaysIn).In)
		}
		return players, nil
	})
	return slices.Clone(out), err
}

// IsPlayer reports whether user plays in the team.
func (r *Resolver) IsPlayer(ctx context.Context, teamId, user string) (bool, error) {
	players, err := r.Players(ctx, teamId)
	if err != nil {
		return false, err
	}
	return slices.Contains(players, user), nil
}

// TournamentLineage walks tournament from the event's parent up to the top event.
func (r *Resolver) TournamentLineage(ctx context.Context, ev *model.Event) ([]*model.Event, error) {
	out, err := memo(r, "lineage:"+ev.Id+"/"+ev.Tournament, func() ([]*model.Event, error) {
		var chain []*model.Event
		seen := map[string]bool{ev.Id: true}
		parent := ev.Tournament
		for parent != "" {
			if len(chain) >= r.maxDepth || seen[parent] {
				return nil, errs.RecursionLimit(model.KindEvent, ev.Id, "tournament", r.maxDepth)
			}
			seen[parent] = true
			p, err := r.Event(ctx, parent)
			if err != nil {
				return nil, err
			}
			chain = append(chain, p)
			parent = p.Tournament
		}
		return chain, nil
	})
	return slices.Clone(out), err
}

// SubtreeHeight counts the levels of kind records below id, following field
// (part_of or tournament) downwards. The walk stops as soon as the height
// exceeds limit.
func (r *Resolver) SubtreeHeight(ctx context.Context, kind model.Kind, field, id string, limit int) (int, error) {
	seen := map[string]bool{id: true}
	frontier := []string{id}
	height := 0
	for height <= limit {
		recs, err := r.reader.Find(ctx, kind, repo.Where{field: frontier})
		if err != nil {
			return 0, err
		}
		next := make([]string, 0, len(recs))
		for _, rec := range recs {
			if !seen[rec.GetId()] {
				seen[rec.GetId()] = true
				next = append(next, rec.GetId())
			}
		}
		if len(next) == 0 {
			break
		}
		height++
		frontier = next
	}
	return height, nil
}

// RootForOrg is true when the event has no tournament, or the tournament is
// organised by a different organisation.
func (r *Resolver) RootForOrg(ctx context.Context, ev *model.Event) (bool, error) {
	if ev.Tournament == "" {
		return true, nil
	}
	parent, err := r.Event(ctx, ev.Tournament)
	if err != nil {
		return false, err
	}
	return parent.Organiser != ev.Organiser, nil
}

// IsTournament is true when another event names this one as its tournament.
func (r *Resolver) IsTournament(ctx context.Context, eventId string) (bool, error) {
	return memo(r, "tournament:"+eventId, func() (bool, error) {
		recs, err := r.reader.Find(ctx, model.KindEvent, repo.Where{"tournament": eventId})
		if err != nil {
			return false, err
		}
		return len(recs) > 0, nil
	})
}

// ActorPlayers is [user] for a user actor and the roster for a team actor.
func (r *Resolver) ActorPlayers(ctx context.Context, kind model.Kind, id string) ([]string, error) {
	switch kind {
	case model.KindUser:
		return []string{id}, nil
	case model.KindTeam:
		return r.Players(ctx, id)
	}
	return nil, errs.Validation(model.KindAttends, "", "in_kind", "actor must be a user or a team")
}

// Registrations returns the Attends edges into the event.
func (r *Resolver) Registrations(ctx context.Context, eventId string) ([]*model.Attends, error) {
	out, err := memo(r, "attends:"+eventId, func() ([]*model.Attends, error) {
		recs, err := r.reader.Find(ctx, model.KindAttends, repo.Where{"out": eventId})
		if err != nil {
			return nil, err
		}
		regs := make([]*model.Attends, 0, len(recs))
		for _, rec := range recs {
			regs = append(regs, rec.(*model.Attends))
		}
		return regs, nil
	})
	return slices.Clone(out), err
}

// RegisteredElsewhere maps each player already registered for the event
// through an actor other than actorId to that actor.
func (r *Resolver) RegisteredElsewhere(ctx context.Context, actorId string, eventId string) (map[string]string, error) {
	regs, err := r.Registrations(ctx, eventId)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]string)
	for _, a := range regs {
		if a.In == actorId {
			continue
		}
		for _, p := range a.Players {
			taken[p] = a.In
		}
	}
	return taken, nil
}
