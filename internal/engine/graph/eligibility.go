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

package graph

import (
	"context"
	"errors"
	"time"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/repo"
)

// AgeVerdict classifies a player against an event's age bounds.
type AgeVerdict int

const (
	AgeOK AgeVerdict = iota
	AgeUnder
	AgeOver
	// AgeUnknown means a bound is configured but the player has no birthdate.
	AgeUnknown
)

// ReferenceTime is the instant ages are measured at: the event start if set.
func (r *Resolver) ReferenceTime(ev *model.Event) time.Time {
	if ev.Start != nil {
		return *ev.Start
	}
	return r.now()
}

// CheckAge applies the event's inclusive age bounds to the user.
func (r *Resolver) CheckAge(u *model.User, ev *model.Event) AgeVerdict {
	opts := ev.Options
	if opts.MinAge == nil && opts.MaxAge == nil {
		return AgeOK
	}
	if u.Birthdate == nil {
		return AgeUnknown
	}
	age := model.AgeAt(*u.Birthdate, r.ReferenceTime(ev))
	if opts.MinAge != nil && age < *opts.MinAge {
		return AgeUnder
	}
	if opts.MaxAge != nil && age > *opts.MaxAge {
		return AgeOver
	}
	return AgeOK
}

// Roster partitions an actor's players for an event.
type Roster struct {
	// Players is the actor's current roster: the user itself, or the team's players.
	Players []string
	// Eligible keeps roster order and excludes the players listed below.
	Eligible []string
	// Taken maps players registered for the event through another actor to that actor.
	Taken map[string]string
	// Under and Over fail the age bounds. A player without a birthdate counts
	// against the minimum when one is set, otherwise against the maximum.
	Under []string
	Over  []string
}

// ActorRoster resolves the actor's roster and partitions it against ev.
func (r *Resolver) ActorRoster(ctx context.Context, kind model.Kind, actorId string, ev *model.Event) (*Roster, error) {
	players, err := r.ActorPlayers(ctx, kind, actorId)
	if err != nil {
		return nil, err
	}
	taken, err := r.RegisteredElsewhere(ctx, actorId, ev.Id)
	if err != nil {
		return nil, err
	}
	out := &Roster{Players: players, Eligible: make([]string, 0, len(players)), Taken: taken}
	ageBound := ev.Options.MinAge != nil || ev.Options.MaxAge != nil
	for _, p := range players {
		if _, ok := taken[p]; ok {
			continue
		}
		if !ageBound {
			out.Eligible = append(out.Eligible, p)
			continue
		}
		u, err := r.User(ctx, p)
		if err != nil {
			return nil, err
		}
		switch r.CheckAge(u, ev) {
		case AgeOK:
			out.Eligible = append(out.Eligible, p)
		case AgeUnder:
			out.Under = append(out.Under, p)
		case AgeOver:
			out.Over = append(out.Over, p)
		case AgeUnknown:
			if ev.Options.MinAge != nil {
				out.Under = append(out.Under, p)
			} else {
				out.Over = append(out.Over, p)
			}
		}
	}
	return out, nil
}

// EligiblePlayers is the team's roster minus players already registered for
// the event through another actor, filtered by the event's age bounds.
func (r *Resolver) EligiblePlayers(ctx context.Context, teamId string, ev *model.Event) ([]string, error) {
	roster, err := r.ActorRoster(ctx, model.KindTeam, teamId, ev)
	if err != nil {
		return nil, err
	}
	return roster.Eligible, nil
}

// EligibleToPlay reports whether the actor has no registration for the event
// yet and its eligible roster can be narrowed to satisfy the size bounds.
func (r *Resolver) EligibleToPlay(ctx context.Context, kind model.Kind, actorId string, ev *model.Event) (bool, error) {
	existing, err := r.reader.Find(ctx, model.KindAttends, repo.Where{"in": actorId, "out": ev.Id})
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	roster, err := r.ActorRoster(ctx, kind, actorId, ev)
	if err != nil {
		return false, err
	}
	opts := ev.Options
	if kind == model.KindTeam {
		if opts.MinTeamSize != nil && len(roster.Players) < *opts.MinTeamSize {
			return false, nil
		}
		if opts.MaxTeamSize != nil && len(roster.Players) > *opts.MaxTeamSize {
			return false, nil
		}
	}
	if opts.MinPoolSize != nil && len(roster.Eligible) < *opts.MinPoolSize {
		return false, nil
	}
	return len(roster.Eligible) > 0, nil
}

// ComputedFields lists the derived fields exposed on reads of kind.
func ComputedFields(kind model.Kind) []string {
	switch kind {
	case model.KindOrganisation:
		return []string{"manager_roles", "managers", "slug"}
	case model.KindTeam:
		return []string{"players", "slug"}
	case model.KindEvent:
		return []string{"root_for_org", "is_tournament"}
	}
	return nil
}

// Resolve computes one derived field of rec.
func (r *Resolver) Resolve(ctx context.Context, field string, rec model.Record) (any, error) {
	switch v := rec.(type) {
	case *model.Organisation:
		switch field {
		case "manager_roles":
			return r.LocalManagers(ctx, v.Id)
		case "managers":
			return r.Managers(ctx, v)
		case "slug":
			return Slug(v), nil
		}
	case *model.Team:
		switch field {
		case "players":
			return r.Players(ctx, v.Id)
		case "slug":
			return v.Id, nil
		}
	case *model.Event:
		switch field {
		case "root_for_org":
			return r.RootForOrg(ctx, v)
		case "is_tournament":
			return r.IsTournament(ctx, v.Id)
		}
	}
	return nil, errs.Validation(rec.Kind(), rec.GetId(), field, "no such computed field")
}

// Computed resolves every derived field of rec.
func (r *Resolver) Computed(ctx context.Context, rec model.Record) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range ComputedFields(rec.Kind()) {
		v, err := r.Resolve(ctx, f, rec)
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

// PendingInvites returns the invites addressed to the user, by id or by the
// user's email, for the target.
func (r *Resolver) PendingInvites(ctx context.Context, userId string, targetKind model.Kind, target string) ([]*model.Invite, error) {
	origins := []string{userId}
	if u, err := r.User(ctx, userId); err == nil && u.Email != "" {
		origins = append(origins, u.Email)
	} else if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	recs, err := r.reader.Find(ctx, model.KindInvite, repo.Where{
		"origin":      origins,
		"target":      target,
		"target_kind": string(targetKind),
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Invite, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.(*model.Invite))
	}
	return out, nil
}
