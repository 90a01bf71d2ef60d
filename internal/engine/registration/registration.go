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

// Package registration checks event registrations (Attends) against the
// event's bounds and explains why an actor is not eligible.
package registration

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/repo"
)

// Validator normalises and validates Attends records.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Normalize narrows the submitted roster to the actor's current players,
// keeping submission order and dropping duplicates. Applying it twice gives
// the same result.
func (v *Validator) Normalize(ctx context.Context, g *graph.Resolver, a *model.Attends) ([]string, error) {
	roster, err := g.ActorPlayers(ctx, a.InKind, a.In)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(a.Players))
	for _, p := range a.Players {
		if slices.Contains(roster, p) && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Prepare normalises a.Players in place, defaults confirmed on create and
// validates the result. A registration created without players fields every
// eligible player of the actor.
func (v *Validator) Prepare(ctx context.Context, g *graph.Resolver, a *model.Attends, creating bool) error {
	ev, err := g.Event(ctx, a.Out)
	if err != nil {
		return err
	}
	if creating && len(a.Players) == 0 {
		roster, err := g.ActorRoster(ctx, a.InKind, a.In, ev)
		if err != nil {
			return err
		}
		a.Players = roster.Eligible
	}
	players, err := v.Normalize(ctx, g, a)
	if err != nil {
		return err
	}
	a.Players = players
	if creating {
		a.Confirmed = !ev.Options.ManualApproval
	}
	return v.Validate(ctx, g, a, ev)
}

// Validate asserts every bound on an already normalised registration.
func (v *Validator) Validate(ctx context.Context, g *graph.Resolver, a *model.Attends, ev *model.Event) error {
	existing, err := g.Reader().Find(ctx, model.KindAttends, repo.Where{"in": a.In, "out": a.Out})
	if err != nil {
		return err
	}
	for _, rec := range existing {
		if rec.GetId() != a.Id {
			return errs.Registration(a.Id, "in", fmt.Sprintf("%s %s is already registered for %s", a.InKind, a.In, a.Out))
		}
	}

	taken, err := g.RegisteredElsewhere(ctx, a.In, a.Out)
	if err != nil {
		return err
	}
	for _, p := range a.Players {
		if other, ok := taken[p]; ok {
			return errs.Registration(a.Id, "players", fmt.Sprintf("player %s is already registered through %s", p, other))
		}
	}

	opts := ev.Options
	n := len(a.Players)
	if n == 0 {
		return errs.Registration(a.Id, "players", "no eligible players")
	}
	if opts.MinPoolSize != nil && n < *opts.MinPoolSize {
		return errs.Registration(a.Id, "min_pool_size", fmt.Sprintf("%d players, at least %d required", n, *opts.MinPoolSize))
	}
	if opts.MaxPoolSize != nil && n > *opts.MaxPoolSize {
		return errs.Registration(a.Id, "max_pool_size", fmt.Sprintf("%d players, at most %d allowed", n, *opts.MaxPoolSize))
	}

	if a.InKind == model.KindTeam {
		roster, err := g.Players(ctx, a.In)
		if err != nil {
			return err
		}
		if opts.MinTeamSize != nil && len(roster) < *opts.MinTeamSize {
			return errs.Registration(a.Id, "min_team_size", fmt.Sprintf("team has %d players, at least %d required", len(roster), *opts.MinTeamSize))
		}
		if opts.MaxTeamSize != nil && len(roster) > *opts.MaxTeamSize {
			return errs.Registration(a.Id, "max_team_size", fmt.Sprintf("team has %d players, at most %d allowed", len(roster), *opts.MaxTeamSize))
		}
	}

	for _, p := range a.Players {
		u, err := g.User(ctx, p)
		if err != nil {
			return err
		}
		switch g.CheckAge(u, ev) {
		case graph.AgeUnder:
			return errs.Registration(a.Id, "min_age", fmt.Sprintf("player %s is younger than %d", p, *opts.MinAge))
		case graph.AgeOver:
			return errs.Registration(a.Id, "max_age", fmt.Sprintf("player %s is older than %d", p, *opts.MaxAge))
		case graph.AgeUnknown:
			field := "max_age"
			if opts.MinAge != nil {
				field = "min_age"
			}
			return errs.Registration(a.Id, field, fmt.Sprintf("player %s has no birthdate", p))
		}
	}
	return nil
}
