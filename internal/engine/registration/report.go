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

package registration

import (
	"context"
	"fmt"

	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/repo"
)

type ReasonCode string

const (
	ReasonAlreadyRegistered ReasonCode = "already_registered"
	ReasonTooFewPlayers     ReasonCode = "too_few_players"
	ReasonPlayerUnderAge    ReasonCode = "player_under_age"
	ReasonPlayerOverAge     ReasonCode = "player_over_age"
	ReasonTeamTooSmall      ReasonCode = "team_too_small"
	ReasonTeamTooLarge      ReasonCode = "team_too_large"
	ReasonTooManyPlayers    ReasonCode = "too_many_players"
)

// Reason is one line of an eligibility report.
type Reason struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
	// Players names the players the reason is about, if any.
	Players []string `json:"players,omitempty"`
	// Invites lists pending team invites whose acceptance could resolve the reason.
	Invites []string `json:"invites,omitempty"`
}

// Report is the eligibility of one actor for one event.
type Report struct {
	// Eligible is true when a registration narrowed to the eligible players
	// would be accepted.
	Eligible bool     `json:"eligible"`
	Reasons  []Reason `json:"reasons"`
}

// Report explains why the actor cannot register for ev, or which of its
// players a registration would leave out.
func (v *Validator) Report(ctx context.Context, g *graph.Resolver, kind model.Kind, actorId string, ev *model.Event) (*Report, error) {
	eligible, err := g.EligibleToPlay(ctx, kind, actorId, ev)
	if err != nil {
		return nil, err
	}
	report := &Report{Eligible: eligible}

	existing, err := g.Reader().Find(ctx, model.KindAttends, repo.Where{"in": actorId, "out": ev.Id})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		report.Reasons = append(report.Reasons, Reason{
			Code:    ReasonAlreadyRegistered,
			Message: fmt.Sprintf("%s %s is already registered for %s", kind, actorId, ev.Id),
		})
	}

	roster, err := g.ActorRoster(ctx, kind, actorId, ev)
	if err != nil {
		return nil, err
	}
	opts := ev.Options
	if opts.MinPoolSize != nil && len(roster.Eligible) < *opts.MinPoolSize {
		r := Reason{
			Code:    ReasonTooFewPlayers,
			Message: fmt.Sprintf("%d eligible players, at least %d required", len(roster.Eligible), *opts.MinPoolSize),
		}
		if kind == model.KindTeam {
			invites, err := g.Reader().Find(ctx, model.KindInvite, repo.Where{"target": actorId, "target_kind": string(model.KindTeam)})
			if err != nil {
				return nil, err
			}
			for _, inv := range invites {
				r.Invites = append(r.Invites, inv.GetId())
			}
		}
		report.Reasons = append(report.Reasons, r)
	}
	if len(roster.Under) > 0 {
		report.Reasons = append(report.Reasons, Reason{
			Code:    ReasonPlayerUnderAge,
			Message: fmt.Sprintf("%d players are under the minimum age", len(roster.Under)),
			Players: roster.Under,
		})
	}
	if len(roster.Over) > 0 {
		report.Reasons = append(report.Reasons, Reason{
			Code:    ReasonPlayerOverAge,
			Message: fmt.Sprintf("%d players are over the maximum age", len(roster.Over)),
			Players: roster.Over,
		})
	}
	if kind == model.KindTeam {
		if n := len(roster.Players); opts.MinTeamSize != nil && n < *opts.MinTeamSize {
			report.Reasons = append(report.Reasons, Reason{
				Code:    ReasonTeamTooSmall,
				Message: fmt.Sprintf("team has %d players, at least %d required", n, *opts.MinTeamSize),
			})
		}
		if n := len(roster.Players); opts.MaxTeamSize != nil && n > *opts.MaxTeamSize {
			report.Reasons = append(report.Reasons, Reason{
				Code:    ReasonTeamTooLarge,
				Message: fmt.Sprintf("team has %d players, at most %d allowed", n, *opts.MaxTeamSize),
			})
		}
	}
	if opts.MaxPoolSize != nil && len(roster.Eligible) > *opts.MaxPoolSize {
		report.Reasons = append(report.Reasons, Reason{
			Code:    ReasonTooManyPlayers,
			Message: fmt.Sprintf("%d eligible players, at most %d may be registered", len(roster.Eligible), *opts.MaxPoolSize),
		})
	}
	return report, nil
}
