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
	"maps"
	"slices"

	"github.com/go-arcade/guild/internal/engine/model"
)

// WatchList names, per kind, the fields whose updates are logged.
type WatchList map[model.Kind][]string

// DefaultWatchList returns the watched fields of every kind.
func DefaultWatchList() WatchList {
	return WatchList{
		model.KindUser:         {"name", "email", "picture", "birthdate"},
		model.KindAdmin:        {"name", "email", "picture"},
		model.KindOrganisation: {"name", "description", "website", "email", "logo", "banner", "slug", "tier", "part_of"},
		model.KindTeam:         {"name", "description", "logo", "banner"},
		model.KindEvent:        {"name", "description", "banner", "organiser", "tournament", "discoverable", "published", "start", "options"},
		model.KindManages:      {"role", "public"},
		model.KindAttends:      {"confirmed", "players"},
		model.KindInvite:       {"role"},
	}
}

// Merge returns a copy of w with the kinds in override replaced. An empty
// list in override stops logging updates of that kind.
func (w WatchList) Merge(override map[string][]string) WatchList {
	out := make(WatchList, len(w)+len(override))
	for k, fields := range w {
		out[k] = slices.Clone(fields)
	}
	for k, fields := range override {
		out[model.Kind(k)] = slices.Clone(fields)
	}
	return out
}

// Fields returns the watched fields of kind, sorted.
func (w WatchList) Fields(kind model.Kind) []string {
	fields := slices.Clone(w[kind])
	slices.Sort(fields)
	return slices.Compact(fields)
}

// Kinds lists the kinds with at least one watched field.
func (w WatchList) Kinds() []model.Kind {
	kinds := slices.Collect(maps.Keys(w))
	kinds = slices.DeleteFunc(kinds, func(k model.Kind) bool { return len(w[k]) == 0 })
	slices.Sort(kinds)
	return kinds
}
