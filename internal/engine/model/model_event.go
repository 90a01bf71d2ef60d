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

package model

import "time"

// EventOptions are the registration bounds of an event. A nil bound is not enforced.
type EventOptions struct {
	MinPoolSize    *int `gorm:"column:min_pool_size" json:"minPoolSize,omitempty" validate:"omitempty,min=0"`
	MaxPoolSize    *int `gorm:"column:max_pool_size" json:"maxPoolSize,omitempty" validate:"omitempty,min=0"`
	MinAge         *int `gorm:"column:min_age" json:"minAge,omitempty" validate:"omitempty,min=0"`
	MaxAge         *int `gorm:"column:max_age" json:"maxAge,omitempty" validate:"omitempty,min=0"`
	MinTeamSize    *int `gorm:"column:min_team_size" json:"minTeamSize,omitempty" validate:"omitempty,min=0"`
	MaxTeamSize    *int `gorm:"column:max_team_size" json:"maxTeamSize,omitempty" validate:"omitempty,min=0"`
	ManualApproval bool `gorm:"column:manual_approval" json:"manualApproval"`
}

// Fields returns the options keyed by column name.
func (o EventOptions) Fields() map[string]any {
	return map[string]any{
		"min_pool_size":   optionalInt(o.MinPoolSize),
		"max_pool_size":   optionalInt(o.MaxPoolSize),
		"min_age":         optionalInt(o.MinAge),
		"max_age":         optionalInt(o.MaxAge),
		"min_team_size":   optionalInt(o.MinTeamSize),
		"max_team_size":   optionalInt(o.MaxTeamSize),
		"manual_approval": o.ManualApproval,
	}
}

func (o EventOptions) clone() EventOptions {
	return EventOptions{
		MinPoolSize:    cloneInt(o.MinPoolSize),
		MaxPoolSize:    cloneInt(o.MaxPoolSize),
		MinAge:         cloneInt(o.MinAge),
		MaxAge:         cloneInt(o.MaxAge),
		MinTeamSize:    cloneInt(o.MinTeamSize),
		MaxTeamSize:    cloneInt(o.MaxTeamSize),
		ManualApproval: o.ManualApproval,
	}
}

// Event is organised by an Organisation and may belong to a tournament (another Event).
type Event struct {
	BaseModel
	Name         string       `gorm:"column:name;size:255" json:"name" validate:"required"`
	Description  string       `gorm:"column:description" json:"description"`
	Banner       string       `gorm:"column:banner" json:"banner,omitempty"`
	Organiser    string       `gorm:"column:organiser;size:64;index" json:"organiser" validate:"required"`
	Tournament   string       `gorm:"column:tournament;size:64;index" json:"tournament,omitempty"`
	Discoverable bool         `gorm:"column:discoverable" json:"discoverable"`
	Published    bool         `gorm:"column:published" json:"published"`
	Start        *time.Time   `gorm:"column:start" json:"start,omitempty"` // age reference instant
	Options      EventOptions `gorm:"embedded;embeddedPrefix:opt_" json:"options"`
}

func (Event) TableName() string {
	return "t_event"
}

func (*Event) Kind() Kind { return KindEvent }

func (e *Event) Fields() map[string]any {
	f := e.BaseModel.fields()
	f["name"] = e.Name
	f["description"] = e.Description
	f["banner"] = e.Banner
	f["organiser"] = e.Organiser
	f["tournament"] = e.Tournament
	f["discoverable"] = e.Discoverable
	f["published"] = e.Published
	f["start"] = optionalTime(e.Start)
	f["options"] = e.Options.Fields()
	return f
}

func (e *Event) Clone() Record {
	c := *e
	c.Start = cloneTime(e.Start)
	c.Options = e.Options.clone()
	return &c
}

// Int is a convenience for building optional bounds.
func Int(n int) *int {
	return &n
}
