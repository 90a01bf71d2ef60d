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

import "slices"

// Role is a management role held on an organisation.
type Role string

const (
	RoleOwner         Role = "owner"
	RoleAdministrator Role = "administrator"
	RoleEventManager  Role = "event_manager"
	RoleEventViewer   Role = "event_viewer"
)

// Manages relates a User (In) to an Organisation (Out).
type Manages struct {
	BaseModel
	In     string `gorm:"column:in;size:64;index" json:"in" validate:"required"`
	Out    string `gorm:"column:out;size:64;index" json:"out" validate:"required"`
	Role   Role   `gorm:"column:role;size:32" json:"role" validate:"required,oneof=owner administrator event_manager event_viewer"`
	Public bool   `gorm:"column:public" json:"public"`
}

func (Manages) TableName() string {
	return "t_manages"
}

func (*Manages) Kind() Kind     { return KindManages }
func (m *Manages) From() string { return m.In }
func (m *Manages) To() string   { return m.Out }

func (m *Manages) Fields() map[string]any {
	f := m.BaseModel.fields()
	f["in"] = m.In
	f["out"] = m.Out
	f["role"] = string(m.Role)
	f["public"] = m.Public
	return f
}

func (m *Manages) Clone() Record {
	c := *m
	return &c
}

// PlaysIn relates a User (In) to a Team (Out). An edge only exists once accepted.
type PlaysIn struct {
	BaseModel
	In  string `gorm:"column:in;size:64;index" json:"in" validate:"required"`
	Out string `gorm:"column:out;size:64;index" json:"out" validate:"required"`
}

func (PlaysIn) TableName() string {
	return "t_plays_in"
}

func (*PlaysIn) Kind() Kind     { return KindPlaysIn }
func (p *PlaysIn) From() string { return p.In }
func (p *PlaysIn) To() string   { return p.Out }

func (p *PlaysIn) Fields() map[string]any {
	f := p.BaseModel.fields()
	f["in"] = p.In
	f["out"] = p.Out
	return f
}

func (p *PlaysIn) Clone() Record {
	c := *p
	return &c
}

// Attends is a registration of an actor (User or Team) for an Event.
type Attends struct {
	BaseModel
	In        string   `gorm:"column:in;size:64;index" json:"in" validate:"required"`
	InKind    Kind     `gorm:"column:in_kind;size:16" json:"inKind" validate:"required,oneof=user team"`
	Out       string   `gorm:"column:out;size:64;index" json:"out" validate:"required"`
	Confirmed bool     `gorm:"column:confirmed" json:"confirmed"`
	Players   []string `gorm:"column:players;serializer:json" json:"players"`
}

func (Attends) TableName() string {
	return "t_attends"
}

func (*Attends) Kind() Kind     { return KindAttends }
func (a *Attends) From() string { return a.In }
func (a *Attends) To() string   { return a.Out }

func (a *Attends) Fields() map[string]any {
	f := a.BaseModel.fields()
	f["in"] = a.In
	f["in_kind"] = string(a.InKind)
	f["out"] = a.Out
	f["confirmed"] = a.Confirmed
	f["players"] = slices.Clone(a.Players)
	return f
}

func (a *Attends) Clone() Record {
	c := *a
	c.Players = slices.Clone(a.Players)
	return &c
}
