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

import (
	"fmt"
	"time"
)

// Kind names a record table.
type Kind string

const (
	KindUser         Kind = "user"
	KindAdmin        Kind = "admin"
	KindOrganisation Kind = "organisation"
	KindTeam         Kind = "team"
	KindEvent        Kind = "event"
	KindManages      Kind = "manages"
	KindPlaysIn      Kind = "plays_in"
	KindAttends      Kind = "attends"
	KindInvite       Kind = "invite"
	KindLog          Kind = "log"
)

// Kinds lists every record kind in migration order.
var Kinds = []Kind{
	KindUser, KindAdmin, KindOrganisation, KindTeam, KindEvent,
	KindManages, KindPlaysIn, KindAttends, KindInvite, KindLog,
}

// Record is the common surface of every stored entity.
// Fields returns the direct (stored) fields keyed by column name.
type Record interface {
	Kind() Kind
	GetId() string
	SetId(id string)
	Base() *BaseModel
	Fields() map[string]any
	Clone() Record
}

// BaseModel carries the columns shared by every table.
type BaseModel struct {
	Id        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (m *BaseModel) GetId() string    { return m.Id }
func (m *BaseModel) SetId(id string)  { m.Id = id }
func (m *BaseModel) Base() *BaseModel { return m }

func (m *BaseModel) fields() map[string]any {
	return map[string]any{
		"id":         m.Id,
		"created_at": m.CreatedAt,
		"updated_at": m.UpdatedAt,
	}
}

// New returns an empty record of the given kind.
func New(kind Kind) (Record, error) {
	switch kind {
	case KindUser:
		return &User{}, nil
	case KindAdmin:
		return &Admin{}, nil
	case KindOrganisation:
		return &Organisation{}, nil
	case KindTeam:
		return &Team{}, nil
	case KindEvent:
		return &Event{}, nil
	case KindManages:
		return &Manages{}, nil
	case KindPlaysIn:
		return &PlaysIn{}, nil
	case KindAttends:
		return &Attends{}, nil
	case KindInvite:
		return &Invite{}, nil
	case KindLog:
		return &Log{}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// Models returns one empty value per table, for auto-migration.
func Models() []any {
	out := make([]any, 0, len(Kinds))
	for _, k := range Kinds {
		r, _ := New(k)
		out = append(out, r)
	}
	return out
}

// Edge is implemented by relation records connecting In to Out.
type Edge interface {
	Record
	From() string
	To() string
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func optionalInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

// AgeAt returns the age in whole years of someone born at birth, measured at instant at.
func AgeAt(birth, at time.Time) int {
	birth, at = birth.UTC(), at.UTC()
	age := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		age--
	}
	return age
}
