package model

import (
	"maps"

	"gorm.io/datatypes"
)

// LogEvent is the mutation kind a Log entry records.
type LogEvent string

const (
	LogCreate LogEvent = "CREATE"
	LogUpdate LogEvent = "UPDATE"
	LogDelete LogEvent = "DELETE"
)

// LogValue holds both sides of a field change.
type LogValue struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// LogChange is the single field change carried by an UPDATE entry.
type LogChange struct {
	Field string   `json:"field"`
	Value LogValue `json:"value"`
}

// Log 审计日志, append-only
type Log struct {
	BaseModel
	Record     string            `gorm:"column:record;size:64;index" json:"record"`
	RecordKind Kind              `gorm:"column:record_kind;size:16" json:"recordKind"`
	Event      LogEvent          `gorm:"column:event;size:8" json:"event"`
	Change     *LogChange        `gorm:"column:change;serializer:json" json:"change,omitempty"`
	Details    datatypes.JSONMap `gorm:"column:details" json:"details,omitempty"`
}

func (Log) TableName() string {
	return "t_log"
}

func (*Log) Kind() Kind { return KindLog }

func (l *Log) Fields() map[string]any {
	f := l.BaseModel.fields()
	f["record"] = l.Record
	f["record_kind"] = string(l.RecordKind)
	f["event"] = string(l.Event)
	if l.Change != nil {
		f["change"] = map[string]any{
			"field": l.Change.Field,
			"value": map[string]any{"before": l.Change.Value.Before, "after": l.Change.Value.After},
		}
	} else {
		f["change"] = nil
	}
	if l.Details != nil {
		f["details"] = map[string]any(maps.Clone(l.Details))
	} else {
		f["details"] = nil
	}
	return f
}

func (l *Log) Clone() Record {
	c := *l
	if l.Change != nil {
		ch := *l.Change
		c.Change = &ch
	}
	c.Details = maps.Clone(l.Details)
	return &c
}
