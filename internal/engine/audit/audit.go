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

// Package audit appends Log entries for committed mutations.
package audit

import (
	"bytes"
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/go-arcade/guild/internal/engine/invariant"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/policy"
	"github.com/go-arcade/guild/internal/engine/repo"
	"github.com/go-arcade/guild/pkg/id"
)

// Writer is the part of a store transaction the recorder needs.
type Writer interface {
	Put(ctx context.Context, rec model.Record) error
}

// canonical encodes with sorted map keys so equal values encode equally.
var canonical = sonic.ConfigStd

type Recorder struct {
	watch WatchList
	now   func() time.Time
	newId id.Generator
}

type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func WithIdGenerator(gen id.Generator) Option {
	return func(r *Recorder) {
		if gen != nil {
			r.newId = gen
		}
	}
}

// NewRecorder builds a recorder over watch; a nil watch list means the defaults.
func NewRecorder(watch WatchList, opts ...Option) *Recorder {
	if watch == nil {
		watch = DefaultWatchList()
	}
	r := &Recorder{watch: watch, now: time.Now, newId: id.GetULID}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordChange writes the entries for one mutation through w. CREATE and
// DELETE produce a single entry without a change; UPDATE produces one entry
// per watched field whose value differs. Log records themselves are never
// logged.
func (r *Recorder) RecordChange(ctx context.Context, w Writer, event model.LogEvent, before, after model.Record, details map[string]any) ([]*model.Log, error) {
	subject := after
	if subject == nil {
		subject = before
	}
	if subject == nil || subject.Kind() == model.KindLog {
		return nil, nil
	}

	var entries []*model.Log
	switch event {
	case model.LogCreate, model.LogDelete:
		entries = append(entries, r.entry(subject, event, nil, details))
	case model.LogUpdate:
		b, a := before.Fields(), after.Fields()
		for _, field := range r.watch.Fields(subject.Kind()) {
			same, err := equal(b[field], a[field])
			if err != nil {
				return nil, errors.Wrapf(err, "compare %s.%s", subject.Kind(), field)
			}
			if same {
				continue
			}
			change := &model.LogChange{Field: field, Value: model.LogValue{Before: b[field], After: a[field]}}
			entries = append(entries, r.entry(subject, event, change, details))
		}
	default:
		return nil, errors.Errorf("unknown log event %q", event)
	}

	for _, e := range entries {
		if err := w.Put(ctx, e); err != nil {
			return nil, errors.Wrapf(err, "append log for %s %s", subject.Kind(), subject.GetId())
		}
	}
	return entries, nil
}

// Apply records m. It has the shape of an invariant.Hook, so entries are
// written in the transaction of the mutation they describe.
func (r *Recorder) Apply(ctx context.Context, tx repo.ITx, m *invariant.Mutation) error {
	var details map[string]any
	if m.Cascaded() {
		details = map[string]any{"cascade": true, "cause": m.Cause}
	}
	_, err := r.RecordChange(ctx, tx, eventOf(m.Op), m.Before, m.After, details)
	return err
}

func (r *Recorder) entry(subject model.Record, event model.LogEvent, change *model.LogChange, details map[string]any) *model.Log {
	now := r.now()
	l := &model.Log{
		BaseModel:  model.BaseModel{Id: r.newId(), CreatedAt: now, UpdatedAt: now},
		Record:     subject.GetId(),
		RecordKind: subject.Kind(),
		Event:      event,
		Change:     change,
	}
	if details != nil {
		l.Details = datatypes.JSONMap(details)
	}
	return l
}

func eventOf(op policy.Op) model.LogEvent {
	switch op {
	case policy.OpCreate:
		return model.LogCreate
	case policy.OpDelete:
		return model.LogDelete
	}
	return model.LogUpdate
}

func equal(a, b any) (bool, error) {
	ja, err := canonical.Marshal(a)
	if err != nil {
		return false, err
	}
	jb, err := canonical.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ja, jb), nil
}
