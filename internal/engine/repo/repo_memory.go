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

package repo

import (
	"context"
	"sync"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/model"
)

// MemoryStore keeps every table in process memory. Writers are serialized, so a
// transaction always observes a stable before-image. Records are cloned on the
// way in and out.
type MemoryStore struct {
	writer sync.Mutex
	mu     sync.RWMutex
	tables map[model.Kind]map[string]model.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[model.Kind]map[string]model.Record)}
}

func (s *MemoryStore) Get(ctx context.Context, kind model.Kind, id string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(kind, id)
}

func (s *MemoryStore) Find(ctx context.Context, kind model.Kind, where Where) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(kind, where, nil), nil
}

func (s *MemoryStore) get(kind model.Kind, id string) (model.Record, error) {
	rec, ok := s.tables[kind][id]
	if !ok {
		return nil, errs.NotFound(kind, id)
	}
	return rec.Clone(), nil
}

// find scans the base table, letting the overlay shadow or delete rows.
func (s *MemoryStore) find(kind model.Kind, where Where, overlay map[string]*pending) []model.Record {
	var out []model.Record
	for id, rec := range s.tables[kind] {
		if _, shadowed := overlay[id]; shadowed {
			continue
		}
		if where.Match(rec.Fields()) {
			out = append(out, rec.Clone())
		}
	}
	for _, p := range overlay {
		if p.rec != nil && where.Match(p.rec.Fields()) {
			out = append(out, p.rec.Clone())
		}
	}
	sortRecords(out)
	return out
}

// Transaction runs fn against a copy-on-write overlay and applies it only when fn succeeds.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx ITx) error) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	tx := &memoryTx{store: s, overlay: make(map[model.Kind]map[string]*pending)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, rows := range tx.overlay {
		table := s.tables[kind]
		if table == nil {
			table = make(map[string]model.Record)
			s.tables[kind] = table
		}
		for id, p := range rows {
			if p.rec == nil {
				delete(table, id)
			} else {
				table[id] = p.rec
			}
		}
	}
	return nil
}

// Len returns the number of committed records of kind.
func (s *MemoryStore) Len(kind model.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[kind])
}

// pending is an uncommitted row; a nil rec marks a deletion.
type pending struct {
	rec model.Record
}

type memoryTx struct {
	store   *MemoryStore
	overlay map[model.Kind]map[string]*pending
}

func (t *memoryTx) Get(ctx context.Context, kind model.Kind, id string) (model.Record, error) {
	if p, ok := t.overlay[kind][id]; ok {
		if p.rec == nil {
			return nil, errs.NotFound(kind, id)
		}
		return p.rec.Clone(), nil
	}
	return t.store.Get(ctx, kind, id)
}

func (t *memoryTx) Find(ctx context.Context, kind model.Kind, where Where) ([]model.Record, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.find(kind, where, t.overlay[kind]), nil
}

func (t *memoryTx) Put(ctx context.Context, rec model.Record) error {
	rows := t.rows(rec.Kind())
	rows[rec.GetId()] = &pending{rec: rec.Clone()}
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, kind model.Kind, id string) error {
	if _, err := t.Get(ctx, kind, id); err != nil {
		return err
	}
	t.rows(kind)[id] = &pending{}
	return nil
}

func (t *memoryTx) rows(kind model.Kind) map[string]*pending {
	rows := t.overlay[kind]
	if rows == nil {
		rows = make(map[string]*pending)
		t.overlay[kind] = rows
	}
	return rows
}
