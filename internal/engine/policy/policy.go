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

// Package policy decides, per caller and operation, whether a record may be
// read or written and which of its fields are visible. Rules are data: a table
// of predicates keyed by record kind and operation.
package policy

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sort"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/graph"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/pkg/log"
	"github.com/go-arcade/guild/pkg/metrics"
)

type Op string

const (
	OpSelect Op = "select"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Request is one authorization question. Record is the stored record for
// select and delete, and the proposed post-image for create and update.
// Before is the pre-image of an update. A nil Fields requests every field.
type Request struct {
	Caller model.Caller
	Op     Op
	Record model.Record
	Before model.Record
	Fields []string
}

// Env gives predicates read access to the graph.
type Env struct {
	Graph *graph.Resolver
}

// Predicate reports whether a rule allows the request.
type Predicate func(ctx context.Context, env *Env, req *Request) (bool, error)

// Rule is a named allow predicate.
type Rule struct {
	Name  string
	Allow Predicate
}

type key struct {
	kind model.Kind
	op   Op
}

// ref names a record a write points at.
type ref struct {
	kind model.Kind
	id   func(model.Record) string
}

// Table holds the allow rules per (kind, op) and the per-field guards.
// A request is allowed when any rule for its key allows it.
type Table struct {
	rules       map[key][]Rule
	readGuards  map[model.Kind]map[string]Predicate
	writeGuards map[model.Kind]map[string]Predicate
	refs        map[model.Kind][]ref
}

func NewTable() *Table {
	return &Table{
		rules:       make(map[key][]Rule),
		readGuards:  make(map[model.Kind]map[string]Predicate),
		writeGuards: make(map[model.Kind]map[string]Predicate),
		refs:        make(map[model.Kind][]ref),
	}
}

// Allow adds a rule for each of ops.
func (t *Table) Allow(kind model.Kind, name string, pred Predicate, ops ...Op) *Table {
	for _, op := range ops {
		k := key{kind, op}
		t.rules[k] = append(t.rules[k], Rule{Name: name, Allow: pred})
	}
	return t
}

// GuardRead hides field from callers failing pred.
func (t *Table) GuardRead(kind model.Kind, field string, pred Predicate) *Table {
	if t.readGuards[kind] == nil {
		t.readGuards[kind] = make(map[string]Predicate)
	}
	t.readGuards[kind][field] = pred
	return t
}

// GuardWrite rejects updates changing field unless pred holds.
func (t *Table) GuardWrite(kind model.Kind, field string, pred Predicate) *Table {
	if t.writeGuards[kind] == nil {
		t.writeGuards[kind] = make(map[string]Predicate)
	}
	t.writeGuards[kind][field] = pred
	return t
}

// RequireVisible rejects creates and updates of kind whose referenced refKind
// record the caller cannot select. The rejection is not-visible, as if the
// referenced record did not exist.
func (t *Table) RequireVisible(kind, refKind model.Kind, id func(model.Record) string) *Table {
	t.refs[kind] = append(t.refs[kind], ref{kind: refKind, id: id})
	return t
}

// Rules returns the rules registered for kind and op.
func (t *Table) Rules(kind model.Kind, op Op) []Rule {
	return t.rules[key{kind, op}]
}

// Evaluator applies a Table to requests.
type Evaluator struct {
	table   *Table
	metrics *metrics.EngineMetrics
}

func NewEvaluator(table *Table, m *metrics.EngineMetrics) *Evaluator {
	if table == nil {
		table = DefaultTable()
	}
	return &Evaluator{table: table, metrics: m}
}

// Authorize returns the fields the caller may see on the record, or a
// PermissionDenied error. A denied write is reported as not-visible when the
// caller could not even select the record, so its existence does not leak.
func (e *Evaluator) Authorize(ctx context.Context, env *Env, req *Request) ([]string, error) {
	kind := req.Record.Kind()
	if err := e.checkRefs(ctx, env, req); err != nil {
		if errors.Is(err, errs.ErrNotVisible) {
			e.metrics.ObserveDecision(string(kind), string(req.Op), "deny")
		}
		return nil, err
	}
	ok, err := e.Allowed(ctx, env, req)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metrics.ObserveDecision(string(kind), string(req.Op), "deny")
		log.Debugw("authorization denied", "caller", req.Caller.String(), "op", req.Op, "kind", kind, "id", req.Record.GetId())
		return nil, e.denial(ctx, env, req)
	}

	if req.Op == OpUpdate && req.Before != nil {
		if err := e.checkWriteGuards(ctx, env, req); err != nil {
			e.metrics.ObserveDecision(string(kind), string(req.Op), "deny")
			return nil, err
		}
	}

	fields, err := e.visibleFields(ctx, env, req)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveDecision(string(kind), string(req.Op), "allow")
	return fields, nil
}

// Allowed evaluates the rule table without field filtering.
func (e *Evaluator) Allowed(ctx context.Context, env *Env, req *Request) (bool, error) {
	kind := req.Record.Kind()
	if req.Caller.IsAdmin() && (kind != model.KindLog || req.Op == OpSelect) {
		return true, nil
	}
	for _, rule := range e.table.Rules(kind, req.Op) {
		ok, err := rule.Allow(ctx, env, req)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) denial(ctx context.Context, env *Env, req *Request) error {
	kind, id := req.Record.Kind(), req.Record.GetId()
	switch req.Op {
	case OpSelect:
		return errs.NotVisible(kind, id)
	case OpCreate:
		return errs.Forbidden(kind, id, string(req.Op), "")
	}
	stored := req.Record
	if req.Before != nil {
		stored = req.Before
	}
	visible, err := e.Allowed(ctx, env, &Request{Caller: req.Caller, Op: OpSelect, Record: stored})
	if err != nil {
		return err
	}
	if !visible {
		return errs.NotVisible(kind, id)
	}
	return errs.Forbidden(kind, id, string(req.Op), "")
}

// checkRefs applies the table's visibility requirements. On update the
// references are read from the pre-image.
func (e *Evaluator) checkRefs(ctx context.Context, env *Env, req *Request) error {
	refs := e.table.refs[req.Record.Kind()]
	if len(refs) == 0 || req.Caller.IsAdmin() || (req.Op != OpCreate && req.Op != OpUpdate) {
		return nil
	}
	bound := req.Record
	if req.Op == OpUpdate && req.Before != nil {
		bound = req.Before
	}
	for _, r := range refs {
		id := r.id(bound)
		if id == "" {
			continue
		}
		target, err := env.Graph.Reader().Get(ctx, r.kind, id)
		if errors.Is(err, errs.ErrNotFound) {
			return errs.NotVisible(r.kind, id)
		} else if err != nil {
			return err
		}
		visible, err := e.Allowed(ctx, env, &Request{Caller: req.Caller, Op: OpSelect, Record: target})
		if err != nil {
			return err
		}
		if !visible {
			log.Debugw("authorization denied", "caller", req.Caller.String(), "op", req.Op, "kind", req.Record.Kind(), "ref", r.kind, "refId", id)
			return errs.NotVisible(r.kind, id)
		}
	}
	return nil
}

func (e *Evaluator) checkWriteGuards(ctx context.Context, env *Env, req *Request) error {
	guards := e.table.writeGuards[req.Record.Kind()]
	if len(guards) == 0 || req.Caller.IsAdmin() {
		return nil
	}
	before, after := req.Before.Fields(), req.Record.Fields()
	for _, field := range sortedKeys(guards) {
		if reflect.DeepEqual(before[field], after[field]) {
			continue
		}
		ok, err := guards[field](ctx, env, req)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Forbidden(req.Record.Kind(), req.Record.GetId(), string(req.Op), field)
		}
	}
	return nil
}

func (e *Evaluator) visibleFields(ctx context.Context, env *Env, req *Request) ([]string, error) {
	kind := req.Record.Kind()
	all := FieldNames(req.Record)
	if req.Fields != nil {
		all = slices.DeleteFunc(all, func(f string) bool { return !slices.Contains(req.Fields, f) })
	}
	if req.Caller.IsAdmin() {
		return all, nil
	}
	guards := e.table.readGuards[kind]
	out := make([]string, 0, len(all))
	for _, f := range all {
		if guard, ok := guards[f]; ok {
			allowed, err := guard(ctx, env, req)
			if err != nil {
				return nil, err
			}
			if !allowed {
				continue
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// FieldNames lists the direct and computed fields of rec, sorted.
func FieldNames(rec model.Record) []string {
	fields := rec.Fields()
	names := make([]string, 0, len(fields)+3)
	for f := range fields {
		names = append(names, f)
	}
	for _, f := range graph.ComputedFields(rec.Kind()) {
		if _, ok := fields[f]; !ok {
			names = append(names, f)
		}
	}
	sort.Strings(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
