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
	"reflect"
	"slices"

	"github.com/go-arcade/guild/internal/engine/model"
)

// Where filters records by column. A []string value matches any of its elements;
// every other value matches by equality.
type Where map[string]any

// IReader is the read side of the storage collaborator.
// Get returns errs.NotFound when the record does not exist.
type IReader interface {
	Get(ctx context.Context, kind model.Kind, id string) (model.Record, error)
	Find(ctx context.Context, kind model.Kind, where Where) ([]model.Record, error)
}

// ITx is a read-write view scoped to one atomic transaction.
type ITx interface {
	IReader
	Put(ctx context.Context, rec model.Record) error
	Delete(ctx context.Context, kind model.Kind, id string) error
}

// IStore runs reads and atomic transactions. If fn returns an error nothing
// it wrote is visible afterwards.
type IStore interface {
	IReader
	Transaction(ctx context.Context, fn func(tx ITx) error) error
}

// Match reports whether fields satisfy every condition of w.
func (w Where) Match(fields map[string]any) bool {
	for k, v := range w {
		got := normalize(fields[k])
		switch want := v.(type) {
		case []string:
			s, ok := got.(string)
			if !ok || !slices.Contains(want, s) {
				return false
			}
		default:
			if !reflect.DeepEqual(got, normalize(v)) {
				return false
			}
		}
	}
	return true
}

// normalize turns named string types (model.Role, model.Kind...) into plain strings.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}

// sortRecords orders by creation time, then id.
func sortRecords(recs []model.Record) {
	slices.SortStableFunc(recs, func(a, b model.Record) int {
		if c := a.Base().CreatedAt.Compare(b.Base().CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.GetId() < b.GetId():
			return -1
		case a.GetId() > b.GetId():
			return 1
		}
		return 0
	})
}
