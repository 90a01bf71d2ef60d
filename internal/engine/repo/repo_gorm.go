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
	"time"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/pkg/log"
	"github.com/go-arcade/guild/pkg/retry"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MySQL errors that abort a transaction without it being at fault.
const (
	mysqlDeadlock        = 1213
	mysqlLockWaitTimeout = 1205
)

// GormStore persists records in MySQL through GORM.
type GormStore struct {
	db          *gorm.DB
	maxAttempts int
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, maxAttempts: 3}
}

func (s *GormStore) Get(ctx context.Context, kind model.Kind, id string) (model.Record, error) {
	return get(s.db.WithContext(ctx), kind, id)
}

func (s *GormStore) Find(ctx context.Context, kind model.Kind, where Where) ([]model.Record, error) {
	return find(s.db.WithContext(ctx), kind, where)
}

// Transaction runs fn in a database transaction. Deadlocks and lock wait
// timeouts re-run fn from scratch.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx ITx) error) error {
	attempt := 0
	return retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			return fn(&gormTx{db: gtx})
		})
		if err != nil && isWriteConflict(err) {
			log.Warnw("storage write conflict, re-running transaction", "attempt", attempt, "error", err)
		}
		return err
	},
		retry.WithMaxAttempts(s.maxAttempts),
		retry.WithBackoff(retry.Exponential(20*time.Millisecond, 500*time.Millisecond)),
		retry.WithJitter(),
		retry.WithRetryIf(isWriteConflict),
	)
}

type gormTx struct {
	db *gorm.DB
}

// Get locks the row for the rest of the transaction.
func (t *gormTx) Get(ctx context.Context, kind model.Kind, id string) (model.Record, error) {
	return get(t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), kind, id)
}

func (t *gormTx) Find(ctx context.Context, kind model.Kind, where Where) ([]model.Record, error) {
	return find(t.db.WithContext(ctx), kind, where)
}

func (t *gormTx) Put(ctx context.Context, rec model.Record) error {
	if err := t.db.WithContext(ctx).Save(rec).Error; err != nil {
		return errors.Wrapf(err, "save %s %s", rec.Kind(), rec.GetId())
	}
	return nil
}

func (t *gormTx) Delete(ctx context.Context, kind model.Kind, id string) error {
	empty, err := model.New(kind)
	if err != nil {
		return err
	}
	res := t.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).Delete(empty)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete %s %s", kind, id)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound(kind, id)
	}
	return nil
}

func get(db *gorm.DB, kind model.Kind, id string) (model.Record, error) {
	rec, err := model.New(kind)
	if err != nil {
		return nil, err
	}
	err = db.Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).Take(rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound(kind, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s %s", kind, id)
	}
	return rec, nil
}

func find(db *gorm.DB, kind model.Kind, where Where) ([]model.Record, error) {
	finder, ok := finders[kind]
	if !ok {
		return nil, errors.Errorf("unknown record kind %q", kind)
	}
	recs, err := finder(db.Scopes(whereScope(where)).Order("created_at, id"))
	if err != nil {
		return nil, errors.Wrapf(err, "find %s", kind)
	}
	return recs, nil
}

// whereScope turns a Where into quoted column conditions ("in"/"out" are reserved words).
func whereScope(where Where) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for k, v := range where {
			col := clause.Column{Name: k}
			if values, ok := v.([]string); ok {
				in := make([]any, len(values))
				for i, s := range values {
					in[i] = s
				}
				db = db.Where(clause.IN{Column: col, Values: in})
				continue
			}
			db = db.Where(clause.Eq{Column: col, Value: v})
		}
		return db
	}
}

var finders = map[model.Kind]func(*gorm.DB) ([]model.Record, error){
	model.KindUser:         findAll[model.User],
	model.KindAdmin:        findAll[model.Admin],
	model.KindOrganisation: findAll[model.Organisation],
	model.KindTeam:         findAll[model.Team],
	model.KindEvent:        findAll[model.Event],
	model.KindManages:      findAll[model.Manages],
	model.KindPlaysIn:      findAll[model.PlaysIn],
	model.KindAttends:      findAll[model.Attends],
	model.KindInvite:       findAll[model.Invite],
	model.KindLog:          findAll[model.Log],
}

func findAll[T any, PT interface {
	*T
	model.Record
}](db *gorm.DB) ([]model.Record, error) {
	var rows []T
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Record, len(rows))
	for i := range rows {
		out[i] = PT(&rows[i])
	}
	return out, nil
}

func isWriteConflict(err error) bool {
	var me *mysqldriver.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout
	}
	return false
}
